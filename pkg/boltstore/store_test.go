package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/crystal-mush/kmud/pkg/gamedb/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kmud.bolt"))
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) gamedb.Store { return openTemp(t) })
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmud.bolt")
	s, err := Open(path)
	require.NoError(t, err)
	acct, err := s.InsertAccount("edwin", "h", false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.FindAccountByLogin("edwin")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, path, s.Path())
}

func TestBackup(t *testing.T) {
	s := openTemp(t)
	defer s.Close()
	_, err := s.InsertAccount("edwin", "h", false)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backup.bolt")
	require.NoError(t, s.Backup(dest))

	b, err := Open(dest)
	require.NoError(t, err)
	defer b.Close()
	_, err = b.FindAccountByLogin("edwin")
	assert.NoError(t, err)
}
