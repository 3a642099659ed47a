package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func snapshotOf(data string) func(string) error {
	return func(dest string) error { return os.WriteFile(dest, []byte(data), 0600) }
}

func TestCreateAndRestore(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "text", "connect.txt"), "Welcome!\n")
	writeFile(t, filepath.Join(src, "text", "motd.txt"), "News.\n")
	writeFile(t, filepath.Join(src, "kmud.yaml"), "mud_name: Test\n")

	path, err := Create(Params{
		Snapshot: snapshotOf("bolt-bytes"),
		Driver:   "bolt",
		TextDir:  filepath.Join(src, "text"),
		ConfPath: filepath.Join(src, "kmud.yaml"),
		Dir:      filepath.Join(src, "archives"),
		MudName:  "Test",
		Server:   "kmud test",
	})
	require.NoError(t, err)

	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "Test", m.MudName)
	assert.Equal(t, "bolt", m.Driver)
	assert.Len(t, m.Files, 4)
	assert.Equal(t, "store", m.Files["data/kmud.bolt"].Type)
	assert.Equal(t, "text", m.Files["text/motd.txt"].Type)
	assert.Equal(t, "conf", m.Files["conf/kmud.yaml"].Type)

	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "kmud.yaml"), "mud_name: Mine\n")
	res, err := Restore(RestoreParams{
		ArchivePath: path,
		StoreDest:   filepath.Join(dst, "data", "kmud.db"),
		TextDest:    filepath.Join(dst, "text"),
		ConfDest:    filepath.Join(dst, "kmud.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, "bolt", res.Driver)
	assert.Equal(t, 3, res.FilesRestored)
	assert.Len(t, res.Warnings, 1)

	got, err := os.ReadFile(filepath.Join(dst, "data", "kmud.db"))
	require.NoError(t, err)
	assert.Equal(t, "bolt-bytes", string(got))
	got, err = os.ReadFile(filepath.Join(dst, "text", "connect.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Welcome!\n", string(got))
	got, err = os.ReadFile(filepath.Join(dst, "kmud.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mud_name: Mine\n", string(got), "existing config is kept")
}

func TestCreateNeedsSnapshot(t *testing.T) {
	_, err := Create(Params{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestStoreEntry(t *testing.T) {
	assert.Equal(t, "data/kmud.sqlite", StoreEntry("sqlite"))
	assert.Equal(t, "data/kmud.bolt", StoreEntry("bolt"))
}

func TestListAndPrune(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		p, err := Create(Params{Snapshot: snapshotOf("x"), Driver: "sqlite", Dir: dir})
		require.NoError(t, err)
		paths = append(paths, p)
	}

	all, err := List(dir)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "sqlite", all[0].Driver)

	n, err := Prune(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err = List(dir)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, paths[2], all[0].Path)

	n, err = Prune(dir, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
