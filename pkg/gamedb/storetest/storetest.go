// Package storetest holds behaviour tests shared by gamedb.Store backends.
package storetest

import (
	"testing"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a Store implementation. open must return a fresh, empty
// store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) gamedb.Store) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, open(t)) })
	t.Run("Characters", func(t *testing.T) { testCharacters(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
}

func testAccounts(t *testing.T, s gamedb.Store) {
	defer s.Close()

	_, err := s.FindAccountByLogin("edwin")
	require.ErrorIs(t, err, gamedb.ErrNotFound)

	acct, err := s.InsertAccount("edwin", "hash", false)
	require.NoError(t, err)
	assert.NotZero(t, acct.ID)
	assert.Equal(t, "edwin", acct.Login)

	_, err = s.InsertAccount("Edwin", "other", false)
	require.ErrorIs(t, err, gamedb.ErrExists)

	got, err := s.FindAccountByLogin("EDWIN")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, "hash", got.PwHash)

	byID, err := s.FindAccountByID(acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "edwin", byID.Login)

	_, err = s.FindAccountByID(acct.ID + 100)
	require.ErrorIs(t, err, gamedb.ErrNotFound)

	admin, err := s.InsertAccount("root", "x", true)
	require.NoError(t, err)
	assert.NotEqual(t, acct.ID, admin.ID)
	got, err = s.FindAccountByLogin("root")
	require.NoError(t, err)
	assert.True(t, got.Admin)
}

func testCharacters(t *testing.T, s gamedb.Store) {
	defer s.Close()

	edwin, err := s.InsertAccount("edwin", "h", false)
	require.NoError(t, err)
	bob, err := s.InsertAccount("bob", "h", false)
	require.NoError(t, err)

	harry := &gamedb.Character{Name: "Harry", Class: "wizard"}
	require.NoError(t, s.InsertCharacter(edwin, harry))
	assert.NotZero(t, harry.ID)
	assert.Equal(t, edwin.ID, harry.OwnerID)

	ron := &gamedb.Character{Name: "Ron", Class: "fighter"}
	require.NoError(t, s.InsertCharacter(edwin, ron))
	require.NoError(t, s.InsertCharacter(bob, &gamedb.Character{Name: "Bob", Class: "fighter"}))

	require.ErrorIs(t, s.InsertCharacter(bob, &gamedb.Character{Name: "harry"}), gamedb.ErrExists)

	chars, err := s.FindCharactersByAccount(edwin)
	require.NoError(t, err)
	require.Len(t, chars, 2)
	assert.Equal(t, "Harry", chars[0].Name)
	assert.Equal(t, "Ron", chars[1].Name)

	got, err := s.FindCharacterByName("harry")
	require.NoError(t, err)
	assert.Equal(t, harry.ID, got.ID)
	assert.Equal(t, "wizard", got.Class)

	require.NoError(t, s.DeleteCharacter(harry))
	_, err = s.FindCharacterByName("Harry")
	require.ErrorIs(t, err, gamedb.ErrNotFound)
	require.ErrorIs(t, s.DeleteCharacter(harry), gamedb.ErrNotFound)

	chars, err = s.FindCharactersByAccount(edwin)
	require.NoError(t, err)
	require.Len(t, chars, 1)

	// The name is free again.
	require.NoError(t, s.InsertCharacter(bob, &gamedb.Character{Name: "Harry"}))
}

func testSessions(t *testing.T, s gamedb.Store) {
	defer s.Close()

	acct, err := s.InsertAccount("edwin", "h", false)
	require.NoError(t, err)
	anon := gamedb.AnonCharacter

	sess, err := s.CreateSession(acct, &anon)
	require.NoError(t, err)
	assert.NotZero(t, sess.ID)

	harry := &gamedb.Character{Name: "Harry"}
	require.NoError(t, s.InsertCharacter(acct, harry))
	sess.Character = harry
	require.NoError(t, s.UpdateSession(sess))

	list, err := s.SessionsByAccount(acct)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sess.ID, list[0].ID)
	assert.Equal(t, "Harry", list[0].Character.Name)

	require.NoError(t, s.RemoveSession(sess))
	list, err = s.SessionsByAccount(acct)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.ErrorIs(t, s.UpdateSession(sess), gamedb.ErrNotFound)
}
