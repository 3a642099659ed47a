// Package gamedb holds the account, character and session model and the
// access interface that storage backends implement.
package gamedb

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("gamedb: not found")
	// ErrExists is returned when an insert violates a unique name.
	ErrExists = errors.New("gamedb: already exists")
)

// Account is a login.
type Account struct {
	ID      int
	Login   string
	PwHash  string
	Admin   bool
	Created time.Time
}

// Character is a playable persona owned by an account.
type Character struct {
	ID      int
	Name    string
	Class   string
	OwnerID int
}

// Session binds a connection to an account and the character it puppets.
// ID is zero until the session is persisted at login.
type Session struct {
	ID        int
	Account   *Account
	Character *Character
	StartTime time.Time
}

// Anonymous account and character used before login.
var (
	AnonAccount   = Account{ID: 0, Login: "anon"}
	AnonCharacter = Character{ID: 0, Name: "noface"}
)

// NewAnonymousSession returns an unpersisted session for a fresh connection.
func NewAnonymousSession() *Session {
	acct := AnonAccount
	char := AnonCharacter
	return &Session{
		Account:   &acct,
		Character: &char,
		StartTime: time.Now(),
	}
}

// LoggedIn reports whether the session belongs to a real account.
func (s *Session) LoggedIn() bool {
	return s != nil && s.Account != nil && s.Account.ID != 0
}

// Puppeting reports whether the session has a real character.
func (s *Session) Puppeting() bool {
	return s != nil && s.Character != nil && s.Character.ID != 0
}

// Owns reports whether the account owns the character.
func (a *Account) Owns(c *Character) bool {
	return a != nil && c != nil && a.ID != 0 && c.OwnerID == a.ID
}

// NameKey normalises a login or character name for unique lookups.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
