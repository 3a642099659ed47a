// Package service holds the account and session logic that commands call.
// Services talk to a gamedb.Store synchronously and trust its results.
package service

import (
	"errors"

	"github.com/crystal-mush/kmud/pkg/events"
	"github.com/crystal-mush/kmud/pkg/gamedb"
)

var (
	// ErrBadPassword is returned when a password does not match the account.
	ErrBadPassword = errors.New("service: bad password")
	// ErrNotLoggedIn is returned for operations that need a real account.
	ErrNotLoggedIn = errors.New("service: not logged in")
	// ErrNotOwner is returned when a character belongs to another account.
	ErrNotOwner = errors.New("service: character belongs to another account")
)

// Services bundles what commands may reach.
type Services struct {
	Accounts *AccountService
	Sessions *SessionService
	Events   *events.Bus
}

// New wires account and session services over one store. bus may be nil.
func New(store gamedb.Store, bus *events.Bus, bcryptCost int) *Services {
	return &Services{
		Accounts: NewAccountService(store, bus, bcryptCost),
		Sessions: NewSessionService(store, bus),
		Events:   bus,
	}
}
