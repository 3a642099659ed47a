package service

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/crystal-mush/kmud/pkg/events"
	"github.com/crystal-mush/kmud/pkg/gamedb"
)

// SessionService tracks live sessions and persists them once logged in.
type SessionService struct {
	store gamedb.Store
	bus   *events.Bus

	mu   sync.Mutex
	live map[*gamedb.Session]struct{}
}

// NewSessionService returns a SessionService over store.
func NewSessionService(store gamedb.Store, bus *events.Bus) *SessionService {
	return &SessionService{
		store: store,
		bus:   bus,
		live:  make(map[*gamedb.Session]struct{}),
	}
}

// NewSession returns an anonymous, unpersisted session and tracks it.
func (s *SessionService) NewSession() *gamedb.Session {
	sess := gamedb.NewAnonymousSession()
	s.mu.Lock()
	s.live[sess] = struct{}{}
	s.mu.Unlock()
	return sess
}

// Login binds sess to acct and persists it. A session that was already
// logged in has its previous row removed first.
func (s *SessionService) Login(sess *gamedb.Session, acct *gamedb.Account) error {
	if sess.ID != 0 {
		if err := s.store.RemoveSession(sess); err != nil {
			return fmt.Errorf("service: dropping previous session %d: %w", sess.ID, err)
		}
	}
	anon := gamedb.AnonCharacter
	stored, err := s.store.CreateSession(acct, &anon)
	if err != nil {
		return fmt.Errorf("service: login %s: %w", acct.Login, err)
	}
	sess.ID = stored.ID
	sess.Account = acct
	sess.Character = &anon
	sess.StartTime = stored.StartTime

	s.bus.Emit(events.Event{Type: events.EvLogin, Account: acct.ID, Session: sess})
	return nil
}

// Characters returns the characters owned by acct.
func (s *SessionService) Characters(acct *gamedb.Account) ([]*gamedb.Character, error) {
	if acct == nil || acct.ID == 0 {
		return nil, nil
	}
	return s.store.FindCharactersByAccount(acct)
}

// FindCharacter returns the character of acct whose name matches
// (case-insensitive), or gamedb.ErrNotFound.
func (s *SessionService) FindCharacter(acct *gamedb.Account, name string) (*gamedb.Character, error) {
	chars, err := s.Characters(acct)
	if err != nil {
		return nil, err
	}
	for _, c := range chars {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, gamedb.ErrNotFound
}

// CreateCharacter creates a character owned by the session's account.
func (s *SessionService) CreateCharacter(sess *gamedb.Session, name, class string) (*gamedb.Character, error) {
	if !sess.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	char := &gamedb.Character{Name: name, Class: class}
	if err := s.store.InsertCharacter(sess.Account, char); err != nil {
		return nil, err
	}
	s.bus.Emit(events.Event{
		Type:    events.EvCharacter,
		Account: sess.Account.ID,
		Session: sess,
		Data:    map[string]any{"created": char.Name},
	})
	return char, nil
}

// Puppet switches the session to char.
func (s *SessionService) Puppet(sess *gamedb.Session, char *gamedb.Character) error {
	if !sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if !sess.Account.Owns(char) {
		return ErrNotOwner
	}
	prev := sess.Character
	sess.Character = char
	if err := s.store.UpdateSession(sess); err != nil {
		sess.Character = prev
		return fmt.Errorf("service: puppet %s: %w", char.Name, err)
	}
	s.bus.Emit(events.Event{Type: events.EvPuppet, Account: sess.Account.ID, Session: sess})
	return nil
}

// DeleteCharacter removes a character of the session's account. A session
// puppeting it falls back to the anonymous character.
func (s *SessionService) DeleteCharacter(sess *gamedb.Session, char *gamedb.Character) error {
	if !sess.LoggedIn() {
		return ErrNotLoggedIn
	}
	if !sess.Account.Owns(char) {
		return ErrNotOwner
	}
	if err := s.store.DeleteCharacter(char); err != nil {
		return err
	}
	if sess.Character != nil && sess.Character.ID == char.ID {
		anon := gamedb.AnonCharacter
		sess.Character = &anon
		if err := s.store.UpdateSession(sess); err != nil {
			log.Printf("WARNING: session %d: clearing deleted character: %v", sess.ID, err)
		}
	}
	s.bus.Emit(events.Event{
		Type:    events.EvCharacter,
		Account: sess.Account.ID,
		Session: sess,
		Data:    map[string]any{"deleted": char.Name},
	})
	return nil
}

// Remove forgets a session and deletes its stored row.
func (s *SessionService) Remove(sess *gamedb.Session) {
	s.mu.Lock()
	delete(s.live, sess)
	s.mu.Unlock()

	if sess.ID == 0 {
		return
	}
	log.Printf("Removing session %d for %s", sess.ID, sess.Account.Login)
	if err := s.store.RemoveSession(sess); err != nil {
		log.Printf("WARNING: removing session %d: %v", sess.ID, err)
	}
}
