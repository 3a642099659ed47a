package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crystal-mush/kmud/pkg/events"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"golang.org/x/crypto/bcrypt"
)

// AccountService creates and authenticates accounts.
type AccountService struct {
	store gamedb.Store
	bus   *events.Bus
	cost  int
}

// NewAccountService returns an AccountService hashing with the given bcrypt
// cost (bcrypt.DefaultCost when cost is zero).
func NewAccountService(store gamedb.Store, bus *events.Bus, cost int) *AccountService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AccountService{store: store, bus: bus, cost: cost}
}

// ByID returns the account with this id, or gamedb.ErrNotFound.
func (a *AccountService) ByID(id int) (*gamedb.Account, error) {
	return a.store.FindAccountByID(id)
}

// Create registers a new account. Returns gamedb.ErrExists if the login
// is taken.
func (a *AccountService) Create(login, password string) (*gamedb.Account, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, errors.New("service: login and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("service: hashing password: %w", err)
	}
	acct, err := a.store.InsertAccount(login, string(hash), false)
	if err != nil {
		return nil, err
	}
	a.bus.Emit(events.Event{
		Type:    events.EvAccount,
		Account: acct.ID,
		Data:    map[string]any{"login": acct.Login},
	})
	return acct, nil
}

// Authenticate checks a login/password pair.
func (a *AccountService) Authenticate(login, password string) (*gamedb.Account, error) {
	acct, err := a.store.FindAccountByLogin(login)
	if err != nil {
		return nil, err
	}
	if !CheckPassword(acct, password) {
		return nil, ErrBadPassword
	}
	return acct, nil
}

// CheckPassword reports whether password matches the account's hash.
func CheckPassword(acct *gamedb.Account, password string) bool {
	if acct == nil || acct.PwHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(acct.PwHash), []byte(password)) == nil
}
