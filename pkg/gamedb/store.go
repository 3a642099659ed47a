package gamedb

// Store is the synchronous access interface for accounts, characters and
// sessions. Lookups that match nothing return ErrNotFound; inserts that
// collide on a unique name return ErrExists.
type Store interface {
	FindAccountByLogin(login string) (*Account, error)
	FindAccountByID(id int) (*Account, error)
	InsertAccount(login, pwHash string, admin bool) (*Account, error)

	CreateSession(acct *Account, char *Character) (*Session, error)
	UpdateSession(s *Session) error
	RemoveSession(s *Session) error
	SessionsByAccount(acct *Account) ([]*Session, error)

	FindCharactersByAccount(acct *Account) ([]*Character, error)
	FindCharacterByName(name string) (*Character, error)
	InsertCharacter(acct *Account, char *Character) error
	DeleteCharacter(char *Character) error

	Close() error
}
