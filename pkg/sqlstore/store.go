// Package sqlstore implements gamedb.Store on SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	name_key TEXT NOT NULL UNIQUE,
	pwhash   TEXT NOT NULL,
	admin    INTEGER NOT NULL DEFAULT 0,
	created  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS characters (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	name_key TEXT NOT NULL UNIQUE,
	class    TEXT NOT NULL DEFAULT '',
	owner_id INTEGER NOT NULL REFERENCES accounts(id)
);
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	char_id    INTEGER NOT NULL DEFAULT 0,
	start_time INTEGER NOT NULL
);
`

// Store manages a SQLite3 database connection.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
}

var _ gamedb.Store = (*Store)(nil)

// Open opens a SQLite3 database, sets WAL mode and busy timeout, and
// creates the schema.
func Open(path string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: creating schema: %w", err)
	}
	return &Store{db: db, path: path, timeout: timeout}, nil
}

// Close closes the SQLite3 database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (s *Store) Path() string { return s.path }

// Backup writes a consistent copy of the database to path with VACUUM INTO.
func (s *Store) Backup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("sqlstore: backup to %s: %w", path, err)
	}
	log.Printf("sqlstore: backup written to %s", path)
	return nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// isUnique reports whether err is a UNIQUE constraint violation.
func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return gamedb.ErrNotFound
	}
	return err
}

// --- Accounts ---

const accountCols = "id, name, pwhash, admin, created"

func scanAccount(row *sql.Row) (*gamedb.Account, error) {
	var (
		acct    gamedb.Account
		admin   int
		created int64
	)
	if err := row.Scan(&acct.ID, &acct.Login, &acct.PwHash, &admin, &created); err != nil {
		return nil, notFound(err)
	}
	acct.Admin = admin != 0
	acct.Created = time.Unix(created, 0)
	return &acct, nil
}

// FindAccountByLogin looks an account up by its login (case-insensitive).
func (s *Store) FindAccountByLogin(login string) (*gamedb.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()
	return scanAccount(s.db.QueryRowContext(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE name_key = ?", gamedb.NameKey(login)))
}

// FindAccountByID loads an account by id.
func (s *Store) FindAccountByID(id int) (*gamedb.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()
	return scanAccount(s.db.QueryRowContext(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE id = ?", id))
}

// InsertAccount creates an account. The login must be unused.
func (s *Store) InsertAccount(login, pwHash string, admin bool) (*gamedb.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	acct := &gamedb.Account{Login: login, PwHash: pwHash, Admin: admin, Created: time.Now().Truncate(time.Second)}
	adminInt := 0
	if admin {
		adminInt = 1
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (name, name_key, pwhash, admin, created) VALUES (?, ?, ?, ?, ?)",
		login, gamedb.NameKey(login), pwHash, adminInt, acct.Created.Unix())
	if err != nil {
		if isUnique(err) {
			return nil, gamedb.ErrExists
		}
		return nil, fmt.Errorf("sqlstore: insert account %q: %w", login, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: insert account %q: %w", login, err)
	}
	acct.ID = int(id)
	return acct, nil
}
