// Package boltstore implements gamedb.Store on a bbolt file.
package boltstore

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database holding accounts, characters and sessions.
type Store struct {
	bolt *bbolt.DB
}

var _ gamedb.Store = (*Store)(nil)

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketAccounts, bucketAccountLogins, bucketCharacters, bucketCharacterNames, bucketSessions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMeta).Put(keySchema, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		if _, err := tx.WriteTo(f); err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}

// --- Accounts ---

// FindAccountByLogin looks an account up by its login (case-insensitive).
func (s *Store) FindAccountByLogin(login string) (*gamedb.Account, error) {
	var acct *gamedb.Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketAccountLogins).Get([]byte(gamedb.NameKey(login)))
		if id == nil {
			return gamedb.ErrNotFound
		}
		var err error
		acct, err = getAccount(tx, keyToInt(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// FindAccountByID loads an account by id.
func (s *Store) FindAccountByID(id int) (*gamedb.Account, error) {
	var acct *gamedb.Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		var err error
		acct, err = getAccount(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// InsertAccount creates an account. The login must be unused.
func (s *Store) InsertAccount(login, pwHash string, admin bool) (*gamedb.Account, error) {
	acct := &gamedb.Account{Login: login, PwHash: pwHash, Admin: admin, Created: time.Now()}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketAccountLogins)
		key := []byte(gamedb.NameKey(login))
		if idx.Get(key) != nil {
			return gamedb.ErrExists
		}
		b := tx.Bucket(bucketAccounts)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		acct.ID = int(seq)
		data, err := encode(acct)
		if err != nil {
			return fmt.Errorf("boltstore: encode account %q: %w", login, err)
		}
		if err := b.Put(intToKey(acct.ID), data); err != nil {
			return err
		}
		return idx.Put(key, intToKey(acct.ID))
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func getAccount(tx *bbolt.Tx, id int) (*gamedb.Account, error) {
	data := tx.Bucket(bucketAccounts).Get(intToKey(id))
	if data == nil {
		return nil, gamedb.ErrNotFound
	}
	acct, err := decodeAccount(data)
	if err != nil {
		return nil, fmt.Errorf("boltstore: decode account %d: %w", id, err)
	}
	return acct, nil
}
