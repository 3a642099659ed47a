package boltstore

import (
	"fmt"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// FindCharactersByAccount returns the account's characters in creation order.
func (s *Store) FindCharactersByAccount(acct *gamedb.Account) ([]*gamedb.Character, error) {
	var chars []*gamedb.Character
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCharacters).ForEach(func(k, v []byte) error {
			char, err := decodeCharacter(v)
			if err != nil {
				return fmt.Errorf("boltstore: decode character %d: %w", keyToInt(k), err)
			}
			if char.OwnerID == acct.ID {
				chars = append(chars, char)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return chars, nil
}

// FindCharacterByName looks a character up by name (case-insensitive).
func (s *Store) FindCharacterByName(name string) (*gamedb.Character, error) {
	var char *gamedb.Character
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketCharacterNames).Get([]byte(gamedb.NameKey(name)))
		if id == nil {
			return gamedb.ErrNotFound
		}
		data := tx.Bucket(bucketCharacters).Get(id)
		if data == nil {
			return gamedb.ErrNotFound
		}
		var err error
		char, err = decodeCharacter(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return char, nil
}

// InsertCharacter stores a new character owned by acct and sets its ID.
func (s *Store) InsertCharacter(acct *gamedb.Account, char *gamedb.Character) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketCharacterNames)
		key := []byte(gamedb.NameKey(char.Name))
		if idx.Get(key) != nil {
			return gamedb.ErrExists
		}
		b := tx.Bucket(bucketCharacters)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		char.ID = int(seq)
		char.OwnerID = acct.ID
		data, err := encode(char)
		if err != nil {
			return fmt.Errorf("boltstore: encode character %q: %w", char.Name, err)
		}
		if err := b.Put(intToKey(char.ID), data); err != nil {
			return err
		}
		return idx.Put(key, intToKey(char.ID))
	})
}

// DeleteCharacter removes a character and its name index entry.
func (s *Store) DeleteCharacter(char *gamedb.Character) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCharacters)
		if b.Get(intToKey(char.ID)) == nil {
			return gamedb.ErrNotFound
		}
		if err := b.Delete(intToKey(char.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketCharacterNames).Delete([]byte(gamedb.NameKey(char.Name)))
	})
}
