package boltstore

import (
	"fmt"
	"time"

	"github.com/crystal-mush/kmud/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// CreateSession persists a new session for acct puppeting char.
func (s *Store) CreateSession(acct *gamedb.Account, char *gamedb.Character) (*gamedb.Session, error) {
	sess := &gamedb.Session{Account: acct, Character: char, StartTime: time.Now()}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		sess.ID = int(seq)
		return putSession(b, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateSession rewrites the account and character of a stored session.
func (s *Store) UpdateSession(sess *gamedb.Session) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get(intToKey(sess.ID)) == nil {
			return gamedb.ErrNotFound
		}
		return putSession(b, sess)
	})
}

// RemoveSession deletes a stored session.
func (s *Store) RemoveSession(sess *gamedb.Session) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete(intToKey(sess.ID))
	})
}

// SessionsByAccount returns the stored sessions of an account.
func (s *Store) SessionsByAccount(acct *gamedb.Account) ([]*gamedb.Session, error) {
	var out []*gamedb.Session
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		chars := tx.Bucket(bucketCharacters)
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			rec, err := decodeSession(v)
			if err != nil {
				return fmt.Errorf("boltstore: decode session %d: %w", keyToInt(k), err)
			}
			if rec.AccountID != acct.ID {
				return nil
			}
			sess := &gamedb.Session{ID: rec.ID, Account: acct, StartTime: rec.StartTime}
			if data := chars.Get(intToKey(rec.CharacterID)); data != nil {
				if sess.Character, err = decodeCharacter(data); err != nil {
					return fmt.Errorf("boltstore: decode character %d: %w", rec.CharacterID, err)
				}
			} else {
				anon := gamedb.AnonCharacter
				sess.Character = &anon
			}
			out = append(out, sess)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func putSession(b *bbolt.Bucket, sess *gamedb.Session) error {
	rec := sessionRecord{ID: sess.ID, StartTime: sess.StartTime}
	if sess.Account != nil {
		rec.AccountID = sess.Account.ID
	}
	if sess.Character != nil {
		rec.CharacterID = sess.Character.ID
	}
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("boltstore: encode session %d: %w", sess.ID, err)
	}
	return b.Put(intToKey(sess.ID), data)
}
