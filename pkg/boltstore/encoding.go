package boltstore

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/crystal-mush/kmud/pkg/gamedb"
)

// sessionRecord is the stored form of a session; account and character
// are kept by id and resolved on load.
type sessionRecord struct {
	ID          int
	AccountID   int
	CharacterID int
	StartTime   time.Time
}

func init() {
	gob.Register(gamedb.Account{})
	gob.Register(gamedb.Character{})
	gob.Register(sessionRecord{})
}

// encode serializes a record to bytes using gob.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeAccount deserializes bytes back into an Account.
func decodeAccount(data []byte) (*gamedb.Account, error) {
	var acct gamedb.Account
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// decodeCharacter deserializes bytes back into a Character.
func decodeCharacter(data []byte) (*gamedb.Character, error) {
	var char gamedb.Character
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&char); err != nil {
		return nil, err
	}
	return &char, nil
}

// decodeSession deserializes bytes back into a sessionRecord.
func decodeSession(data []byte) (*sessionRecord, error) {
	var rec sessionRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
