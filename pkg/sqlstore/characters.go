package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/crystal-mush/kmud/pkg/gamedb"
)

const characterCols = "id, name, class, owner_id"

// FindCharactersByAccount returns the account's characters in creation order.
func (s *Store) FindCharactersByAccount(acct *gamedb.Account) ([]*gamedb.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+characterCols+" FROM characters WHERE owner_id = ? ORDER BY id", acct.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: characters of account %d: %w", acct.ID, err)
	}
	defer rows.Close()

	var chars []*gamedb.Character
	for rows.Next() {
		var c gamedb.Character
		if err := rows.Scan(&c.ID, &c.Name, &c.Class, &c.OwnerID); err != nil {
			return nil, err
		}
		chars = append(chars, &c)
	}
	return chars, rows.Err()
}

// FindCharacterByName looks a character up by name (case-insensitive).
func (s *Store) FindCharacterByName(name string) (*gamedb.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	var c gamedb.Character
	err := s.db.QueryRowContext(ctx,
		"SELECT "+characterCols+" FROM characters WHERE name_key = ?", gamedb.NameKey(name)).
		Scan(&c.ID, &c.Name, &c.Class, &c.OwnerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// InsertCharacter stores a new character owned by acct and sets its ID.
func (s *Store) InsertCharacter(acct *gamedb.Account, char *gamedb.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO characters (name, name_key, class, owner_id) VALUES (?, ?, ?, ?)",
		char.Name, gamedb.NameKey(char.Name), char.Class, acct.ID)
	if err != nil {
		if isUnique(err) {
			return gamedb.ErrExists
		}
		return fmt.Errorf("sqlstore: insert character %q: %w", char.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlstore: insert character %q: %w", char.Name, err)
	}
	char.ID = int(id)
	char.OwnerID = acct.ID
	return nil
}

// DeleteCharacter removes a character.
func (s *Store) DeleteCharacter(char *gamedb.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM characters WHERE id = ?", char.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete character %d: %w", char.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gamedb.ErrNotFound
	}
	return nil
}

// --- Sessions ---

// CreateSession persists a new session for acct puppeting char.
func (s *Store) CreateSession(acct *gamedb.Account, char *gamedb.Character) (*gamedb.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	sess := &gamedb.Session{Account: acct, Character: char, StartTime: time.Now().Truncate(time.Second)}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (account_id, char_id, start_time) VALUES (?, ?, ?)",
		acct.ID, charID(char), sess.StartTime.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create session for account %d: %w", acct.ID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create session for account %d: %w", acct.ID, err)
	}
	sess.ID = int(id)
	return sess, nil
}

// UpdateSession rewrites the account and character of a stored session.
func (s *Store) UpdateSession(sess *gamedb.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET account_id = ?, char_id = ? WHERE id = ?",
		sess.Account.ID, charID(sess.Character), sess.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: update session %d: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gamedb.ErrNotFound
	}
	return nil
}

// RemoveSession deletes a stored session.
func (s *Store) RemoveSession(sess *gamedb.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sess.ID); err != nil {
		return fmt.Errorf("sqlstore: remove session %d: %w", sess.ID, err)
	}
	return nil
}

// SessionsByAccount returns the stored sessions of an account.
func (s *Store) SessionsByAccount(acct *gamedb.Account) ([]*gamedb.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.start_time, c.id, c.name, c.class, c.owner_id
		FROM sessions s LEFT JOIN characters c ON c.id = s.char_id
		WHERE s.account_id = ? ORDER BY s.id`, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: sessions of account %d: %w", acct.ID, err)
	}
	defer rows.Close()

	var out []*gamedb.Session
	for rows.Next() {
		sess := &gamedb.Session{Account: acct}
		var (
			start  int64
			cid    sql.NullInt64
			cname  sql.NullString
			cclass sql.NullString
			cowner sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &start, &cid, &cname, &cclass, &cowner); err != nil {
			return nil, err
		}
		sess.StartTime = time.Unix(start, 0)
		if cid.Valid {
			sess.Character = &gamedb.Character{ID: int(cid.Int64), Name: cname.String, Class: cclass.String, OwnerID: int(cowner.Int64)}
		} else {
			anon := gamedb.AnonCharacter
			sess.Character = &anon
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func charID(c *gamedb.Character) int {
	if c == nil {
		return 0
	}
	return c.ID
}
