package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/seskeep/seskeep/internal/snapshot"
)

// Entry statuses. An invalid entry stays in the registry so listings show
// it, but its snapshot is never restored; the next setup run replaces it.
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)

// Entry is a cached session. Entries are replaced wholesale, never mutated
// in place: a new setup under the same key produces a new entry.
type Entry struct {
	ID         string             `json:"id"`
	Key        string             `json:"key"`
	SetupTag   string             `json:"setup_tag,omitempty"`
	Status     string             `json:"status"`
	Snapshot   *snapshot.Snapshot `json:"-"`
	Origins    int                `json:"origins"`
	CreatedAt  int64              `json:"created_at"`
	LastUsedAt int64              `json:"last_used_at"`
	UseCount   int                `json:"use_count"`
}

// OriginCount reports how many origins the entry's snapshot covers. When
// the snapshot blob was not loaded (ListEntries) the stored count is used.
func (e *Entry) OriginCount() int {
	if e.Snapshot == nil {
		return e.Origins
	}
	return len(e.Snapshot.Origins)
}

// PutEntry stores an entry, replacing any previous entry for the same key.
func (s *Store) PutEntry(ctx context.Context, e *Entry) error {
	blob, err := e.Snapshot.Encode()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.LastUsedAt == 0 {
		e.LastUsedAt = now
	}
	if e.Status == "" {
		e.Status = StatusValid
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO sessions
			(id, session_key, setup_tag, status, snapshot, origin_count, created_at, last_used_at, use_count)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(session_key) DO UPDATE SET
			id = excluded.id,
			setup_tag = excluded.setup_tag,
			status = excluded.status,
			snapshot = excluded.snapshot,
			origin_count = excluded.origin_count,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at,
			use_count = excluded.use_count`,
		e.ID, e.Key, e.SetupTag, e.Status, blob, e.OriginCount(), e.CreatedAt, e.LastUsedAt, e.UseCount,
	)
	return err
}

// GetEntry retrieves the entry for a key, if the stored setup tag matches.
// A row whose tag differs from setupTag means the setup procedure changed
// since the entry was persisted; the stale row is deleted and nil returned.
func (s *Store) GetEntry(ctx context.Context, sessionKey, setupTag string) (*Entry, error) {
	e := &Entry{}
	var blob []byte

	err := s.DB.QueryRowContext(ctx, `
		SELECT id, session_key, setup_tag, status, snapshot, created_at, last_used_at, use_count
		FROM sessions WHERE session_key = ?`, sessionKey).Scan(
		&e.ID, &e.Key, &e.SetupTag, &e.Status, &blob, &e.CreatedAt, &e.LastUsedAt, &e.UseCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if e.SetupTag != setupTag {
		_, _ = s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, sessionKey)
		return nil, nil
	}

	e.Snapshot, err = snapshot.Decode(blob)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// TouchEntry bumps last_used_at and the use counter.
func (s *Store) TouchEntry(ctx context.Context, sessionKey string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sessions SET last_used_at = ?, use_count = use_count + 1
		WHERE session_key = ?`, time.Now().UnixMilli(), sessionKey)
	return err
}

// MarkInvalid flags the entry for a key as invalid. Missing keys are not
// an error.
func (s *Store) MarkInvalid(ctx context.Context, sessionKey string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sessions SET status = ? WHERE session_key = ?`,
		StatusInvalid, sessionKey)
	return err
}

// DeleteEntry removes the entry for a key. Missing keys are not an error.
func (s *Store) DeleteEntry(ctx context.Context, sessionKey string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, sessionKey)
	return err
}

// DeleteAll empties the persisted registry and returns how many entries
// were removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListKeys returns every persisted session key.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT session_key FROM sessions ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListEntries returns metadata for every persisted entry, newest-used first.
// Snapshots are not loaded; use GetEntry for the blob.
func (s *Store) ListEntries(ctx context.Context) ([]*Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_key, setup_tag, status, origin_count, created_at, last_used_at, use_count
		FROM sessions ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Key, &e.SetupTag, &e.Status, &e.Origins, &e.CreatedAt, &e.LastUsedAt, &e.UseCount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEntries returns the number of persisted entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}
