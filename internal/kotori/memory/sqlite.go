package memory

import (
	"context"
	"fmt"

	"github.com/ayatsuji/kotori/internal/kotori/persona"
	"github.com/ayatsuji/kotori/internal/kotori/store"
)

// SQLiteStore keeps per-user logs in the application database, one row per
// turn. Eviction past MaxEntries happens inside the append transaction so
// the cap invariant holds even across crashes.
type SQLiteStore struct {
	db      *store.Store
	persona string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore returns a SQLiteStore scoped to the given persona name.
// The memories migration must already be applied (store.New guarantees it).
func NewSQLiteStore(db *store.Store, personaName string) *SQLiteStore {
	return &SQLiteStore{db: db, persona: persona.SanitizeName(personaName)}
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT role, content FROM memories
		WHERE persona = ? AND user_id = ?
		ORDER BY id DESC LIMIT ?
	`, s.persona, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recent for %s: %w", userID, err)
	}
	defer rows.Close()

	var newestFirst []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Content); err != nil {
			return nil, fmt.Errorf("memory: scan entry: %w", err)
		}
		newestFirst = append(newestFirst, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: recent for %s: %w", userID, err)
	}

	// Reverse into chronological order.
	out := make([]Entry, len(newestFirst))
	for i, e := range newestFirst {
		out[len(out)-1-i] = e
	}
	return out, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, userID string, role Role, content string) error {
	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories (persona, user_id, role, content)
		VALUES (?, ?, ?, ?)
	`, s.persona, userID, string(role), content); err != nil {
		return fmt.Errorf("memory: insert entry: %w", err)
	}

	// Evict the oldest rows beyond the cap.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM memories
		WHERE persona = ? AND user_id = ? AND id NOT IN (
			SELECT id FROM memories
			WHERE persona = ? AND user_id = ?
			ORDER BY id DESC LIMIT ?
		)
	`, s.persona, userID, s.persona, userID, MaxEntries); err != nil {
		return fmt.Errorf("memory: evict old entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit append: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM memories WHERE persona = ? AND user_id = ?
	`, s.persona, userID); err != nil {
		return fmt.Errorf("memory: clear %s: %w", userID, err)
	}
	return nil
}
