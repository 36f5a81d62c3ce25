// Package memory implements bounded per-user conversation memory.
//
// Each user has an ordered log of turns capped at MaxEntries; the oldest
// turns are evicted first when the cap is exceeded. Two backends exist: a
// JSON file rewritten wholesale on every mutation (one document per
// persona), and a SQLite table sharing the application database. The
// orchestrator only sees the Store interface, so further backends can be
// substituted without touching it.
package memory

import "context"

// MaxEntries is the per-user log cap. Appending past the cap evicts the
// oldest entries until the log is exactly MaxEntries long again.
const MaxEntries = 50

// Role tags who produced a memory entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is a single stored turn. Insertion order is significant.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store is the per-user conversation log contract.
// Implementations must be safe for concurrent use.
type Store interface {
	// Recent returns the last limit entries for the user in chronological
	// order (oldest of the window first). An unknown user yields an empty
	// slice, never an error.
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)

	// Append adds one entry to the user's log, evicting the oldest entries
	// beyond MaxEntries, and durably persists the change before returning.
	// A persistence failure aborts the mutation.
	Append(ctx context.Context, userID string, role Role, content string) error

	// Clear resets the user's log to empty and persists.
	Clear(ctx context.Context, userID string) error
}
