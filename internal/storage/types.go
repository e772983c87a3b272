package storage

import (
	"context"
	"time"

	"regimen/internal/schedule"
)

// Config configures storage.
//
// Driver values:
//   - "file": per-user JSON documents under Path (a directory)
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SnapshotInfo describes one retained pre-write snapshot.
type SnapshotInfo struct {
	ID    string
	User  string
	Label string
	At    time.Time
	Items int
}

// Backend is the persistence API used by the store and maintenance
// layers. Implementations must be safe for concurrent use; the store
// serializes writes per user above this interface.
type Backend interface {
	// LoadSchedule returns the user's full schedule. ok is false when the
	// user has no persisted schedule at all (distinct from an empty one).
	LoadSchedule(ctx context.Context, user string) (s schedule.Schedule, ok bool, err error)

	// SaveSchedule persists the full schedule, including explicitly empty
	// days. It replaces the previous state wholesale.
	SaveSchedule(ctx context.Context, user string, s schedule.Schedule) error

	// WriteSnapshot persists a copy of s for later recovery and returns
	// the snapshot id.
	WriteSnapshot(ctx context.Context, user, label string, s schedule.Schedule) (string, error)

	// ListSnapshots returns snapshot metadata, newest first.
	ListSnapshots(ctx context.Context, user string) ([]SnapshotInfo, error)

	// PruneSnapshots drops all but the newest keep snapshots.
	PruneSnapshots(ctx context.Context, user string, keep int) error

	// ListPatterns returns the user's recurrence patterns.
	ListPatterns(ctx context.Context, user string) ([]schedule.Pattern, error)

	// PutPattern inserts or replaces one pattern by id.
	PutPattern(ctx context.Context, user string, p schedule.Pattern) error

	// DeletePattern removes one pattern by id. Materialized items are not
	// touched; cascade removal is the store's decision.
	DeletePattern(ctx context.Context, user, id string) error

	// LoadCompletions reads completion history written by the external
	// progress store, limited to date keys in [from, to].
	LoadCompletions(ctx context.Context, user string, from, to time.Time) (schedule.Completions, error)

	// ListUsers enumerates users with persisted schedules.
	ListUsers(ctx context.Context) ([]string, error)

	Close() error
}
