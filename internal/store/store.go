package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"regimen/internal/eventbus"
	"regimen/internal/schedule"
	"regimen/internal/storage"
	logx "regimen/pkg/logx"
)

// ErrDataLossPrevented is returned when a save would silently replace a
// non-empty schedule with an empty one. The caller must retry with
// override set to proceed.
var ErrDataLossPrevented = errors.New("write rejected: would replace non-empty schedule with empty one")

// ErrNoStorage is returned when the store was built without a backend.
var ErrNoStorage = errors.New("no storage backend configured")

// DefaultSnapshotKeep caps retained pre-write snapshots per user.
const DefaultSnapshotKeep = 20

// Config tunes store policy. Zero values take defaults.
type Config struct {
	// SnapshotKeep caps retained snapshots per user (default 20).
	SnapshotKeep int

	// HideCategories lists item categories filtered from View responses.
	// Hidden items remain persisted in full.
	HideCategories []schedule.Category
}

// Store applies safety policy on top of a storage backend.
type Store struct {
	backend storage.Backend
	gen     *schedule.Generator
	merger  *schedule.Merger
	bus     eventbus.Bus
	log     logx.Logger

	mu           sync.Mutex
	userLocks    map[string]*sync.Mutex
	snapshotKeep int
	hidden       map[schedule.Category]bool
}

func New(backend storage.Backend, gen *schedule.Generator, merger *schedule.Merger, bus eventbus.Bus, cfg Config, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	keep := cfg.SnapshotKeep
	if keep <= 0 {
		keep = DefaultSnapshotKeep
	}
	s := &Store{
		backend:      backend,
		gen:          gen,
		merger:       merger,
		bus:          bus,
		log:          log,
		userLocks:    map[string]*sync.Mutex{},
		snapshotKeep: keep,
	}
	s.SetHidden(cfg.HideCategories)
	return s
}

// SetHidden swaps the read-path category filter (config hot reload).
func (s *Store) SetHidden(cats []schedule.Category) {
	hidden := make(map[schedule.Category]bool, len(cats))
	for _, c := range cats {
		hidden[c] = true
	}
	s.mu.Lock()
	s.hidden = hidden
	s.mu.Unlock()
}

func (s *Store) userLock(user string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.userLocks[user]
	if l == nil {
		l = &sync.Mutex{}
		s.userLocks[user] = l
	}
	return l
}

// Save persists candidate as the user's full schedule, enforcing the
// data-loss invariant against the currently persisted state.
func (s *Store) Save(ctx context.Context, user string, candidate schedule.Schedule, override bool) error {
	if s.backend == nil {
		return ErrNoStorage
	}
	l := s.userLock(user)
	l.Lock()
	defer l.Unlock()

	previous, _, err := s.backend.LoadSchedule(ctx, user)
	if err != nil {
		return fmt.Errorf("load previous schedule: %w", err)
	}
	return s.saveLocked(ctx, user, candidate, previous, override)
}

// saveLocked implements the snapshot-then-write sequence. The caller
// holds the user lock.
func (s *Store) saveLocked(ctx context.Context, user string, candidate, previous schedule.Schedule, override bool) error {
	prevItems := previous.TotalItems()
	candItems := candidate.TotalItems()

	if prevItems > 0 && candItems == 0 && !override {
		// Best-effort snapshot so the rejected state is recoverable even
		// if the caller later forces the write through other means.
		s.snapshot(ctx, user, "rejected-empty-write", previous)
		s.log.Warn("save rejected (would empty schedule)",
			logx.String("user", user),
			logx.Int("previous_items", prevItems))
		return fmt.Errorf("%w (previous had %d items)", ErrDataLossPrevented, prevItems)
	}

	if prevItems > 0 {
		// Copy-on-write safety net: the old state is snapshotted before
		// the new state commits. Failure is observable but non-fatal.
		s.snapshot(ctx, user, "pre-write", previous)
	}

	if err := s.backend.SaveSchedule(ctx, user, candidate); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "schedule.saved", User: user, Data: map[string]int{
			"items": candItems,
			"dates": len(candidate),
		}})
	}
	return nil
}

func (s *Store) snapshot(ctx context.Context, user, label string, prev schedule.Schedule) {
	id, err := s.backend.WriteSnapshot(ctx, user, label, prev)
	if err != nil {
		s.log.Error("schedule snapshot failed", logx.String("user", user), logx.String("label", label), logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "schedule.backup_failed", User: user, Data: err.Error()})
		}
		return
	}
	s.log.Debug("schedule snapshot written", logx.String("user", user), logx.String("label", label), logx.String("snapshot", id))

	s.mu.Lock()
	keep := s.snapshotKeep
	s.mu.Unlock()
	if err := s.backend.PruneSnapshots(ctx, user, keep); err != nil {
		s.log.Debug("snapshot prune failed", logx.String("user", user), logx.Err(err))
	}
}

// View returns the user's schedule with hidden categories filtered out.
// Filtering happens only here, on the response path; the persisted item
// set is never reduced, so re-enabling a category restores prior data.
func (s *Store) View(ctx context.Context, user string) (schedule.Schedule, error) {
	if s.backend == nil {
		return nil, ErrNoStorage
	}
	full, _, err := s.backend.LoadSchedule(ctx, user)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	hidden := s.hidden
	s.mu.Unlock()
	if len(hidden) == 0 {
		return full.Clone(), nil
	}

	out := schedule.Schedule{}
	for key, day := range full {
		kept := schedule.Day{}
		for _, it := range day {
			if !hidden[it.Template.Category] {
				kept = append(kept, it)
			}
		}
		out[key] = kept
	}
	return out, nil
}

// Snapshots lists retained snapshots for a user, newest first.
func (s *Store) Snapshots(ctx context.Context, user string) ([]storage.SnapshotInfo, error) {
	if s.backend == nil {
		return nil, ErrNoStorage
	}
	return s.backend.ListSnapshots(ctx, user)
}
