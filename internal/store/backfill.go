package store

import (
	"context"
	"fmt"
	"time"

	"regimen/internal/eventbus"
	"regimen/internal/schedule"
	logx "regimen/pkg/logx"
)

// Backfill materializes items for every date in the horizon around now
// whose key is absent from the user's schedule. A date mapped to an
// explicitly empty list counts as present and is never regenerated; no
// already-present date key is altered. Returns the number of items added.
func (s *Store) Backfill(ctx context.Context, user string, now time.Time) (int, error) {
	if s.backend == nil {
		return 0, ErrNoStorage
	}
	l := s.userLock(user)
	l.Lock()
	defer l.Unlock()

	current, _, err := s.backend.LoadSchedule(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("load schedule: %w", err)
	}

	from, to := schedule.HorizonRange(now)
	missing := missingDates(current, from, to)
	if len(missing) == 0 {
		return 0, nil
	}

	// Generate only over the minimal range covering the gaps, then keep
	// occurrences that land on a missing date. Present dates must stay
	// byte-identical whatever the patterns would emit for them.
	genEnd := missing[len(missing)-1]
	missingSet := make(map[string]struct{}, len(missing))
	for _, d := range missing {
		missingSet[d.Format(schedule.DateKey)] = struct{}{}
	}

	patterns, err := s.backend.ListPatterns(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("list patterns: %w", err)
	}

	next := current.Clone()
	added := 0
	for _, p := range patterns {
		occs := s.gen.Generate(p, genEnd)
		filtered := occs[:0]
		for _, at := range occs {
			if _, ok := missingSet[at.Format(schedule.DateKey)]; ok {
				filtered = append(filtered, at)
			}
		}
		if len(filtered) == 0 {
			continue
		}
		var report schedule.MergeReport
		next, report = s.merger.Apply(p, filtered, next)
		added += report.Added
	}
	if added == 0 {
		return 0, nil
	}

	if err := s.saveLocked(ctx, user, next, current, false); err != nil {
		return 0, err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "backfill.completed", User: user, Data: map[string]int{
			"added":   added,
			"missing": len(missing),
		}})
	}
	s.log.Info("backfill completed",
		logx.String("user", user),
		logx.Int("missing_dates", len(missing)),
		logx.Int("items_added", added))
	return added, nil
}

// missingDates returns horizon dates absent from s, ascending.
func missingDates(s schedule.Schedule, from, to time.Time) []time.Time {
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if _, present := s[d.Format(schedule.DateKey)]; !present {
			out = append(out, d)
		}
	}
	return out
}

// Regenerate rebuilds one pattern's materialized items over the horizon
// around now: every item back-referencing the pattern is removed from the
// affected range, then the pattern is re-applied. Manual items and other
// patterns' items are untouched; identical inputs reproduce identical
// item ids.
func (s *Store) Regenerate(ctx context.Context, user string, p schedule.Pattern, now time.Time) (schedule.MergeReport, error) {
	if s.backend == nil {
		return schedule.MergeReport{}, ErrNoStorage
	}
	l := s.userLock(user)
	l.Lock()
	defer l.Unlock()

	current, _, err := s.backend.LoadSchedule(ctx, user)
	if err != nil {
		return schedule.MergeReport{}, fmt.Errorf("load schedule: %w", err)
	}

	from, to := schedule.HorizonRange(now)
	stripped := schedule.RemovePatternItems(current, p.ID, from, to)

	occs := s.gen.Generate(p, to)
	bounded := occs[:0]
	for _, at := range occs {
		if !at.Before(from) && !at.After(to.AddDate(0, 0, 1)) {
			bounded = append(bounded, at)
		}
	}

	next, report := s.merger.Apply(p, bounded, stripped)
	// Regenerating the sole pattern after disabling or shrinking it may
	// legitimately empty the schedule; the explicit regenerate request is
	// the override. The pre-write snapshot still guards the old state.
	if err := s.saveLocked(ctx, user, next, current, true); err != nil {
		return report, err
	}
	return report, nil
}

// SavePattern upserts a pattern and rematerializes its items, which is
// the only sanctioned way to change a pattern that already has
// materialized occurrences.
func (s *Store) SavePattern(ctx context.Context, user string, p schedule.Pattern, now time.Time) (schedule.MergeReport, error) {
	if s.backend == nil {
		return schedule.MergeReport{}, ErrNoStorage
	}
	if p.ID == "" {
		return schedule.MergeReport{}, fmt.Errorf("pattern id is required")
	}
	if err := s.backend.PutPattern(ctx, user, p); err != nil {
		return schedule.MergeReport{}, fmt.Errorf("put pattern: %w", err)
	}
	return s.Regenerate(ctx, user, p, now)
}

// DeletePattern removes a pattern definition. Materialized items keep
// their back-reference and survive unless cascade is set, in which case
// items in the horizon around now are removed too (behind the usual
// snapshot-then-write sequence).
func (s *Store) DeletePattern(ctx context.Context, user, patternID string, cascade bool, now time.Time) error {
	if s.backend == nil {
		return ErrNoStorage
	}
	if err := s.backend.DeletePattern(ctx, user, patternID); err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	if !cascade {
		return nil
	}

	l := s.userLock(user)
	l.Lock()
	defer l.Unlock()

	current, _, err := s.backend.LoadSchedule(ctx, user)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	from, to := schedule.HorizonRange(now)
	next := schedule.RemovePatternItems(current, patternID, from, to)
	// Cascade removal may legitimately empty the schedule; the explicit
	// cascade request is the override.
	return s.saveLocked(ctx, user, next, current, true)
}
