package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"regimen/internal/schedule"
	"regimen/internal/store"
	logx "regimen/pkg/logx"
)

// RunBackfill walks every known user and fills missing horizon dates.
// One user's failure is logged and does not abort the sweep; the first
// error is reported at the end.
func (s *Service) RunBackfill(ctx context.Context) error {
	if s.backend == nil {
		return store.ErrNoStorage
	}
	start := time.Now()
	users, err := s.backend.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	lim := s.limiter()
	var firstErr error
	added, failed := 0, 0
	for _, user := range users {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		n, err := s.store.Backfill(ctx, user, time.Now())
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			// DataLossPrevented here would mean a pattern-less user with a
			// previously non-empty schedule; backfill never empties, so any
			// error is worth a look.
			s.log.Error("user backfill failed", logx.String("user", user), logx.Err(err))
			continue
		}
		added += n
	}
	s.log.Info("backfill sweep finished",
		logx.Int("users", len(users)),
		logx.Int("items_added", added),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(start)))
	return firstErr
}

// RunInsights re-mines every user's completion history into suggestions
// and swaps them into the cache.
func (s *Service) RunInsights(ctx context.Context) error {
	if s.backend == nil {
		return store.ErrNoStorage
	}
	start := time.Now()
	users, err := s.backend.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	lim := s.limiter()
	var firstErr error
	for _, user := range users {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		if err := s.refreshUser(ctx, user); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.log.Error("user insights failed", logx.String("user", user), logx.Err(err))
		}
	}
	s.log.Info("insights refresh finished",
		logx.Int("users", len(users)),
		logx.Duration("took", time.Since(start)))
	return firstErr
}

func (s *Service) refreshUser(ctx context.Context, user string) error {
	sched, ok, err := s.backend.LoadSchedule(ctx, user)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if !ok {
		return nil
	}
	from, to := schedule.HorizonRange(time.Now())
	completions, err := s.backend.LoadCompletions(ctx, user, from, to)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Completion history is external and best-effort; mine what we have.
		s.log.Warn("completions unavailable; mining schedule only", logx.String("user", user), logx.Err(err))
		completions = schedule.Completions{}
	}

	// Future occurrences are necessarily uncompleted; feeding them to the
	// miner would deflate every (hour, item) bucket's completion rate.
	today := time.Now().Format(schedule.DateKey)
	past := schedule.Schedule{}
	for key, day := range sched {
		if key <= today {
			past[key] = day
		}
	}

	suggestions := s.miner.Mine(completions, past)
	s.smu.Lock()
	s.suggestions[user] = suggestions
	s.smu.Unlock()
	return nil
}
