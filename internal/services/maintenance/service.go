package maintenance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"regimen/internal/insights"
	"regimen/internal/storage"
	"regimen/internal/store"
	logx "regimen/pkg/logx"
)

// Config controls the maintenance service.
type Config struct {
	Enabled bool

	// BackfillSpec is a cron expression for the backfill sweep
	// (default "30 3 * * *").
	BackfillSpec string

	// InsightsSpec is a cron expression for the suggestion refresh
	// (default "0 5 * * 1").
	InsightsSpec string

	// Timezone is an IANA TZ name for the cron triggers.
	Timezone string

	// UsersPerSec rate-limits the per-user sweep (default 5).
	UsersPerSec int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BackfillSpec) == "" {
		c.BackfillSpec = "30 3 * * *"
	}
	if strings.TrimSpace(c.InsightsSpec) == "" {
		c.InsightsSpec = "0 5 * * 1"
	}
	if c.UsersPerSec <= 0 {
		c.UsersPerSec = 5
	}
	return c
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store   *store.Store
	backend storage.Backend
	miner   *insights.Miner

	parser cron.Parser
	c      *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc

	// smu guards the cached suggestion sets.
	smu         sync.RWMutex
	suggestions map[string][]insights.Suggestion
}

func New(cfg Config, st *store.Store, backend storage.Backend, miner *insights.Miner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:         cfg.withDefaults(),
		log:         log,
		store:       st,
		backend:     backend,
		miner:       miner,
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		suggestions: map[string][]insights.Suggestion{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err != nil {
			s.log.Warn("invalid maintenance timezone; using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	if _, err := c.AddFunc(s.cfg.BackfillSpec, func() {
		if err := s.RunBackfill(runCtx); err != nil {
			s.log.Error("backfill sweep failed", logx.Err(err))
		}
	}); err != nil {
		s.log.Error("invalid backfill spec; sweep disabled", logx.String("spec", s.cfg.BackfillSpec), logx.Err(err))
	}
	if _, err := c.AddFunc(s.cfg.InsightsSpec, func() {
		if err := s.RunInsights(runCtx); err != nil {
			s.log.Error("insights refresh failed", logx.Err(err))
		}
	}); err != nil {
		s.log.Error("invalid insights spec; refresh disabled", logx.String("spec", s.cfg.InsightsSpec), logx.Err(err))
	}

	c.Start()
	s.c = c
	s.log.Info("maintenance started",
		logx.String("backfill_spec", s.cfg.BackfillSpec),
		logx.String("insights_spec", s.cfg.InsightsSpec),
		logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("maintenance stopped")
	case <-ctx.Done():
		// stop continues in background
	}
}

// Apply swaps config at runtime; a spec/timezone/enablement change
// restarts the cron entries.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	changed := cfg != s.cfg
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()
	if !changed {
		return
	}

	if running {
		s.Stop(ctx)
	}
	if cfg.Enabled {
		s.mu.Lock()
		if s.c == nil {
			s.startLocked(ctx)
		}
		s.mu.Unlock()
	}
}

// Suggestions returns the most recently mined suggestions for a user.
func (s *Service) Suggestions(user string) []insights.Suggestion {
	s.smu.RLock()
	defer s.smu.RUnlock()
	out := make([]insights.Suggestion, len(s.suggestions[user]))
	copy(out, s.suggestions[user])
	return out
}

func (s *Service) limiter() *rate.Limiter {
	s.mu.Lock()
	rps := s.cfg.UsersPerSec
	s.mu.Unlock()
	return rate.NewLimiter(rate.Limit(rps), rps)
}
