package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regimen/internal/config"
	"regimen/internal/eventbus"
	"regimen/internal/insights"
	"regimen/internal/schedule"
	"regimen/internal/services/maintenance"
	"regimen/internal/storage"
	"regimen/internal/store"
	logx "regimen/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(logxConfig(cfg))
	defer func() { _ = logSvc.Close() }()
	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.SetValidator(func(_ context.Context, c *config.Config) error { return c.Validate() })

	busyTimeout, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	backend, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		log.Error("storage open failed", logx.Err(err))
		os.Exit(1)
	}
	if backend == nil {
		log.Warn("storage disabled; schedules will not persist")
	}

	bus := eventbus.New()
	gen := schedule.NewGenerator(schedule.GeneratorConfig{
		Timezone:         cfg.Schedule.Timezone,
		DefaultTimeOfDay: cfg.Schedule.DefaultTimeOfDay,
	}, log.With(logx.String("component", "generator")))

	window, _ := config.ParseDurationField("schedule.conflict_window", cfg.Schedule.ConflictWindow)
	merger := schedule.NewMerger(schedule.MergerConfig{ConflictWindow: window}, bus,
		log.With(logx.String("component", "merger")))

	st := store.New(backend, gen, merger, bus, store.Config{
		SnapshotKeep:   cfg.Storage.SnapshotKeep,
		HideCategories: hiddenCategories(cfg),
	}, log.With(logx.String("component", "store")))

	miner := insights.NewMiner(log.With(logx.String("component", "insights")))
	maint := maintenance.New(maintenanceConfig(cfg), st, backend, miner,
		log.With(logx.String("component", "maintenance")))
	maint.Start(ctx)

	// Config hot reload: re-apply logging, visibility, and job specs.
	sub := mgr.Subscribe(4)
	go func() { _ = mgr.Watch(ctx) }()
	go func() {
		for c := range sub {
			logSvc.Apply(logxConfig(c))
			st.SetHidden(hiddenCategories(c))
			maint.Apply(ctx, maintenanceConfig(c))
			log.Info("config applied")
		}
	}()

	log.Info("regimend started", logx.String("config", cfgPath), logx.String("storage", cfg.Storage.Driver))

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	maint.Stop(stopCtx)
	mgr.Unsubscribe(sub)
	if backend != nil {
		_ = backend.Close()
	}
}

func logxConfig(c *config.Config) logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func maintenanceConfig(c *config.Config) maintenance.Config {
	return maintenance.Config{
		Enabled:      c.Maintenance.Enabled,
		BackfillSpec: c.Maintenance.BackfillSpec,
		InsightsSpec: c.Maintenance.InsightsSpec,
		Timezone:     c.Schedule.Timezone,
		UsersPerSec:  c.Maintenance.UsersPerSec,
	}
}

func hiddenCategories(c *config.Config) []schedule.Category {
	out := make([]schedule.Category, 0, len(c.Visibility.HideCategories))
	for _, raw := range c.Visibility.HideCategories {
		out = append(out, schedule.Category(raw))
	}
	return out
}
