package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage selects the persistence backend for schedules and snapshots.
	Storage StorageConfig `json:"storage"`

	// Schedule tunes the generation/merge core.
	Schedule ScheduleConfig `json:"schedule,omitempty"`

	// Maintenance controls the background backfill/insights jobs.
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`

	// Visibility hides item categories from the read path.
	// Hidden categories are still persisted in full; toggling a category
	// back on restores prior data with no loss.
	Visibility VisibilityConfig `json:"visibility,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./regimen.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// SnapshotKeep caps retained pre-write snapshots per user (default 20).
	SnapshotKeep int `json:"snapshot_keep,omitempty"`
}

// ScheduleConfig tunes the generator/merger.
//
// All durations are Go duration strings (e.g. "15m", "1h").
type ScheduleConfig struct {
	// Timezone is an IANA TZ name used to interpret pattern dates and
	// times of day. Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`

	// ConflictWindow overrides the merge conflict window (default "15m").
	ConflictWindow string `json:"conflict_window,omitempty"`

	// DefaultTimeOfDay is used when a pattern's time_of_day is missing
	// or unparsable (default "08:00").
	DefaultTimeOfDay string `json:"default_time_of_day,omitempty"`
}

// MaintenanceConfig controls the cron-driven background jobs.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`

	// BackfillSpec is a cron expression for the backfill sweep
	// (default "30 3 * * *").
	BackfillSpec string `json:"backfill_spec,omitempty"`

	// InsightsSpec is a cron expression for the suggestion refresh
	// (default "0 5 * * 1").
	InsightsSpec string `json:"insights_spec,omitempty"`

	// UsersPerSec rate-limits the per-user sweep (default 5).
	UsersPerSec int `json:"users_per_sec,omitempty"`
}

type VisibilityConfig struct {
	// HideCategories lists item categories filtered out of read
	// responses (e.g. ["supplement"]).
	HideCategories []string `json:"hide_categories,omitempty"`
}

// Validate checks field formats that would otherwise fail deep inside a
// component. It does not apply defaults; components own their defaults.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("schedule.conflict_window", c.Schedule.ConflictWindow); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if tod := strings.TrimSpace(c.Schedule.DefaultTimeOfDay); tod != "" {
		if _, err := time.Parse("15:04", tod); err != nil {
			return fmt.Errorf("schedule.default_time_of_day: invalid time %q", tod)
		}
	}
	if c.Maintenance.UsersPerSec < 0 {
		return fmt.Errorf("maintenance.users_per_sec: must be >= 0")
	}
	return nil
}
