package schedule

import (
	"time"

	"regimen/internal/eventbus"
	logx "regimen/pkg/logx"
)

// ConflictWindow is the default spacing below which a generated
// occurrence is suppressed in favor of an existing item.
const ConflictWindow = 15 * time.Minute

// itemIDFormat renders the occurrence timestamp inside deterministic ids.
const itemIDFormat = "20060102T1504"

// ItemID derives the deterministic id for a pattern-sourced item. Same
// pattern + same occurrence always yields the same id, which is what
// makes regeneration idempotent.
func ItemID(patternID string, at time.Time) string {
	return patternID + "-" + at.UTC().Format(itemIDFormat)
}

// SkippedConflict records one occurrence dropped by the conflict rule.
// Informational only; the existing item always wins.
type SkippedConflict struct {
	Date       string    `json:"date"`
	PatternID  string    `json:"pattern_id"`
	At         time.Time `json:"at"`
	ExistingID string    `json:"existing_id"`
}

// MergeReport summarizes one Apply call for optional caller reporting.
type MergeReport struct {
	Added   int
	Skipped []SkippedConflict
}

// Merger stamps occurrences into items and inserts them into schedules.
type Merger struct {
	window time.Duration
	bus    eventbus.Bus
	log    logx.Logger
}

// MergerConfig tunes the merger. Zero values take defaults.
type MergerConfig struct {
	ConflictWindow time.Duration
}

func NewMerger(cfg MergerConfig, bus eventbus.Bus, log logx.Logger) *Merger {
	if log.IsZero() {
		log = logx.Nop()
	}
	w := cfg.ConflictWindow
	if w <= 0 {
		w = ConflictWindow
	}
	return &Merger{window: w, bus: bus, log: log}
}

// Apply builds an item per occurrence and inserts it into a copy of
// existing. Candidates within the conflict window of any item already on
// that date are dropped silently (recorded in the report, published on
// the bus, never an error). Every touched day stays sorted ascending by
// scheduled time.
func (m *Merger) Apply(p Pattern, occurrences []time.Time, existing Schedule) (Schedule, MergeReport) {
	out := existing.Clone()
	var report MergeReport

	for _, at := range occurrences {
		key := at.Format(DateKey)
		day := out[key]

		if conflictID, conflict := findConflict(day, at, m.window); conflict {
			sk := SkippedConflict{Date: key, PatternID: p.ID, At: at, ExistingID: conflictID}
			report.Skipped = append(report.Skipped, sk)
			if m.bus != nil {
				m.bus.Publish(eventbus.Event{Type: "schedule.conflict_skipped", Data: sk})
			}
			m.log.Debug("occurrence skipped (conflict)",
				logx.String("pattern", p.ID),
				logx.String("date", key),
				logx.String("existing", conflictID))
			continue
		}

		day = append(day, Item{
			ID:          ItemID(p.ID, at),
			PatternID:   p.ID,
			Template:    p.Template,
			ScheduledAt: at,
			Type:        ItemPattern,
		})
		sortDay(day)
		out[key] = day
		report.Added++
	}
	return out, report
}

func findConflict(day Day, at time.Time, window time.Duration) (string, bool) {
	for _, it := range day {
		delta := it.ScheduledAt.Sub(at)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			return it.ID, true
		}
	}
	return "", false
}

// RemovePatternItems strips every item materialized from patternID whose
// date falls in [from, to], returning a copy. Date keys stay present even
// when emptied: an explicitly empty day is meaningful and must not look
// absent to backfill. Manual items and other patterns' items are never
// touched, which is what lets a single pattern regenerate safely.
func RemovePatternItems(s Schedule, patternID string, from, to time.Time) Schedule {
	out := s.Clone()
	fromKey := from.Format(DateKey)
	toKey := to.Format(DateKey)
	for key, day := range out {
		if key < fromKey || key > toKey {
			continue
		}
		kept := day[:0]
		for _, it := range day {
			if it.PatternID != patternID {
				kept = append(kept, it)
			}
		}
		out[key] = kept
	}
	return out
}
