package schedule

import (
	"sort"
	"time"
)

// DateKey is the canonical form of schedule map keys.
const DateKey = "2006-01-02"

// Horizon is the rolling window over which schedules are materialized.
const (
	HorizonPast   = 30 * 24 * time.Hour
	HorizonFuture = 42 * 24 * time.Hour // 6 weeks
)

// HorizonRange returns the [past, future] bounds of the backfill horizon
// around now, truncated to whole days.
func HorizonRange(now time.Time) (from, to time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.Add(-HorizonPast), day.Add(HorizonFuture)
}

type PatternType string

const (
	PatternDaily    PatternType = "daily"
	PatternWeekly   PatternType = "weekly"
	PatternBiweekly PatternType = "biweekly"
	PatternMonthly  PatternType = "monthly"
)

// Pattern is a recurrence rule owned by one user.
//
// Date fields use "2006-01-02"; TimeOfDay uses "15:04". A pattern is
// treated as immutable once materialized; updates go through explicit
// regeneration (store.Regenerate).
type Pattern struct {
	ID   string      `json:"id"`
	Type PatternType `json:"pattern_type"`

	// Frequency is the day step for daily patterns (default 1).
	Frequency int `json:"frequency,omitempty"`

	// DaysOfWeek selects weekdays for weekly/biweekly patterns,
	// 0=Sunday..6=Saturday. Empty means all seven.
	DaysOfWeek []int `json:"days_of_week,omitempty"`

	// DaysOfMonth selects days for monthly patterns (1-31).
	// Empty means [1].
	DaysOfMonth []int `json:"days_of_month,omitempty"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`

	// Exceptions suppress individual dates ("2006-01-02").
	Exceptions []string `json:"exceptions,omitempty"`

	// MaxOccurrences caps the expansion (0 = unlimited).
	MaxOccurrences int `json:"max_occurrences,omitempty"`

	Template  Template `json:"template"`
	TimeOfDay string   `json:"time_of_day,omitempty"`
	Enabled   bool     `json:"enabled"`
}

type ItemType string

const (
	// ItemPattern marks items materialized from a recurrence pattern.
	ItemPattern ItemType = "pattern"
	// ItemManual marks items added directly by the user.
	ItemManual ItemType = "manual"
)

// Item is one dated schedule entry.
//
// PatternID is a back-reference, not ownership: deleting a pattern does not
// cascade-delete its items without explicit regeneration.
type Item struct {
	ID          string    `json:"id"`
	PatternID   string    `json:"pattern_id,omitempty"`
	Template    Template  `json:"template"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Type        ItemType  `json:"item_type"`

	Shifted     bool   `json:"shifted,omitempty"`
	ShiftReason string `json:"shift_reason,omitempty"`
}

// Day is the ordered item list for one date, ascending by ScheduledAt.
type Day []Item

// Schedule maps date keys to days for one user.
//
// A key mapped to an empty Day is a meaningful state distinct from an
// absent key: backfill treats it as present and never regenerates it.
type Schedule map[string]Day

// Clone returns a deep-enough copy: fresh map and day slices. Items are
// value types and are copied by assignment.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return Schedule{}
	}
	out := make(Schedule, len(s))
	for k, d := range s {
		nd := make(Day, len(d))
		copy(nd, d)
		out[k] = nd
	}
	return out
}

// TotalItems counts items across all dates.
func (s Schedule) TotalItems() int {
	n := 0
	for _, d := range s {
		n += len(d)
	}
	return n
}

// Dates returns the schedule's date keys in ascending order.
func (s Schedule) Dates() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortDay(d Day) {
	sort.SliceStable(d, func(i, j int) bool {
		if !d[i].ScheduledAt.Equal(d[j].ScheduledAt) {
			return d[i].ScheduledAt.Before(d[j].ScheduledAt)
		}
		return d[i].ID < d[j].ID
	})
}

// CompletionStatus mirrors the external progress store's status integers.
type CompletionStatus int

const (
	StatusPending    CompletionStatus = 0
	StatusInProgress CompletionStatus = 1
	StatusCompleted  CompletionStatus = 2
)

// Completions is read-only history supplied by the external progress
// store: date key -> item id -> status.
type Completions map[string]map[string]CompletionStatus
