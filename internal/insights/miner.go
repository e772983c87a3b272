// Package insights mines completion history for schedule suggestions.
//
// Both analyses are read-only and side-effect free: they never mutate the
// schedule or the completion records, and they skip (rather than fail on)
// entries with missing or unparsable times. They tolerate slightly stale
// input, so callers may run them off the request path.
package insights

import (
	"fmt"
	"sort"

	"regimen/internal/schedule"
	logx "regimen/pkg/logx"
)

type SuggestionType string

const (
	TypeHabitStacking SuggestionType = "habit_stacking"
	TypeReschedule    SuggestionType = "reschedule"
)

// Suggestion is an ephemeral recommendation; nothing here persists it.
type Suggestion struct {
	Type       SuggestionType `json:"type"`
	Subjects   []string       `json:"subjects"`
	Frequency  int            `json:"frequency"`
	Confidence float64        `json:"confidence"`
	Message    string         `json:"message"`
}

const (
	// minPairCount is the co-completion count needed before a pair is
	// suggested for stacking.
	minPairCount = 3

	// minBucketSize is the observation count needed before an
	// (hour, item) bucket may produce a reschedule suggestion.
	minBucketSize = 3

	// maxCompletionRate is the completed fraction below which an
	// (hour, item) bucket is considered a bad slot.
	maxCompletionRate = 0.3
)

type Miner struct {
	log logx.Logger
}

func NewMiner(log logx.Logger) *Miner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Miner{log: log}
}

// Mine runs both analyses over the user's completion history and
// schedule. The result order is deterministic: stacking suggestions
// first, then reschedules, each sorted by subject.
func (m *Miner) Mine(completions schedule.Completions, sched schedule.Schedule) []Suggestion {
	out := m.habitStacking(completions, sched)
	out = append(out, m.reschedule(completions, sched)...)
	m.log.Debug("mining finished",
		logx.Int("dates", len(completions)),
		logx.Int("suggestions", len(out)))
	return out
}

// habitStacking counts unordered pairs of item names completed on the
// same date; pairs co-completed at least minPairCount times become
// suggestions, carrying the count as confidence.
func (m *Miner) habitStacking(completions schedule.Completions, sched schedule.Schedule) []Suggestion {
	pairCounts := map[[2]string]int{}

	for date, statuses := range completions {
		names := completedNames(statuses, sched[date])
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				pairCounts[[2]string{names[i], names[j]}]++
			}
		}
	}

	var out []Suggestion
	for pair, count := range pairCounts {
		if count < minPairCount {
			continue
		}
		out = append(out, Suggestion{
			Type:       TypeHabitStacking,
			Subjects:   []string{pair[0], pair[1]},
			Frequency:  count,
			Confidence: float64(count),
			Message: fmt.Sprintf("You've completed %q and %q together %d times; consider scheduling them back to back.",
				pair[0], pair[1], count),
		})
	}
	sortSuggestions(out)
	return out
}

// completedNames returns the sorted, deduplicated names of day items
// whose status is completed. Items without a usable scheduled time are
// skipped, not failed on.
func completedNames(statuses map[string]schedule.CompletionStatus, day schedule.Day) []string {
	seen := map[string]struct{}{}
	for _, it := range day {
		if it.ScheduledAt.IsZero() || it.Template.Name == "" {
			continue
		}
		if statuses[it.ID] != schedule.StatusCompleted {
			continue
		}
		seen[it.Template.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type hourBucket struct {
	hour int
	name string
}

// reschedule buckets every scheduled occurrence by (hour, item name);
// buckets with at least minBucketSize observations and a completed
// fraction under maxCompletionRate suggest moving the item away from
// that hour, carrying the observed completion percentage.
func (m *Miner) reschedule(completions schedule.Completions, sched schedule.Schedule) []Suggestion {
	total := map[hourBucket]int{}
	done := map[hourBucket]int{}

	for date, day := range sched {
		for _, it := range day {
			if it.ScheduledAt.IsZero() || it.Template.Name == "" {
				continue
			}
			b := hourBucket{hour: it.ScheduledAt.Hour(), name: it.Template.Name}
			total[b]++
			if completions[date][it.ID] == schedule.StatusCompleted {
				done[b]++
			}
		}
	}

	var out []Suggestion
	for b, n := range total {
		if n < minBucketSize {
			continue
		}
		rate := float64(done[b]) / float64(n)
		if rate >= maxCompletionRate {
			continue
		}
		out = append(out, Suggestion{
			Type:       TypeReschedule,
			Subjects:   []string{b.name},
			Frequency:  n,
			Confidence: rate,
			Message: fmt.Sprintf("%q is completed only %.0f%% of the time when scheduled around %02d:00; consider a different time.",
				b.name, rate*100, b.hour),
		})
	}
	sortSuggestions(out)
	return out
}

func sortSuggestions(s []Suggestion) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Type != s[j].Type {
			return s[i].Type < s[j].Type
		}
		a, b := s[i].Subjects, s[j].Subjects
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}
