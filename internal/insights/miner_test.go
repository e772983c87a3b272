package insights

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regimen/internal/schedule"
	logx "regimen/pkg/logx"
)

func item(id, name string, at time.Time) schedule.Item {
	return schedule.Item{
		ID:          id,
		Template:    schedule.Template{Name: name, Enabled: true},
		ScheduledAt: at,
		Type:        schedule.ItemManual,
	}
}

func TestHabitStackingPairs(t *testing.T) {
	t.Parallel()
	m := NewMiner(logx.Nop())

	sched := schedule.Schedule{}
	completions := schedule.Completions{}
	// Vitamin D and Walk complete together on 4 dates; Stretch joins only twice.
	for d := 1; d <= 4; d++ {
		key := fmt.Sprintf("2024-01-%02d", d)
		at := time.Date(2024, 1, d, 8, 0, 0, 0, time.UTC)
		day := schedule.Day{
			item("vitd-"+key, "Vitamin D", at),
			item("walk-"+key, "Walk", at.Add(time.Hour)),
			item("stretch-"+key, "Stretch", at.Add(2*time.Hour)),
		}
		sched[key] = day
		statuses := map[string]schedule.CompletionStatus{
			"vitd-" + key: schedule.StatusCompleted,
			"walk-" + key: schedule.StatusCompleted,
		}
		if d <= 2 {
			statuses["stretch-"+key] = schedule.StatusCompleted
		}
		completions[key] = statuses
	}

	got := m.Mine(completions, sched)

	var stacking []Suggestion
	for _, s := range got {
		if s.Type == TypeHabitStacking {
			stacking = append(stacking, s)
		}
	}
	require.Len(t, stacking, 1)
	assert.Equal(t, []string{"Vitamin D", "Walk"}, stacking[0].Subjects)
	assert.Equal(t, 4, stacking[0].Frequency)
	assert.InDelta(t, 4.0, stacking[0].Confidence, 0.001)
}

func TestRescheduleLowCompletionBucket(t *testing.T) {
	t.Parallel()
	m := NewMiner(logx.Nop())

	sched := schedule.Schedule{}
	completions := schedule.Completions{}
	// "Run" at 06:00 on 5 dates, completed once: rate 0.2 < 0.3.
	for d := 1; d <= 5; d++ {
		key := fmt.Sprintf("2024-01-%02d", d)
		id := "run-" + key
		sched[key] = schedule.Day{item(id, "Run", time.Date(2024, 1, d, 6, 0, 0, 0, time.UTC))}
		if d == 1 {
			completions[key] = map[string]schedule.CompletionStatus{id: schedule.StatusCompleted}
		}
	}

	got := m.Mine(completions, sched)
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, TypeReschedule, s.Type)
	assert.Equal(t, []string{"Run"}, s.Subjects)
	assert.Equal(t, 5, s.Frequency)
	assert.InDelta(t, 0.2, s.Confidence, 0.001)
	assert.Contains(t, s.Message, "06:00")
}

func TestRescheduleThresholds(t *testing.T) {
	t.Parallel()
	m := NewMiner(logx.Nop())

	mk := func(days, completed int) (schedule.Schedule, schedule.Completions) {
		sched := schedule.Schedule{}
		completions := schedule.Completions{}
		for d := 1; d <= days; d++ {
			key := fmt.Sprintf("2024-02-%02d", d)
			id := "med-" + key
			sched[key] = schedule.Day{item(id, "Meditate", time.Date(2024, 2, d, 22, 0, 0, 0, time.UTC))}
			if d <= completed {
				completions[key] = map[string]schedule.CompletionStatus{id: schedule.StatusCompleted}
			}
		}
		return sched, completions
	}

	// Too few observations: 2 misses out of 2 is not enough signal.
	sched, completions := mk(2, 0)
	assert.Empty(t, m.Mine(completions, sched))

	// Rate at the threshold is not suggested; only strictly below.
	sched, completions = mk(10, 3)
	assert.Empty(t, m.Mine(completions, sched))

	sched, completions = mk(10, 2)
	assert.Len(t, m.Mine(completions, sched), 1)
}

func TestMineSkipsUnusableItems(t *testing.T) {
	t.Parallel()
	m := NewMiner(logx.Nop())

	sched := schedule.Schedule{}
	completions := schedule.Completions{}
	for d := 1; d <= 4; d++ {
		key := fmt.Sprintf("2024-03-%02d", d)
		sched[key] = schedule.Day{
			// No scheduled time and no name: both must be ignored, not fail.
			{ID: "zero-" + key, Template: schedule.Template{Name: "Ghost"}},
			item("anon-"+key, "", time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC)),
		}
		completions[key] = map[string]schedule.CompletionStatus{
			"zero-" + key: schedule.StatusCompleted,
			"anon-" + key: schedule.StatusCompleted,
		}
	}

	assert.Empty(t, m.Mine(completions, sched))
}

func TestMineDeterministicOrder(t *testing.T) {
	t.Parallel()
	m := NewMiner(logx.Nop())

	sched := schedule.Schedule{}
	completions := schedule.Completions{}
	for d := 1; d <= 3; d++ {
		key := fmt.Sprintf("2024-04-%02d", d)
		at := time.Date(2024, 4, d, 7, 0, 0, 0, time.UTC)
		sched[key] = schedule.Day{
			item("a-"+key, "Creatine", at),
			item("b-"+key, "Protein", at.Add(time.Minute)),
			item("c-"+key, "Zinc", at.Add(2*time.Minute)),
		}
		completions[key] = map[string]schedule.CompletionStatus{
			"a-" + key: schedule.StatusCompleted,
			"b-" + key: schedule.StatusCompleted,
			"c-" + key: schedule.StatusCompleted,
		}
	}

	first := m.Mine(completions, sched)
	second := m.Mine(completions, sched)
	require.Equal(t, first, second)

	// Three items co-completed three times yield all three pairs, sorted.
	require.Len(t, first, 3)
	assert.Equal(t, []string{"Creatine", "Protein"}, first[0].Subjects)
	assert.Equal(t, []string{"Creatine", "Zinc"}, first[1].Subjects)
	assert.Equal(t, []string{"Protein", "Zinc"}, first[2].Subjects)
}
