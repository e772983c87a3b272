package schedule

import (
	"testing"
	"time"

	logx "regimen/pkg/logx"
)

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	return NewGenerator(GeneratorConfig{Timezone: "UTC"}, logx.Nop())
}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func sameTimes(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(got), len(want), got)
	}
	for i := range got {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGenerateDaily(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)

	tests := []struct {
		name    string
		pattern Pattern
		horizon time.Time
		want    []time.Time
	}{
		{
			name: "every day",
			pattern: Pattern{
				ID: "p1", Type: PatternDaily, StartDate: "2024-01-01",
				TimeOfDay: "07:30", Enabled: true,
			},
			horizon: utc(2024, 1, 3, 0, 0),
			want: []time.Time{
				utc(2024, 1, 1, 7, 30),
				utc(2024, 1, 2, 7, 30),
				utc(2024, 1, 3, 7, 30),
			},
		},
		{
			name: "frequency step",
			pattern: Pattern{
				ID: "p2", Type: PatternDaily, Frequency: 3, StartDate: "2024-01-01",
				TimeOfDay: "09:00", Enabled: true,
			},
			horizon: utc(2024, 1, 10, 0, 0),
			want: []time.Time{
				utc(2024, 1, 1, 9, 0),
				utc(2024, 1, 4, 9, 0),
				utc(2024, 1, 7, 9, 0),
				utc(2024, 1, 10, 9, 0),
			},
		},
		{
			name: "exceptions and cap",
			pattern: Pattern{
				ID: "p3", Type: PatternDaily, StartDate: "2024-01-01",
				Exceptions: []string{"2024-01-02"}, MaxOccurrences: 3,
				TimeOfDay: "08:00", Enabled: true,
			},
			horizon: utc(2024, 1, 31, 0, 0),
			want: []time.Time{
				utc(2024, 1, 1, 8, 0),
				utc(2024, 1, 3, 8, 0),
				utc(2024, 1, 4, 8, 0),
			},
		},
		{
			name: "pattern end date wins over horizon",
			pattern: Pattern{
				ID: "p4", Type: PatternDaily, StartDate: "2024-01-01", EndDate: "2024-01-02",
				TimeOfDay: "08:00", Enabled: true,
			},
			horizon: utc(2024, 2, 1, 0, 0),
			want: []time.Time{
				utc(2024, 1, 1, 8, 0),
				utc(2024, 1, 2, 8, 0),
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sameTimes(t, g.Generate(tt.pattern, tt.horizon), tt.want)
		})
	}
}

func TestGenerateWeekly(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)

	// 2024-01-01 is a Monday; Tue/Thu over two weeks.
	p := Pattern{
		ID: "wk", Type: PatternWeekly, DaysOfWeek: []int{2, 4},
		StartDate: "2024-01-01", TimeOfDay: "08:00", Enabled: true,
	}
	got := g.Generate(p, utc(2024, 1, 14, 0, 0))
	sameTimes(t, got, []time.Time{
		utc(2024, 1, 2, 8, 0),
		utc(2024, 1, 4, 8, 0),
		utc(2024, 1, 9, 8, 0),
		utc(2024, 1, 11, 8, 0),
	})
}

func TestGenerateWeeklyDefaultsToAllDays(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)

	p := Pattern{
		ID: "wk-all", Type: PatternWeekly,
		StartDate: "2024-01-01", TimeOfDay: "08:00", Enabled: true,
	}
	got := g.Generate(p, utc(2024, 1, 7, 0, 0))
	if len(got) != 7 {
		t.Fatalf("got %d occurrences, want 7", len(got))
	}
}

func TestGenerateBiweekly(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)

	// Mondays, every other week anchored at the start date.
	p := Pattern{
		ID: "biwk", Type: PatternBiweekly, DaysOfWeek: []int{1},
		StartDate: "2024-01-01", TimeOfDay: "10:00", Enabled: true,
	}
	got := g.Generate(p, utc(2024, 1, 31, 0, 0))
	sameTimes(t, got, []time.Time{
		utc(2024, 1, 1, 10, 0),
		utc(2024, 1, 15, 10, 0),
		utc(2024, 1, 29, 10, 0),
	})
}

func TestGenerateMonthly(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)

	t.Run("default day is the 1st", func(t *testing.T) {
		t.Parallel()
		p := Pattern{
			ID: "mo", Type: PatternMonthly,
			StartDate: "2024-01-01", TimeOfDay: "08:00", Enabled: true,
		}
		got := g.Generate(p, utc(2024, 3, 15, 0, 0))
		sameTimes(t, got, []time.Time{
			utc(2024, 1, 1, 8, 0),
			utc(2024, 2, 1, 8, 0),
			utc(2024, 3, 1, 8, 0),
		})
	})

	t.Run("nonexistent day skips the month", func(t *testing.T) {
		t.Parallel()
		p := Pattern{
			ID: "mo31", Type: PatternMonthly, DaysOfMonth: []int{31},
			StartDate: "2024-01-01", TimeOfDay: "08:00", Enabled: true,
		}
		got := g.Generate(p, utc(2024, 4, 30, 0, 0))
		// February and April have no 31st.
		sameTimes(t, got, []time.Time{
			utc(2024, 1, 31, 8, 0),
			utc(2024, 3, 31, 8, 0),
		})
	})
}

func TestGenerateFailsClosed(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)
	horizon := utc(2024, 2, 1, 0, 0)

	tests := []struct {
		name    string
		pattern Pattern
	}{
		{"disabled", Pattern{ID: "d", Type: PatternDaily, StartDate: "2024-01-01", Enabled: false}},
		{"malformed start", Pattern{ID: "s", Type: PatternDaily, StartDate: "01/01/2024", Enabled: true}},
		{"malformed end", Pattern{ID: "e", Type: PatternDaily, StartDate: "2024-01-01", EndDate: "soon", Enabled: true}},
		{"malformed exception", Pattern{ID: "x", Type: PatternDaily, StartDate: "2024-01-01", Exceptions: []string{"tomorrow"}, Enabled: true}},
		{"unsupported type", Pattern{ID: "u", Type: "yearly", StartDate: "2024-01-01", Enabled: true}},
		{"end before start", Pattern{ID: "b", Type: PatternDaily, StartDate: "2024-03-01", EndDate: "2024-02-01", Enabled: true}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := g.Generate(tt.pattern, horizon); len(got) != 0 {
				t.Fatalf("expected empty result, got %v", got)
			}
		})
	}
}

func TestGenerateTimeOfDayFallback(t *testing.T) {
	t.Parallel()
	g := testGenerator(t)

	p := Pattern{
		ID: "tod", Type: PatternDaily, StartDate: "2024-01-01",
		TimeOfDay: "quarter past nine", Enabled: true,
	}
	got := g.Generate(p, utc(2024, 1, 1, 0, 0))
	sameTimes(t, got, []time.Time{utc(2024, 1, 1, 8, 0)})
}

func TestHorizonRange(t *testing.T) {
	t.Parallel()
	now := utc(2024, 2, 15, 13, 45)
	from, to := HorizonRange(now)
	if want := utc(2024, 1, 16, 0, 0); !from.Equal(want) {
		t.Fatalf("from = %v, want %v", from, want)
	}
	if want := utc(2024, 3, 28, 0, 0); !to.Equal(want) {
		t.Fatalf("to = %v, want %v", to, want)
	}
}
