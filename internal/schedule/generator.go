package schedule

import (
	"sort"
	"strings"
	"time"

	logx "regimen/pkg/logx"
)

// DefaultTimeOfDay is used when a pattern's time_of_day is missing or
// unparsable.
const DefaultTimeOfDay = "08:00"

// GeneratorConfig tunes occurrence expansion.
type GeneratorConfig struct {
	// Timezone is an IANA TZ name; empty means the process-local zone.
	Timezone string
	// DefaultTimeOfDay overrides the fallback time ("15:04" format).
	DefaultTimeOfDay string
}

// Generator expands patterns into concrete occurrence timestamps.
//
// Generate never returns an error: a malformed pattern yields an empty
// list and a log line, so a batch run over many patterns keeps going.
type Generator struct {
	loc        *time.Location
	defaultTOD string
	log        logx.Logger
}

func NewGenerator(cfg GeneratorConfig, log logx.Logger) *Generator {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			log.Warn("invalid generator timezone; using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	tod := strings.TrimSpace(cfg.DefaultTimeOfDay)
	if tod == "" {
		tod = DefaultTimeOfDay
	}
	if _, err := time.Parse("15:04", tod); err != nil {
		log.Warn("invalid default time of day; using built-in", logx.String("time_of_day", tod))
		tod = DefaultTimeOfDay
	}
	return &Generator{loc: loc, defaultTOD: tod, log: log}
}

// Generate expands p into ascending occurrence timestamps up to
// horizonEnd (inclusive). Disabled patterns and unsupported pattern
// types yield an empty result.
func (g *Generator) Generate(p Pattern, horizonEnd time.Time) []time.Time {
	if !p.Enabled {
		return nil
	}

	start, err := time.ParseInLocation(DateKey, strings.TrimSpace(p.StartDate), g.loc)
	if err != nil {
		g.log.Warn("pattern has malformed start_date; skipping",
			logx.String("pattern", p.ID), logx.String("start_date", p.StartDate))
		return nil
	}

	end := time.Date(horizonEnd.Year(), horizonEnd.Month(), horizonEnd.Day(), 0, 0, 0, 0, g.loc)
	if raw := strings.TrimSpace(p.EndDate); raw != "" {
		pe, err := time.ParseInLocation(DateKey, raw, g.loc)
		if err != nil {
			g.log.Warn("pattern has malformed end_date; skipping",
				logx.String("pattern", p.ID), logx.String("end_date", p.EndDate))
			return nil
		}
		if pe.Before(end) {
			end = pe
		}
	}
	if end.Before(start) {
		return nil
	}

	exceptions := make(map[string]struct{}, len(p.Exceptions))
	for _, raw := range p.Exceptions {
		raw = strings.TrimSpace(raw)
		if _, err := time.ParseInLocation(DateKey, raw, g.loc); err != nil {
			g.log.Warn("pattern has malformed exception date; skipping",
				logx.String("pattern", p.ID), logx.String("exception", raw))
			return nil
		}
		exceptions[raw] = struct{}{}
	}

	hour, minute := g.timeOfDay(p)

	var dates []time.Time
	switch p.Type {
	case PatternDaily:
		dates = dailyDates(start, end, p.Frequency)
	case PatternWeekly:
		dates = weekdayDates(start, end, p.DaysOfWeek, 1)
	case PatternBiweekly:
		dates = weekdayDates(start, end, p.DaysOfWeek, 2)
	case PatternMonthly:
		dates = monthlyDates(start, end, p.DaysOfMonth)
	default:
		g.log.Debug("unsupported pattern type", logx.String("pattern", p.ID), logx.String("type", string(p.Type)))
		return nil
	}

	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if _, skip := exceptions[d.Format(DateKey)]; skip {
			continue
		}
		out = append(out, time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, g.loc))
		if p.MaxOccurrences > 0 && len(out) >= p.MaxOccurrences {
			break
		}
	}
	return out
}

func (g *Generator) timeOfDay(p Pattern) (hour, minute int) {
	raw := strings.TrimSpace(p.TimeOfDay)
	if raw == "" {
		raw = g.defaultTOD
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		g.log.Debug("unparsable time_of_day; using default",
			logx.String("pattern", p.ID), logx.String("time_of_day", p.TimeOfDay))
		t, _ = time.Parse("15:04", g.defaultTOD)
	}
	return t.Hour(), t.Minute()
}

func dailyDates(start, end time.Time, frequency int) []time.Time {
	if frequency <= 0 {
		frequency = 1
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, frequency) {
		out = append(out, d)
	}
	return out
}

// weekdayDates emits every date in [start, end] whose weekday is in days,
// stepping in weekStep-week groups anchored at start (weekStep 2 gives
// the biweekly cadence: seven days on, seven days off, relative to the
// start date).
func weekdayDates(start, end time.Time, days []int, weekStep int) []time.Time {
	selected := weekdaySet(days)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := selected[int(d.Weekday())]; !ok {
			continue
		}
		if weekStep > 1 {
			week := daysBetween(start, d) / 7
			if week%weekStep != 0 {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// daysBetween counts calendar days from a to b, immune to DST shifts.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}

func weekdaySet(days []int) map[int]struct{} {
	set := make(map[int]struct{}, 7)
	if len(days) == 0 {
		for i := 0; i < 7; i++ {
			set[i] = struct{}{}
		}
		return set
	}
	for _, d := range days {
		if d >= 0 && d <= 6 {
			set[d] = struct{}{}
		}
	}
	return set
}

// monthlyDates emits the selected days of each month in [start, end].
// A selected day that does not exist in a given month (e.g. 31 in
// February) is skipped for that month, not clamped.
func monthlyDates(start, end time.Time, days []int) []time.Time {
	if len(days) == 0 {
		days = []int{1}
	}
	sorted := make([]int, 0, len(days))
	for _, d := range days {
		if d >= 1 && d <= 31 {
			sorted = append(sorted, d)
		}
	}
	sort.Ints(sorted)

	var out []time.Time
	for cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location()); !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		for _, dom := range sorted {
			d := time.Date(cur.Year(), cur.Month(), dom, 0, 0, 0, 0, start.Location())
			if d.Day() != dom {
				// normalized past month end; day doesn't exist this month
				continue
			}
			if d.Before(start) || d.After(end) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}
