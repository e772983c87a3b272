package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"regimen/internal/schedule"
	logx "regimen/pkg/logx"
)

func newFileBackend(t *testing.T) Backend {
	t.Helper()
	b, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open file backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testSchedule() schedule.Schedule {
	return schedule.Schedule{
		"2024-01-01": schedule.Day{{
			ID:          "p1-20240101T0800",
			PatternID:   "p1",
			Template:    schedule.Template{Name: "Vitamin D", Category: schedule.CategorySupplement, Enabled: true},
			ScheduledAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			Type:        schedule.ItemPattern,
		}},
		"2024-01-02": schedule.Day{},
	}
}

func TestFileScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	b := newFileBackend(t)
	ctx := context.Background()

	_, ok, err := b.LoadSchedule(ctx, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("schedule reported present before first save")
	}

	want := testSchedule()
	if err := b.SaveSchedule(ctx, "alice", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := b.LoadSchedule(ctx, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("schedule missing after save")
	}
	if got.TotalItems() != 1 {
		t.Fatalf("items = %d, want 1", got.TotalItems())
	}
	// Explicitly empty dates survive the round trip as present keys.
	day, present := got["2024-01-02"]
	if !present || len(day) != 0 {
		t.Fatalf("empty date key lost: present=%v day=%v", present, day)
	}
}

func TestFileLoadNormalizes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	b, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	// A hand-written document with an alias category and no item type.
	raw := `{"2024-01-01":[{"id":"x","template":{"name":"Fish oil","category":"Supplements","enabled":true},"scheduled_at":"2024-01-01T08:00:00Z"}]}`
	if err := os.WriteFile(filepath.Join(dir, "alice.schedule.json"), []byte(raw), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, ok, err := b.LoadSchedule(context.Background(), "alice")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	it := got["2024-01-01"][0]
	if it.Template.Category != schedule.CategorySupplement {
		t.Fatalf("category = %q", it.Template.Category)
	}
	if it.Type != schedule.ItemManual {
		t.Fatalf("type = %q", it.Type)
	}
}

func TestFileSnapshotsListAndPrune(t *testing.T) {
	t.Parallel()
	b := newFileBackend(t)
	ctx := context.Background()

	var last string
	for i := 0; i < 5; i++ {
		id, err := b.WriteSnapshot(ctx, "alice", "pre-write", testSchedule())
		if err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		last = id
		time.Sleep(2 * time.Millisecond) // distinct timestamps for ordering
	}

	infos, err := b.ListSnapshots(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 5 {
		t.Fatalf("snapshots = %d, want 5", len(infos))
	}
	if infos[0].ID != last {
		t.Fatalf("newest-first order violated: got %s, want %s", infos[0].ID, last)
	}
	if infos[0].Label != "pre-write" || infos[0].Items != 1 {
		t.Fatalf("snapshot info = %+v", infos[0])
	}

	if err := b.PruneSnapshots(ctx, "alice", 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	infos, err = b.ListSnapshots(ctx, "alice")
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("snapshots after prune = %d, want 2", len(infos))
	}
	if infos[0].ID != last {
		t.Fatal("prune removed the newest snapshot")
	}
}

func TestFilePatternLifecycle(t *testing.T) {
	t.Parallel()
	b := newFileBackend(t)
	ctx := context.Background()

	p := schedule.Pattern{ID: "p1", Type: schedule.PatternDaily, StartDate: "2024-01-01",
		Template: schedule.Template{Name: "Zinc", Enabled: true}, Enabled: true}
	if err := b.PutPattern(ctx, "alice", p); err != nil {
		t.Fatalf("put: %v", err)
	}
	p.TimeOfDay = "09:30"
	if err := b.PutPattern(ctx, "alice", p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ps, err := b.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ps) != 1 || ps[0].TimeOfDay != "09:30" {
		t.Fatalf("patterns = %+v", ps)
	}

	if err := b.DeletePattern(ctx, "alice", "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ps, err = b.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(ps) != 0 {
		t.Fatalf("patterns after delete = %+v", ps)
	}
}

func TestFileCompletionsRangeFilter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	b, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	all := schedule.Completions{
		"2024-01-01": {"a": schedule.StatusCompleted},
		"2024-02-01": {"b": schedule.StatusCompleted},
		"2024-03-01": {"c": schedule.StatusPending},
	}
	raw, err := json.Marshal(all)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alice.completions.json"), raw, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := b.LoadCompletions(context.Background(), "alice",
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("completions = %v", got)
	}
	if got["2024-02-01"]["b"] != schedule.StatusCompleted {
		t.Fatalf("status = %v", got["2024-02-01"])
	}
}

func TestFileListUsers(t *testing.T) {
	t.Parallel()
	b := newFileBackend(t)
	ctx := context.Background()

	for _, u := range []string{"bob", "alice"} {
		if err := b.SaveSchedule(ctx, u, testSchedule()); err != nil {
			t.Fatalf("save %s: %v", u, err)
		}
	}
	users, err := b.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("users = %v", users)
	}
}

func TestOpenDriverDispatch(t *testing.T) {
	t.Parallel()

	b, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || b != nil {
		t.Fatalf("empty driver: b=%v err=%v", b, err)
	}
	b, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || b != nil {
		t.Fatalf("none driver: b=%v err=%v", b, err)
	}
	if _, err = Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
	if _, err = Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver accepted without a path")
	}
}
