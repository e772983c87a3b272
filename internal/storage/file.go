package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"regimen/internal/schedule"
	logx "regimen/pkg/logx"
)

// fileBackend is a dependency-free persistence backend.
//
// Layout under the configured directory:
//
//	<user>.schedule.json                    (full schedule document)
//	<user>.completions.json                 (written by the progress store, read-only here)
//	snapshots/<user>/<rfc3339>_<id>.json    (pre-write snapshots)
//
// All writes go through a tmp file + rename so a crash never leaves a
// torn document behind.
type fileBackend struct {
	log logx.Logger
	dir string

	mu sync.Mutex
}

const (
	scheduleSuffix    = ".schedule.json"
	patternsSuffix    = ".patterns.json"
	completionsSuffix = ".completions.json"
	snapshotTimeFmt   = "20060102T150405.000Z0700"
)

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{log: log, dir: dir}, nil
}

func (b *fileBackend) Close() error { return nil }

func (b *fileBackend) schedulePath(user string) string {
	return filepath.Join(b.dir, sanitizeUser(user)+scheduleSuffix)
}

func (b *fileBackend) snapshotDir(user string) string {
	return filepath.Join(b.dir, "snapshots", sanitizeUser(user))
}

// sanitizeUser keeps user-derived path segments boring: anything outside
// [A-Za-z0-9._-] becomes '_'.
func sanitizeUser(user string) string {
	var sb strings.Builder
	for _, r := range user {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

func (b *fileBackend) LoadSchedule(ctx context.Context, user string) (schedule.Schedule, bool, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.schedulePath(user))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s schedule.Schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode schedule for %q: %w", user, err)
	}
	schedule.NormalizeSchedule(s)
	return s, true, nil
}

func (b *fileBackend) SaveSchedule(ctx context.Context, user string, s schedule.Schedule) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == nil {
		s = schedule.Schedule{}
	}
	return writeAtomic(b.schedulePath(user), s)
}

func (b *fileBackend) WriteSnapshot(ctx context.Context, user, label string, s schedule.Schedule) (string, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := b.snapshotDir(user)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	id := uuid.NewString()
	doc := snapshotDoc{
		ID:       id,
		User:     user,
		Label:    label,
		At:       time.Now(),
		Items:    s.TotalItems(),
		Schedule: s,
	}
	name := doc.At.UTC().Format(snapshotTimeFmt) + "_" + id + ".json"
	if err := writeAtomic(filepath.Join(dir, name), doc); err != nil {
		return "", err
	}
	return id, nil
}

type snapshotDoc struct {
	ID       string            `json:"id"`
	User     string            `json:"user"`
	Label    string            `json:"label"`
	At       time.Time         `json:"at"`
	Items    int               `json:"items"`
	Schedule schedule.Schedule `json:"schedule"`
}

func (b *fileBackend) ListSnapshots(ctx context.Context, user string) ([]SnapshotInfo, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.snapshotDir(user))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []SnapshotInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.snapshotDir(user), e.Name()))
		if err != nil {
			continue
		}
		var doc snapshotDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			b.log.Debug("unreadable snapshot skipped", logx.String("file", e.Name()))
			continue
		}
		out = append(out, SnapshotInfo{ID: doc.ID, User: doc.User, Label: doc.Label, At: doc.At, Items: doc.Items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

func (b *fileBackend) PruneSnapshots(ctx context.Context, user string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	infos, err := b.ListSnapshots(ctx, user)
	if err != nil {
		return err
	}
	if len(infos) <= keep {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, info := range infos[keep:] {
		name := info.At.UTC().Format(snapshotTimeFmt) + "_" + info.ID + ".json"
		if err := os.Remove(filepath.Join(b.snapshotDir(user), name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (b *fileBackend) patternsPath(user string) string {
	return filepath.Join(b.dir, sanitizeUser(user)+patternsSuffix)
}

func (b *fileBackend) readPatternsLocked(user string) ([]schedule.Pattern, error) {
	raw, err := os.ReadFile(b.patternsPath(user))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ps []schedule.Pattern
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("decode patterns for %q: %w", user, err)
	}
	return ps, nil
}

func (b *fileBackend) ListPatterns(ctx context.Context, user string) ([]schedule.Pattern, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readPatternsLocked(user)
}

func (b *fileBackend) PutPattern(ctx context.Context, user string, p schedule.Pattern) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	ps, err := b.readPatternsLocked(user)
	if err != nil {
		return err
	}
	replaced := false
	for i := range ps {
		if ps[i].ID == p.ID {
			ps[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		ps = append(ps, p)
	}
	return writeAtomic(b.patternsPath(user), ps)
}

func (b *fileBackend) DeletePattern(ctx context.Context, user, id string) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	ps, err := b.readPatternsLocked(user)
	if err != nil {
		return err
	}
	kept := ps[:0]
	for _, p := range ps {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return writeAtomic(b.patternsPath(user), kept)
}

func (b *fileBackend) LoadCompletions(ctx context.Context, user string, from, to time.Time) (schedule.Completions, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(b.dir, sanitizeUser(user)+completionsSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return schedule.Completions{}, nil
	}
	if err != nil {
		return nil, err
	}
	var all schedule.Completions
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode completions for %q: %w", user, err)
	}

	fromKey := from.Format(schedule.DateKey)
	toKey := to.Format(schedule.DateKey)
	out := schedule.Completions{}
	for date, m := range all {
		if date < fromKey || date > toKey {
			continue
		}
		out[date] = m
	}
	return out, nil
}

func (b *fileBackend) ListUsers(ctx context.Context) ([]string, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), scheduleSuffix) {
			continue
		}
		users = append(users, strings.TrimSuffix(e.Name(), scheduleSuffix))
	}
	sort.Strings(users)
	return users, nil
}

func writeAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
