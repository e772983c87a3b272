package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"regimen/internal/schedule"
	logx "regimen/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schedules (
    user_id    TEXT NOT NULL,
    date       TEXT NOT NULL,
    items      TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user_id, date)
);

CREATE TABLE IF NOT EXISTS snapshots (
    id      TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    label   TEXT NOT NULL,
    at      TEXT NOT NULL,
    items   INTEGER NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_user_at ON snapshots(user_id, at DESC);

CREATE TABLE IF NOT EXISTS patterns (
    user_id TEXT NOT NULL,
    id      TEXT NOT NULL,
    doc     TEXT NOT NULL,
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS completions (
    user_id TEXT NOT NULL,
    date    TEXT NOT NULL,
    item_id TEXT NOT NULL,
    status  INTEGER NOT NULL,
    PRIMARY KEY (user_id, date, item_id)
);
`

type sqliteBackend struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db, log: log}, nil
}

func (b *sqliteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *sqliteBackend) LoadSchedule(ctx context.Context, user string) (schedule.Schedule, bool, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT date, items FROM schedules WHERE user_id = ? ORDER BY date`, user)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()

	s := schedule.Schedule{}
	found := false
	for rows.Next() {
		var date, items string
		if err := rows.Scan(&date, &items); err != nil {
			return nil, false, err
		}
		found = true
		var day schedule.Day
		if err := json.Unmarshal([]byte(items), &day); err != nil {
			return nil, false, fmt.Errorf("decode day %s for %q: %w", date, user, err)
		}
		s[date] = day
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	schedule.NormalizeSchedule(s)
	return s, true, nil
}

// SaveSchedule replaces the user's rows wholesale in one transaction.
// Explicitly empty days are stored as "[]" rows so they stay
// distinguishable from absent dates.
func (b *sqliteBackend) SaveSchedule(ctx context.Context, user string, s schedule.Schedule) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE user_id = ?`, user); err != nil {
		return err
	}
	now := time.Now().Format(time.RFC3339Nano)
	for date, day := range s {
		if day == nil {
			day = schedule.Day{}
		}
		items, err := json.Marshal(day)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules(user_id, date, items, updated_at) VALUES(?,?,?,?)`,
			user, date, string(items), now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *sqliteBackend) WriteSnapshot(ctx context.Context, user, label string, s schedule.Schedule) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO snapshots(id, user_id, label, at, items, payload) VALUES(?,?,?,?,?,?)`,
		id, user, label, time.Now().Format(time.RFC3339Nano), s.TotalItems(), string(payload),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *sqliteBackend) ListSnapshots(ctx context.Context, user string) ([]SnapshotInfo, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, label, at, items FROM snapshots WHERE user_id = ? ORDER BY at DESC`, user)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var at string
		if err := rows.Scan(&info.ID, &info.Label, &at, &info.Items); err != nil {
			return nil, err
		}
		info.User = user
		info.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) PruneSnapshots(ctx context.Context, user string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE user_id = ? AND id NOT IN (
		     SELECT id FROM snapshots WHERE user_id = ? ORDER BY at DESC LIMIT ?
		 )`,
		user, user, keep,
	)
	return err
}

func (b *sqliteBackend) ListPatterns(ctx context.Context, user string) ([]schedule.Pattern, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT doc FROM patterns WHERE user_id = ? ORDER BY id`, user)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []schedule.Pattern
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p schedule.Pattern
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			b.log.Warn("unreadable pattern row skipped", logx.String("user", user), logx.Err(err))
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) PutPattern(ctx context.Context, user string, p schedule.Pattern) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO patterns(user_id, id, doc) VALUES(?,?,?)
		 ON CONFLICT(user_id, id) DO UPDATE SET doc=excluded.doc`,
		user, p.ID, string(doc),
	)
	return err
}

func (b *sqliteBackend) DeletePattern(ctx context.Context, user, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM patterns WHERE user_id = ? AND id = ?`, user, id)
	return err
}

func (b *sqliteBackend) LoadCompletions(ctx context.Context, user string, from, to time.Time) (schedule.Completions, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT date, item_id, status FROM completions
		 WHERE user_id = ? AND date >= ? AND date <= ?`,
		user, from.Format(schedule.DateKey), to.Format(schedule.DateKey),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := schedule.Completions{}
	for rows.Next() {
		var date, itemID string
		var status int
		if err := rows.Scan(&date, &itemID, &status); err != nil {
			return nil, err
		}
		m := out[date]
		if m == nil {
			m = map[string]schedule.CompletionStatus{}
			out[date] = m
		}
		m[itemID] = schedule.CompletionStatus(status)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM schedules ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
