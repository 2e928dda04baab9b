package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nudge/internal/reminder"
	logx "nudge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, frequency, is_random, start_hour, end_hour, enabled
		 FROM reminders ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	out := []reminder.Reminder{}
	for rows.Next() {
		var (
			r                 reminder.Reminder
			isRandom, enabled int
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.Frequency, &isRandom, &r.StartHour, &r.EndHour, &enabled); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.IsRandom = isRandom != 0
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Save rewrites the table inside one transaction; position keeps list order.
func (s *sqliteStore) Save(ctx context.Context, rs []reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return fmt.Errorf("clear reminders: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reminders(id, position, text, frequency, is_random, start_hour, end_hour, enabled)
		 VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rs {
		if _, err := stmt.ExecContext(ctx, r.ID, i, r.Text, r.Frequency, boolInt(r.IsRandom), r.StartHour, r.EndHour, boolInt(r.Enabled)); err != nil {
			return fmt.Errorf("insert reminder %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("reminders saved", logx.Int("count", len(rs)))
	return nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
