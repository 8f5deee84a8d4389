//go:build sqlite
// +build sqlite

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

	"taskmgr/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
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

func (s *sqliteStore) AppendLoad(ctx context.Context, r LoadRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO load_samples (at_unix_ms, tick, percent) VALUES (?, ?, ?)`,
		r.At.UnixMilli(), r.Tick, r.Percent)
	return err
}

func (s *sqliteStore) AppendRuntime(ctx context.Context, r RuntimeRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	overrun := 0
	if r.Overrun {
		overrun = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runtime_samples (at_unix_ms, tick, task_id, runtime_ticks, quota_ticks, overrun)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.At.UnixMilli(), r.Tick, r.TaskID, r.RuntimeTicks, r.QuotaTicks, overrun)
	return err
}

func (s *sqliteStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	cutoff := olderThan.UnixMilli()
	total := 0
	for _, table := range []string{"load_samples", "runtime_samples"} {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE at_unix_ms < ?`, cutoff)
		if err != nil {
			return total, err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += int(n)
		}
	}
	if total > 0 {
		s.log.Debug("pruned persisted samples", logx.Int("removed", total))
	}
	return total, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
