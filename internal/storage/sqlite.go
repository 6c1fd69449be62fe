package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "dmrelay/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	at           TEXT    NOT NULL,
	run_id       TEXT    NOT NULL,
	target       TEXT    NOT NULL,
	guild_id     TEXT    NOT NULL,
	community    TEXT,
	result       TEXT    NOT NULL,
	total        INTEGER NOT NULL,
	success      INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	rate_limited INTEGER NOT NULL,
	dm_closed    INTEGER NOT NULL,
	err          TEXT,
	took_ms      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS summaries_run ON summaries(run_id);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
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
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) AppendSummary(ctx context.Context, sum Summary) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if sum.At.IsZero() {
		sum.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries(at, run_id, target, guild_id, community, result, total, success, failed, rate_limited, dm_closed, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sum.At.UTC().Format(time.RFC3339Nano), sum.RunID, sum.Target, sum.GuildID, nullStr(sum.Community), sum.Result,
		sum.Total, sum.Success, sum.Failed, sum.RateLimited, sum.DMClosed, nullStr(sum.Error), sum.TookMS,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
