// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/linux-surface/dtxd/lib/clock"
	"github.com/linux-surface/dtxd/lib/config"
	"github.com/linux-surface/dtxd/lib/ipc"
	"github.com/linux-surface/dtxd/lib/sqlitepool"
)

// Journal record kinds.
const (
	recordEvent      = "event"
	recordTransition = "transition"
	recordCommand    = "command"
)

// recorder accepts journal records from the hot paths. Record must
// never block.
type recorder interface {
	Record(kind, detail string)
}

// nopRecorder is used when the journal is disabled.
type nopRecorder struct{}

func (nopRecorder) Record(kind, detail string) {}

const journalSchema = `
CREATE TABLE IF NOT EXISTS journal (
    id     INTEGER PRIMARY KEY,
    time   INTEGER NOT NULL,
    kind   TEXT    NOT NULL,
    detail TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_time ON journal (time);
`

// journalPruneInterval is how often entries older than the retention
// window are deleted.
const journalPruneInterval = time.Hour

type journalRecord struct {
	time   time.Time
	kind   string
	detail string
}

// journal persists events, state transitions, and hardware commands
// to SQLite. Writes are decoupled from the hot paths through a
// bounded channel drained by Run; if the writer falls behind, records
// are dropped rather than stalling event processing.
type journal struct {
	pool      *sqlitepool.Pool
	clock     clock.Clock
	logger    *slog.Logger
	retention time.Duration
	records   chan journalRecord
}

func openJournal(cfg config.JournalConfig, clk clock.Clock, logger *slog.Logger) (*journal, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, journalSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	return &journal{
		pool:      pool,
		clock:     clk,
		logger:    logger,
		retention: cfg.RetentionWindow(),
		records:   make(chan journalRecord, 256),
	}, nil
}

// Record queues a record for insertion. Non-blocking; drops with a
// warning when the writer is too far behind.
func (j *journal) Record(kind, detail string) {
	record := journalRecord{time: j.clock.Now(), kind: kind, detail: detail}
	select {
	case j.records <- record:
	default:
		j.logger.Warn("journal writer is behind, dropping record",
			"kind", kind, "detail", detail)
	}
}

// Run drains the record channel and prunes expired entries until ctx
// is cancelled.
func (j *journal) Run(ctx context.Context) error {
	ticker := j.clock.NewTicker(journalPruneInterval)
	defer ticker.Stop()

	if err := j.prune(ctx); err != nil {
		j.logger.Warn("journal prune failed", "error", err)
	}

	for {
		select {
		case record := <-j.records:
			if err := j.insert(ctx, record); err != nil {
				j.logger.Warn("journal insert failed", "error", err)
			}
		case <-ticker.C:
			if err := j.prune(ctx); err != nil {
				j.logger.Warn("journal prune failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (j *journal) insert(ctx context.Context, record journalRecord) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	return sqlitex.Execute(conn,
		"INSERT INTO journal (time, kind, detail) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{record.time.UnixMilli(), record.kind, record.detail},
		})
}

func (j *journal) prune(ctx context.Context) error {
	cutoff := j.clock.Now().Add(-j.retention).UnixMilli()

	conn, err := j.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	return sqlitex.Execute(conn,
		"DELETE FROM journal WHERE time < ?",
		&sqlitex.ExecOptions{Args: []any{cutoff}})
}

// Recent returns the n most recent entries, newest first.
func (j *journal) Recent(n int) ([]ipc.JournalEntry, error) {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		return nil, err
	}
	defer j.pool.Put(conn)

	var entries []ipc.JournalEntry
	err = sqlitex.Execute(conn,
		"SELECT time, kind, detail FROM journal ORDER BY id DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{n},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, ipc.JournalEntry{
					Time:   time.UnixMilli(stmt.ColumnInt64(0)),
					Kind:   stmt.ColumnText(1),
					Detail: stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}

// Close flushes nothing; records still queued are lost. Call only
// after Run has returned.
func (j *journal) Close() error {
	return j.pool.Close()
}
