// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/linux-surface/dtxd/lib/clock"
	"github.com/linux-surface/dtxd/lib/config"
)

func openTestJournal(t *testing.T, clk clock.Clock) *journal {
	t.Helper()

	cfg := config.JournalConfig{
		Path: filepath.Join(t.TempDir(), "journal.db"),
	}
	jnl, err := openJournal(cfg, clk, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	t.Cleanup(func() { jnl.Close() })
	return jnl
}

func TestJournalInsertAndRecent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.Fake(base)
	jnl := openTestJournal(t, clk)

	ctx := context.Background()
	records := []journalRecord{
		{time: base, kind: recordEvent, detail: "detach-request"},
		{time: base.Add(time.Second), kind: recordTransition, detail: "normal -> detaching"},
		{time: base.Add(2 * time.Second), kind: recordCommand, detail: "latch-open"},
	}
	for _, record := range records {
		if err := jnl.insert(ctx, record); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	entries, err := jnl.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(entries))
	}

	// Newest first.
	if entries[0].Detail != "latch-open" || entries[0].Kind != recordCommand {
		t.Errorf("entries[0] = %+v, want latch-open command", entries[0])
	}
	if entries[1].Detail != "normal -> detaching" {
		t.Errorf("entries[1] = %+v, want transition", entries[1])
	}
	if !entries[0].Time.Equal(base.Add(2 * time.Second)) {
		t.Errorf("entries[0].Time = %v, want %v", entries[0].Time, base.Add(2*time.Second))
	}
}

func TestJournalPrune(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.Fake(base)
	jnl := openTestJournal(t, clk)
	jnl.retention = time.Hour

	ctx := context.Background()
	old := journalRecord{time: base.Add(-2 * time.Hour), kind: recordEvent, detail: "old"}
	fresh := journalRecord{time: base.Add(-time.Minute), kind: recordEvent, detail: "fresh"}
	if err := jnl.insert(ctx, old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := jnl.insert(ctx, fresh); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := jnl.prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := jnl.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Detail != "fresh" {
		t.Fatalf("entries after prune = %+v, want only fresh", entries)
	}
}

func TestJournalRecordNonBlocking(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	jnl := openTestJournal(t, clk)

	// No Run goroutine is draining; overfilling must not block.
	for i := 0; i < cap(jnl.records)+10; i++ {
		jnl.Record(recordEvent, "flood")
	}
}

func TestJournalRunDrainsRecords(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	jnl := openTestJournal(t, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		jnl.Run(ctx)
		close(done)
	}()

	jnl.Record(recordTransition, "normal -> attaching")

	waitFor(t, func() bool {
		entries, err := jnl.Recent(1)
		return err == nil && len(entries) == 1
	})

	cancel()
	<-done

	entries, err := jnl.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if entries[0].Detail != "normal -> attaching" {
		t.Errorf("entry = %+v, want transition", entries[0])
	}
}
