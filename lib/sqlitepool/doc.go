// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool backing the
// dtxd event journal.
//
// It wraps zombiezen.com/go/sqlite with defaults suited to a small,
// append-mostly local database: WAL journal mode, NORMAL synchronous
// for process-crash durability without fsync-per-commit overhead, and
// a busy timeout so concurrent reads (journal queries over IPC) never
// fail spuriously against the writer.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are not safe for concurrent use; each goroutine
// must hold its own connection for the duration of its work.
package sqlitepool
