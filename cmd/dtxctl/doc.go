// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Command dtxctl is the command-line client for dtxd. It talks to the
// daemon over its Unix socket: querying status, triggering a latch
// request, streaming live detach/attach notifications, and reading
// the event journal.
package main
