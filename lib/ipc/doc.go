// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the wire types for the dtxd control socket.
//
// The daemon listens on a Unix socket (default /run/dtxd/dtxd.sock).
// Each connection carries one CBOR-encoded [Request] followed by one
// CBOR-encoded [Response], except for [ActionSubscribe], which holds
// the connection open and streams [Signal] values until the client
// disconnects.
//
// Both dtxd and dtxctl encode these types through lib/codec so the
// on-the-wire representation is deterministic.
package ipc
