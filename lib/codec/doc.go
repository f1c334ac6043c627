// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used on the dtxd control
// socket.
//
// Encoding is RFC 8949 Core Deterministic Encoding: sorted map keys,
// smallest integer encoding, no indefinite-length items. The same
// logical request or signal always produces identical bytes, which
// keeps the protocol easy to test and to capture.
//
// Consumers import only this package; the fxamacker/cbor dependency
// is an implementation detail.
package codec
