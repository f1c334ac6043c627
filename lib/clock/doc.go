// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability.
//
// dtxd touches the clock in two places: the attach pre-delay before
// the attach handler runs, and the journal retention ticker.
// Production code injects [Real]; tests inject [Fake] and advance
// time deterministically.
package clock
