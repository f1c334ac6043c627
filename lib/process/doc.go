// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package process runs the operator-supplied handler programs and
// provides the binary entrypoint error handler.
//
// Handler programs (attach, detach, detach-abort) are ordinary
// executables configured in the daemon's config file. [Run] executes
// one to completion, capturing its exit status and output; [Output.Log]
// reports anything noteworthy through the structured logger. Whether
// and how the exit status matters is the caller's policy; only the
// detach handler's status carries meaning.
package process
