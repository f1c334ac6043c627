// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the dtxd configuration file.
//
// The file is YAML, located by (in order): the --config flag, the
// DTXD_CONFIG environment variable, or /etc/dtxd/dtxd.yaml. A missing
// default file is not an error; the daemon runs with built-in
// defaults. An explicitly named file that cannot be read is an error.
//
// Configuration is immutable for the lifetime of the process: the
// daemon loads it once at startup and shares it read-only.
package config
