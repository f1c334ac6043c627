// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command/subcommand framework behind
// dtxctl. Commands declare a name, a summary, an optional pflag flag
// set, and either a Run function or nested subcommands; Execute
// dispatches and renders help.
package cli
