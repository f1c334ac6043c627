// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handler.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestRunSuccess(t *testing.T) {
	path := writeScript(t, "echo ready\nexit 0\n")

	output, err := Run(path, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !output.Success() {
		t.Errorf("Success() = false, status %d", output.Status)
	}
	if got := strings.TrimSpace(string(output.Stdout)); got != "ready" {
		t.Errorf("stdout = %q, want %q", got, "ready")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	path := writeScript(t, "echo nope >&2\nexit 1\n")

	output, err := Run(path, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if output.Success() {
		t.Error("Success() = true for exit 1")
	}
	if output.Status != 1 {
		t.Errorf("Status = %d, want 1", output.Status)
	}
	if got := strings.TrimSpace(string(output.Stderr)); got != "nope" {
		t.Errorf("stderr = %q, want %q", got, "nope")
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, "pwd\n")

	output, err := Run(path, dir, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := strings.TrimSpace(string(output.Stdout))
	// Resolve symlinks: on some systems TempDir is behind /private or
	// similar.
	wantResolved, _ := filepath.EvalSymlinks(dir)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Errorf("working directory = %q, want %q", got, dir)
	}
}

func TestRunEnvironment(t *testing.T) {
	path := writeScript(t, `printf '%s %s' "$EXIT_DETACH_COMMENCE" "$EXIT_DETACH_ABORT"`+"\n")

	output, err := Run(path, t.TempDir(), []string{
		"EXIT_DETACH_COMMENCE=0",
		"EXIT_DETACH_ABORT=1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(output.Stdout); got != "0 1" {
		t.Errorf("environment markers = %q, want %q", got, "0 1")
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir(), nil)
	if err == nil {
		t.Error("Run of missing binary succeeded, want error")
	}
}
