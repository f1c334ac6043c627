// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Output is the observable result of one handler invocation.
type Output struct {
	// Status is the handler's exit code.
	Status int

	// Stdout and Stderr are the handler's captured output streams.
	Stdout []byte
	Stderr []byte
}

// Success reports whether the handler exited with status 0.
func (o Output) Success() bool { return o.Status == 0 }

// Run executes the handler at path with dir as its working directory
// and env appended to the daemon's environment. It blocks until the
// handler exits.
//
// A non-zero exit status is not an error; it is reported through
// Output so the caller can apply its policy. Run returns an error
// only when the handler could not be executed at all (missing binary,
// permission, fork failure).
func Run(path, dir string, env []string) (Output, error) {
	cmd := exec.Command(path)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := Output{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Output{}, fmt.Errorf("process: running %s: %w", path, err)
		}
		output.Status = exitErr.ExitCode()
	}

	return output, nil
}

// Log reports the handler result through logger: a non-zero status or
// any captured output is logged, a silent successful run is not. This
// is observational only and never affects policy.
func (o Output) Log(logger *slog.Logger) {
	if o.Status != 0 {
		logger.Info("subprocess terminated with non-zero status", "status", o.Status)
	}
	if len(o.Stdout) > 0 {
		logger.Info("subprocess stdout", "output", string(o.Stdout))
	}
	if len(o.Stderr) > 0 {
		logger.Info("subprocess stderr", "output", string(o.Stderr))
	}
}
