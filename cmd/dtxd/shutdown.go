// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type shutdownPhase int

const (
	phaseRunning shutdownPhase = iota
	phaseDraining
	phaseTerminated
)

// shutdownCoordinator implements the two-stage shutdown protocol: the
// first SIGINT or SIGTERM starts a graceful drain of the process
// queue, a second signal while draining terminates immediately with
// exit status 128 plus the signal number.
type shutdownCoordinator struct {
	logger  *slog.Logger
	signals chan os.Signal

	// drain starts the graceful phase; quiesced is closed by the
	// queue consumer once the backlog has run dry.
	drain    func()
	quiesced <-chan struct{}

	// exit is os.Exit, replaceable in tests.
	exit func(int)

	mu    sync.Mutex
	phase shutdownPhase
	done  chan struct{}
}

func newShutdownCoordinator(logger *slog.Logger, drain func(), quiesced <-chan struct{}) *shutdownCoordinator {
	return &shutdownCoordinator{
		logger:   logger,
		signals:  make(chan os.Signal, 2),
		drain:    drain,
		quiesced: quiesced,
		exit:     os.Exit,
		done:     make(chan struct{}),
	}
}

// Notify registers for SIGINT and SIGTERM. Must be called before the
// daemon does anything interruptible.
func (c *shutdownCoordinator) Notify() {
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
}

// Run blocks until the shutdown protocol completes gracefully. On a
// forced shutdown it does not return; the process exits.
func (c *shutdownCoordinator) Run() {
	sig := <-c.signals
	c.logger.Info("shutting down, waiting for processes to finish", "signal", sig)

	c.setPhase(phaseDraining)
	c.drain()

	select {
	case <-c.quiesced:
		c.setPhase(phaseTerminated)
		close(c.done)
	case sig := <-c.signals:
		c.logger.Info("terminating", "signal", sig)
		c.exit(128 + signalNumber(sig))
	}
}

// Done is closed when a graceful shutdown has completed.
func (c *shutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// Draining reports whether shutdown has begun.
func (c *shutdownCoordinator) Draining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase >= phaseDraining
}

func (c *shutdownCoordinator) setPhase(p shutdownPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return int(syscall.SIGINT)
}
