// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/linux-surface/dtxd/lib/clock"
	"github.com/linux-surface/dtxd/lib/config"
	"github.com/linux-surface/dtxd/lib/dtx"
	"github.com/linux-surface/dtxd/lib/ipc"
	"github.com/linux-surface/dtxd/lib/process"
	"github.com/linux-surface/dtxd/lib/version"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	devicePath := flag.String("device", dtx.DevicePath, "path to the DTX device")
	socketPath := flag.String("socket", ipc.DefaultSocketPath, "path to the IPC socket")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("dtxd " + version.Full())
		return
	}

	if err := run(*configPath, *devicePath, *socketPath); err != nil {
		process.Fatal(err)
	}
}

func run(configPath, devicePath, socketPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	device, err := dtx.OpenPath(devicePath)
	if err != nil {
		return err
	}
	defer device.Close()

	clk := clock.Real()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The journal is optional; without it, recording is a no-op.
	var rec recorder = nopRecorder{}
	var jnl *journal
	if cfg.Journal.Path != "" {
		jnl, err = openJournal(cfg.Journal, clk, logger.With("component", "journal"))
		if err != nil {
			return err
		}
		defer jnl.Close()
		rec = jnl
		go jnl.Run(ctx)
	}

	queue := newTaskQueue(logger.With("component", "queue"))

	service := newService(logger.With("component", "service"), device.Commands(), journalOrNil(jnl))
	handler := newEventHandler(logger, cfg, service, device.Commands(), queue, clk, rec)
	service.state = handler.State

	listener, err := listenSocket(socketPath)
	if err != nil {
		return err
	}
	defer listener.Close()

	// Seed the cached device mode so status queries are correct
	// before the first opmode event arrives.
	mode, err := device.Commands().OpMode()
	if err != nil {
		return err
	}
	service.SetDeviceMode(mode)

	logger.Info("dtxd started",
		"version", version.Info(), "device", devicePath, "socket", socketPath)

	errs := make(chan error, 4)
	quiesced := make(chan struct{})

	coordinator := newShutdownCoordinator(logger, queue.Drain, quiesced)
	coordinator.Notify()
	go coordinator.Run()

	// Queue consumer: runs handler subprocesses serially. An error
	// during normal operation is fatal; during a drain it is only
	// logged, since the daemon is going away regardless.
	go func() {
		err := queue.Run(handler.runTask)
		close(quiesced)
		if err != nil {
			if coordinator.Draining() {
				logFatalError(logger, "error while terminating", err)
			} else {
				errs <- err
			}
		}
	}()

	// Event pump: the single consumer of the device's event stream.
	go func() {
		events := device.Events()
		for {
			raw, err := events.Next()
			if err != nil {
				errs <- err
				return
			}
			if err := handler.HandleRaw(raw); err != nil {
				errs <- err
				return
			}
		}
	}()

	go func() {
		if err := service.Serve(ctx, listener); err != nil {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		logFatalError(logger, "critical error, terminating", err)
		os.Exit(1)
		return nil
	case <-coordinator.Done():
		logger.Info("dtxd stopped")
		return nil
	}
}

// journalOrNil avoids handing the service a non-nil interface wrapping
// a nil *journal.
func journalOrNil(j *journal) journalSource {
	if j == nil {
		return nil
	}
	return j
}

// logFatalError logs err and its full cause chain.
func logFatalError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		logger.Error("caused by", "error", cause)
	}
}
