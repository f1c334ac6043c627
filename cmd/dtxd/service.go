// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/linux-surface/dtxd/lib/codec"
	"github.com/linux-surface/dtxd/lib/dtx"
	"github.com/linux-surface/dtxd/lib/ipc"
	"github.com/linux-surface/dtxd/lib/version"
)

// requestDeadline bounds a single request/response exchange. It does
// not apply to subscribed connections, which stream until the client
// goes away.
const requestDeadline = 30 * time.Second

// journalSource is what the service needs from the journal. Nil when
// the journal is disabled.
type journalSource interface {
	Recent(n int) ([]ipc.JournalEntry, error)
}

// dtxService answers client requests on the Unix socket and pushes
// status signals to subscribers. It caches the last known device mode
// so status queries never touch the hardware.
type dtxService struct {
	logger   *slog.Logger
	commands latchCommands
	state    func() machineState
	journal  journalSource

	mu          sync.Mutex
	mode        dtx.OpMode
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	signals chan ipc.Signal
}

func newService(logger *slog.Logger, commands latchCommands, journal journalSource) *dtxService {
	return &dtxService{
		logger:      logger,
		commands:    commands,
		journal:     journal,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// SetDeviceMode records a device mode change and notifies
// subscribers.
func (s *dtxService) SetDeviceMode(mode dtx.OpMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	s.broadcast(ipc.Signal{DeviceMode: mode.String()})
}

// SignalDetachStateChange notifies subscribers that the detach/attach
// cycle progressed.
func (s *dtxService) SignalDetachStateChange(state ipc.DetachState) {
	s.broadcast(ipc.Signal{DetachState: state})
}

func (s *dtxService) deviceMode() dtx.OpMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// broadcast delivers a signal to every subscriber without blocking.
// A subscriber that cannot keep up loses the signal.
func (s *dtxService) broadcast(signal ipc.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subscribers {
		select {
		case sub.signals <- signal:
		default:
			s.logger.Warn("subscriber not keeping up, dropping signal")
		}
	}
}

func (s *dtxService) addSubscriber() *subscriber {
	sub := &subscriber{signals: make(chan ipc.Signal, 16)}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *dtxService) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
}

// listenSocket creates the daemon's Unix socket, replacing a stale
// one left over from a previous run.
func listenSocket(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}
	return listener, nil
}

// Serve accepts connections until ctx is cancelled or the listener
// fails. Each connection is handled on its own goroutine.
func (s *dtxService) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *dtxService) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(requestDeadline))

	var request ipc.Request
	if err := codec.NewDecoder(conn).Decode(&request); err != nil {
		s.logger.Debug("failed to decode request", "error", err)
		return
	}

	encoder := codec.NewEncoder(conn)

	switch request.Action {
	case ipc.ActionStatus:
		s.respond(encoder, ipc.Response{
			OK:           true,
			DeviceMode:   s.deviceMode().String(),
			MachineState: s.state().String(),
			Version:      version.Info(),
		})

	case ipc.ActionGetDeviceMode:
		s.respond(encoder, ipc.Response{
			OK:         true,
			DeviceMode: s.deviceMode().String(),
		})

	case ipc.ActionLatchRequest:
		if err := s.commands.LatchRequest(); err != nil {
			s.respond(encoder, ipc.Response{Error: err.Error()})
			return
		}
		s.respond(encoder, ipc.Response{OK: true})

	case ipc.ActionJournal:
		s.respondJournal(encoder, request.Count)

	case ipc.ActionSubscribe:
		s.serveSubscription(ctx, conn, encoder)

	default:
		s.respond(encoder, ipc.Response{
			Error: fmt.Sprintf("unknown action %q", request.Action),
		})
	}
}

func (s *dtxService) respond(encoder *codec.Encoder, response ipc.Response) {
	if err := encoder.Encode(response); err != nil {
		s.logger.Debug("failed to encode response", "error", err)
	}
}

func (s *dtxService) respondJournal(encoder *codec.Encoder, count int) {
	if s.journal == nil {
		s.respond(encoder, ipc.Response{Error: "journal is disabled"})
		return
	}
	if count <= 0 {
		count = 32
	}

	entries, err := s.journal.Recent(count)
	if err != nil {
		s.respond(encoder, ipc.Response{Error: err.Error()})
		return
	}
	s.respond(encoder, ipc.Response{OK: true, Journal: entries})
}

// serveSubscription acknowledges the subscribe request and then
// streams signals until the client disconnects or the daemon shuts
// down.
func (s *dtxService) serveSubscription(ctx context.Context, conn net.Conn, encoder *codec.Encoder) {
	conn.SetDeadline(time.Time{})

	if err := encoder.Encode(ipc.Response{OK: true}); err != nil {
		s.logger.Debug("failed to acknowledge subscription", "error", err)
		return
	}

	sub := s.addSubscriber()
	defer s.removeSubscriber(sub)

	// Detect the client going away: a subscribed client never sends
	// again, so any read completion means hangup.
	hangup := make(chan struct{})
	go func() {
		var buf [1]byte
		conn.Read(buf[:])
		close(hangup)
	}()

	for {
		select {
		case signal := <-sub.signals:
			if err := encoder.Encode(signal); err != nil {
				s.logger.Debug("failed to stream signal", "error", err)
				return
			}
		case <-hangup:
			return
		case <-ctx.Done():
			return
		}
	}
}
