// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/linux-surface/dtxd/lib/clock"
	"github.com/linux-surface/dtxd/lib/config"
	"github.com/linux-surface/dtxd/lib/dtx"
	"github.com/linux-surface/dtxd/lib/ipc"
	"github.com/linux-surface/dtxd/lib/process"
)

// machineState is the daemon's policy state. The zero value is
// stateNormal: idle, tablet attached, latch closed.
type machineState int

const (
	stateNormal machineState = iota
	stateDetaching
	stateAborting
	stateAttaching
)

func (s machineState) String() string {
	switch s {
	case stateNormal:
		return "normal"
	case stateDetaching:
		return "detaching"
	case stateAborting:
		return "aborting"
	case stateAttaching:
		return "attaching"
	default:
		return fmt.Sprintf("machineState(%d)", int(s))
	}
}

// statusSink is the subset of the IPC service the event handler
// pushes status to. Both methods are fire-and-forget and must never
// block the event path.
type statusSink interface {
	SetDeviceMode(mode dtx.OpMode)
	SignalDetachStateChange(state ipc.DetachState)
}

// latchCommands is the subset of device commands the event handler
// issues.
type latchCommands interface {
	LatchOpen() error
	LatchRequest() error
}

// EventHandler owns the machine state and consumes classified
// hardware events. Transitions happen either directly in HandleRaw
// (called from the event goroutine) or from a task body on the queue
// consumer goroutine, and task bodies re-check the state before
// acting, because it may have moved while they were suspended.
//
// The state cell is guarded by mu since the two goroutines share it.
// ignoreRequests is touched only by the event goroutine and needs no
// lock.
type EventHandler struct {
	logger   *slog.Logger
	config   *config.Config
	service  statusSink
	commands latchCommands
	queue    *taskQueue
	clock    clock.Clock
	recorder recorder

	mu    sync.Mutex
	state machineState

	// ignoreRequests counts detach-request events that are expected
	// duplicates: issuing a latch-request command while Aborting or
	// Attaching makes the hardware echo one detach-request back.
	ignoreRequests int
}

func newEventHandler(
	logger *slog.Logger,
	cfg *config.Config,
	service statusSink,
	commands latchCommands,
	queue *taskQueue,
	clk clock.Clock,
	rec recorder,
) *EventHandler {
	return &EventHandler{
		logger:   logger,
		config:   cfg,
		service:  service,
		commands: commands,
		queue:    queue,
		clock:    clk,
		recorder: rec,
	}
}

// State returns the current machine state.
func (h *EventHandler) State() machineState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// transition moves the machine state and records the move in the
// journal.
func (h *EventHandler) transition(to machineState) {
	h.mu.Lock()
	from := h.state
	h.state = to
	h.mu.Unlock()

	h.recorder.Record(recordTransition, from.String()+" -> "+to.String())
}

// HandleRaw classifies and processes one raw hardware event. A
// returned error is fatal to the daemon: it means a hardware command
// issued directly from the event path failed.
func (h *EventHandler) HandleRaw(raw dtx.RawEvent) error {
	h.logger.Log(context.Background(), config.LevelTrace, "received event",
		"type", raw.Type, "code", raw.Code, "arg0", raw.Arg0, "arg1", raw.Arg1)

	event, ok := dtx.Classify(raw)
	if !ok {
		h.logger.Warn("unhandled event",
			"type", raw.Type, "code", raw.Code, "arg0", raw.Arg0, "arg1", raw.Arg1)
		return nil
	}

	h.recorder.Record(recordEvent, eventDetail(event))

	switch event := event.(type) {
	case dtx.OpModeChange:
		return h.onOpModeChange(event.Mode)
	case dtx.ConnectionChange:
		return h.onConnectionChange(event.State)
	case dtx.LatchStateChange:
		return h.onLatchStateChange(event.State)
	case dtx.DetachRequest:
		return h.onDetachRequest()
	case dtx.DetachError:
		return h.onDetachError(event.Code)
	default:
		return nil
	}
}

func (h *EventHandler) onOpModeChange(mode dtx.OpMode) error {
	h.logger.Debug("device mode changed", "mode", mode)
	h.service.SetDeviceMode(mode)
	return nil
}

func (h *EventHandler) onLatchStateChange(latch dtx.LatchState) error {
	h.logger.Debug("latch state changed", "state", latch)

	if latch == dtx.LatchOpen {
		h.service.SignalDetachStateChange(ipc.DetachReady)
	}
	return nil
}

func (h *EventHandler) onConnectionChange(connection dtx.ConnectionState) error {
	h.logger.Debug("base connection changed", "state", connection)

	state := h.State()
	switch {
	case state == stateDetaching && connection == dtx.Disconnected:
		h.transition(stateNormal)
		h.service.SignalDetachStateChange(ipc.DetachCompleted)
		h.logger.Debug("detachment procedure completed")

	case state == stateNormal && connection == dtx.Connected:
		h.transition(stateAttaching)
		h.queue.Submit(task{kind: taskAttach})

	default:
		h.logger.Error("invalid state for connection change",
			"state", state, "connection", connection)
	}
	return nil
}

func (h *EventHandler) onDetachRequest() error {
	if h.ignoreRequests > 0 {
		h.ignoreRequests--
		return nil
	}

	switch state := h.State(); state {
	case stateNormal:
		h.logger.Debug("detach requested")
		h.transition(stateDetaching)
		h.queue.Submit(task{kind: taskDetach})

	case stateDetaching:
		h.logger.Debug("detach-abort requested")
		h.transition(stateAborting)
		h.service.SignalDetachStateChange(ipc.DetachAborted)
		h.queue.Submit(task{kind: taskDetachAbort})

	case stateAborting, stateAttaching:
		// The hardware answers the latch-request command with a
		// detach-request event of its own; swallow that echo.
		h.ignoreRequests++
		return h.latchRequest()
	}
	return nil
}

func (h *EventHandler) onDetachError(code uint8) error {
	if code == dtx.DetachErrorTimeout {
		h.logger.Debug("detachment procedure: timed out")
	} else {
		h.logger.Error("unknown detach error event", "code", code)
	}

	if h.State() == stateDetaching {
		h.transition(stateAborting)
		h.queue.Submit(task{kind: taskDetachAbort})
	}
	return nil
}

// latchOpen issues the latch-open command: the point of no return for
// the current detach cycle.
func (h *EventHandler) latchOpen() error {
	h.recorder.Record(recordCommand, "latch-open")
	if err := h.commands.LatchOpen(); err != nil {
		return fmt.Errorf("opening latch: %w", err)
	}
	return nil
}

func (h *EventHandler) latchRequest() error {
	h.recorder.Record(recordCommand, "latch-request")
	if err := h.commands.LatchRequest(); err != nil {
		return fmt.Errorf("requesting latch: %w", err)
	}
	return nil
}

// runTask executes one queued task on the queue consumer goroutine.
// Tasks are the only place handler subprocesses run, so they are
// serialized by construction.
func (h *EventHandler) runTask(t task) error {
	switch t.kind {
	case taskAttach:
		return h.runAttach()
	case taskDetach:
		return h.runDetach()
	case taskDetachAbort:
		return h.runDetachAbort()
	default:
		return fmt.Errorf("unknown task kind %d", int(t.kind))
	}
}

func (h *EventHandler) runAttach() error {
	if delay := h.config.Delay.AttachDelay(); delay > 0 {
		h.logger.Debug("subprocess: delaying attach process", "delay", delay)
		h.clock.Sleep(delay)
	}

	if path := h.config.Handler.Attach; path != "" {
		h.logger.Debug("subprocess: attach started")
		output, err := process.Run(path, h.config.Handler.Dir, nil)
		if err != nil {
			return fmt.Errorf("attach handler: %w", err)
		}
		h.logger.Debug("subprocess: attach finished")
		output.Log(h.logger)
	} else {
		h.logger.Debug("subprocess: no attach handler executable")
	}

	// Unconditional: the attach sequence always ends in Normal,
	// regardless of what happened while the handler ran.
	h.transition(stateNormal)
	h.service.SignalDetachStateChange(ipc.AttachCompleted)
	return nil
}

func (h *EventHandler) runDetach() error {
	if path := h.config.Handler.Detach; path != "" {
		h.logger.Debug("subprocess: detach started")
		output, err := process.Run(path, h.config.Handler.Dir, []string{
			"EXIT_DETACH_COMMENCE=0",
			"EXIT_DETACH_ABORT=1",
		})
		if err != nil {
			return fmt.Errorf("detach handler: %w", err)
		}
		h.logger.Debug("subprocess: detach finished")
		output.Log(h.logger)
		return h.concludeDetach(output.Success())
	}

	// No handler: commence immediately, an implicit success.
	h.logger.Debug("subprocess: no detach handler executable")
	return h.concludeDetach(true)
}

// concludeDetach re-checks the machine state after the detach
// handler's suspension point and acts on the handler's verdict. If
// the state moved away from Detaching while the handler ran (a second
// detach-request raced it into Aborting), no hardware command is
// issued.
func (h *EventHandler) concludeDetach(commence bool) error {
	if h.State() != stateDetaching {
		h.logger.Debug("state changed during detachment, not opening latch")
		return nil
	}

	if commence {
		h.logger.Debug("commencing detach, opening latch")
		return h.latchOpen()
	}

	h.logger.Info("aborting detach")
	return h.latchRequest()
}

func (h *EventHandler) runDetachAbort() error {
	if path := h.config.Handler.DetachAbort; path != "" {
		h.logger.Debug("subprocess: detach_abort started")
		output, err := process.Run(path, h.config.Handler.Dir, nil)
		if err != nil {
			return fmt.Errorf("detach-abort handler: %w", err)
		}
		h.logger.Debug("subprocess: detach_abort finished")
		output.Log(h.logger)
	} else {
		h.logger.Debug("subprocess: no detach_abort handler executable")
	}

	h.transition(stateNormal)
	return nil
}

// eventDetail renders a classified event for the journal.
func eventDetail(event dtx.Event) string {
	switch event := event.(type) {
	case dtx.OpModeChange:
		return "opmode " + event.Mode.String()
	case dtx.ConnectionChange:
		return "connection " + event.State.String()
	case dtx.LatchStateChange:
		return "latch " + event.State.String()
	case dtx.DetachRequest:
		return "detach-request"
	case dtx.DetachError:
		return fmt.Sprintf("detach-error %#02x", event.Code)
	default:
		return fmt.Sprintf("%T", event)
	}
}
