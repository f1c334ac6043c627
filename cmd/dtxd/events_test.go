// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/linux-surface/dtxd/lib/clock"
	"github.com/linux-surface/dtxd/lib/config"
	"github.com/linux-surface/dtxd/lib/dtx"
	"github.com/linux-surface/dtxd/lib/ipc"
)

type fakeSink struct {
	modes  []dtx.OpMode
	states []ipc.DetachState
}

func (s *fakeSink) SetDeviceMode(mode dtx.OpMode)              { s.modes = append(s.modes, mode) }
func (s *fakeSink) SignalDetachStateChange(st ipc.DetachState) { s.states = append(s.states, st) }

type fakeCommands struct {
	opens    int
	requests int
}

func (c *fakeCommands) LatchOpen() error    { c.opens++; return nil }
func (c *fakeCommands) LatchRequest() error { c.requests++; return nil }

func newTestHandler(t *testing.T) (*EventHandler, *fakeSink, *fakeCommands, *taskQueue) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	sink := &fakeSink{}
	commands := &fakeCommands{}
	queue := newTaskQueue(logger)
	handler := newEventHandler(
		logger, config.Default(), sink, commands, queue, clock.Real(), nopRecorder{})
	return handler, sink, commands, queue
}

// pendingTasks drains the queue's buffered tasks without closing it.
func pendingTasks(q *taskQueue) []taskKind {
	var kinds []taskKind
	for {
		select {
		case task := <-q.tasks:
			kinds = append(kinds, task.kind)
		default:
			return kinds
		}
	}
}

func rawDetachRequest() dtx.RawEvent {
	return dtx.RawEvent{Type: 0x11, Code: 0x0e}
}

func rawConnection(state uint8) dtx.RawEvent {
	return dtx.RawEvent{Type: 0x11, Code: 0x0c, Arg0: state}
}

func rawDetachError(code uint8) dtx.RawEvent {
	return dtx.RawEvent{Type: 0x11, Code: 0x0f, Arg0: code}
}

func rawLatch(state uint8) dtx.RawEvent {
	return dtx.RawEvent{Type: 0x11, Code: 0x11, Arg0: state}
}

func TestDetachCycle(t *testing.T) {
	handler, sink, commands, queue := newTestHandler(t)

	// Button press: the detach sequence starts.
	if err := handler.HandleRaw(rawDetachRequest()); err != nil {
		t.Fatalf("HandleRaw: %v", err)
	}
	if got := handler.State(); got != stateDetaching {
		t.Fatalf("state = %v, want detaching", got)
	}
	if got := pendingTasks(queue); len(got) != 1 || got[0] != taskDetach {
		t.Fatalf("queued tasks = %v, want [detach]", got)
	}

	// The detach task runs; without a handler executable it commences
	// immediately and opens the latch.
	if err := handler.runTask(task{kind: taskDetach}); err != nil {
		t.Fatalf("runTask(detach): %v", err)
	}
	if commands.opens != 1 {
		t.Fatalf("latch opens = %d, want 1", commands.opens)
	}

	// Hardware confirms the open latch, then the user lifts the
	// tablet off.
	if err := handler.HandleRaw(rawLatch(0x01)); err != nil {
		t.Fatalf("HandleRaw(latch): %v", err)
	}
	if err := handler.HandleRaw(rawConnection(0x00)); err != nil {
		t.Fatalf("HandleRaw(disconnect): %v", err)
	}

	if got := handler.State(); got != stateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
	want := []ipc.DetachState{ipc.DetachReady, ipc.DetachCompleted}
	if len(sink.states) != len(want) {
		t.Fatalf("signals = %v, want %v", sink.states, want)
	}
	for i := range want {
		if sink.states[i] != want[i] {
			t.Fatalf("signals = %v, want %v", sink.states, want)
		}
	}
}

func TestDetachAbortedBySecondRequest(t *testing.T) {
	handler, sink, commands, queue := newTestHandler(t)

	handler.HandleRaw(rawDetachRequest())
	if got := handler.State(); got != stateDetaching {
		t.Fatalf("state = %v, want detaching", got)
	}

	// A second press while detaching cancels the procedure.
	handler.HandleRaw(rawDetachRequest())
	if got := handler.State(); got != stateAborting {
		t.Fatalf("state = %v, want aborting", got)
	}
	if got := pendingTasks(queue); len(got) != 2 || got[1] != taskDetachAbort {
		t.Fatalf("queued tasks = %v, want [detach detach-abort]", got)
	}
	if len(sink.states) != 1 || sink.states[0] != ipc.DetachAborted {
		t.Fatalf("signals = %v, want [detach-aborted]", sink.states)
	}

	// The detach task still runs, but the state moved on, so no latch
	// command may be issued.
	if err := handler.runTask(task{kind: taskDetach}); err != nil {
		t.Fatalf("runTask(detach): %v", err)
	}
	if commands.opens != 0 || commands.requests != 0 {
		t.Fatalf("commands = %d opens, %d requests, want none",
			commands.opens, commands.requests)
	}

	// The abort task restores the idle state.
	if err := handler.runTask(task{kind: taskDetachAbort}); err != nil {
		t.Fatalf("runTask(detach-abort): %v", err)
	}
	if got := handler.State(); got != stateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
}

func TestDetachTimeout(t *testing.T) {
	handler, _, _, queue := newTestHandler(t)

	handler.HandleRaw(rawDetachRequest())
	pendingTasks(queue)

	// 0x02: the hardware timed out waiting for the latch to open.
	handler.HandleRaw(rawDetachError(0x02))
	if got := handler.State(); got != stateAborting {
		t.Fatalf("state = %v, want aborting", got)
	}
	if got := pendingTasks(queue); len(got) != 1 || got[0] != taskDetachAbort {
		t.Fatalf("queued tasks = %v, want [detach-abort]", got)
	}
}

func TestDetachErrorOutsideDetaching(t *testing.T) {
	handler, _, _, queue := newTestHandler(t)

	handler.HandleRaw(rawDetachError(0x02))
	if got := handler.State(); got != stateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
	if got := pendingTasks(queue); len(got) != 0 {
		t.Fatalf("queued tasks = %v, want none", got)
	}
}

func TestAttachCycle(t *testing.T) {
	handler, sink, _, queue := newTestHandler(t)

	handler.HandleRaw(rawConnection(0x01))
	if got := handler.State(); got != stateAttaching {
		t.Fatalf("state = %v, want attaching", got)
	}
	if got := pendingTasks(queue); len(got) != 1 || got[0] != taskAttach {
		t.Fatalf("queued tasks = %v, want [attach]", got)
	}

	if err := handler.runTask(task{kind: taskAttach}); err != nil {
		t.Fatalf("runTask(attach): %v", err)
	}
	if got := handler.State(); got != stateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
	if len(sink.states) != 1 || sink.states[0] != ipc.AttachCompleted {
		t.Fatalf("signals = %v, want [attach-completed]", sink.states)
	}
}

func TestRequestWhileAbortingSwallowsEcho(t *testing.T) {
	handler, _, commands, queue := newTestHandler(t)

	// Drive the handler into Aborting.
	handler.HandleRaw(rawDetachRequest())
	handler.HandleRaw(rawDetachRequest())
	pendingTasks(queue)

	// A press during the abort re-issues latch-request, and the
	// hardware answers that command with a detach-request of its own.
	handler.HandleRaw(rawDetachRequest())
	if commands.requests != 1 {
		t.Fatalf("latch requests = %d, want 1", commands.requests)
	}

	// The echo must be swallowed: no state change, no extra command.
	handler.HandleRaw(rawDetachRequest())
	if commands.requests != 1 {
		t.Fatalf("latch requests = %d after echo, want 1", commands.requests)
	}
	if got := handler.State(); got != stateAborting {
		t.Fatalf("state = %v, want aborting", got)
	}
	if got := pendingTasks(queue); len(got) != 0 {
		t.Fatalf("queued tasks = %v, want none", got)
	}
}

func TestOpModeChangeUpdatesService(t *testing.T) {
	handler, sink, _, _ := newTestHandler(t)

	handler.HandleRaw(dtx.RawEvent{Type: 0x11, Code: 0x0d, Arg0: 0x01})
	if len(sink.modes) != 1 || sink.modes[0] != dtx.Laptop {
		t.Fatalf("modes = %v, want [laptop]", sink.modes)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	handler, _, _, queue := newTestHandler(t)

	if err := handler.HandleRaw(dtx.RawEvent{Type: 0x22, Code: 0x01}); err != nil {
		t.Fatalf("HandleRaw: %v", err)
	}
	if got := handler.State(); got != stateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
	if got := pendingTasks(queue); len(got) != 0 {
		t.Fatalf("queued tasks = %v, want none", got)
	}
}

func TestRepeatedConnectedWhileAttaching(t *testing.T) {
	handler, _, _, queue := newTestHandler(t)

	handler.HandleRaw(rawConnection(0x01))
	pendingTasks(queue)

	// A duplicate Connected while already attaching is invalid and
	// must not schedule anything further.
	handler.HandleRaw(rawConnection(0x01))
	if got := handler.State(); got != stateAttaching {
		t.Fatalf("state = %v, want attaching", got)
	}
	if got := pendingTasks(queue); len(got) != 0 {
		t.Fatalf("queued tasks = %v, want none", got)
	}
}

func writeHandlerScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing handler script: %v", err)
	}
	return path
}

func TestDetachHandlerCommences(t *testing.T) {
	handler, _, commands, _ := newTestHandler(t)
	dir := t.TempDir()
	handler.config.Handler.Dir = dir
	handler.config.Handler.Detach = writeHandlerScript(t, dir, "detach.sh",
		`test "$EXIT_DETACH_COMMENCE" = 0 || exit 1`)

	handler.transition(stateDetaching)
	if err := handler.runTask(task{kind: taskDetach}); err != nil {
		t.Fatalf("runTask(detach): %v", err)
	}

	// Exit 0 commences: latch opens, state stays Detaching until the
	// hardware reports the disconnect.
	if commands.opens != 1 || commands.requests != 0 {
		t.Fatalf("commands = %d opens, %d requests, want 1 open",
			commands.opens, commands.requests)
	}
	if got := handler.State(); got != stateDetaching {
		t.Fatalf("state = %v, want detaching", got)
	}
}

func TestDetachHandlerAborts(t *testing.T) {
	handler, _, commands, _ := newTestHandler(t)
	dir := t.TempDir()
	handler.config.Handler.Dir = dir
	handler.config.Handler.Detach = writeHandlerScript(t, dir, "detach.sh",
		`exit "$EXIT_DETACH_ABORT"`)

	handler.transition(stateDetaching)
	if err := handler.runTask(task{kind: taskDetach}); err != nil {
		t.Fatalf("runTask(detach): %v", err)
	}

	// Non-zero exit aborts: latch-request instead of latch-open.
	if commands.opens != 0 || commands.requests != 1 {
		t.Fatalf("commands = %d opens, %d requests, want 1 request",
			commands.opens, commands.requests)
	}
}

func TestAttachUnconditionallyResets(t *testing.T) {
	handler, _, _, queue := newTestHandler(t)

	handler.HandleRaw(rawConnection(0x01))
	pendingTasks(queue)

	// Even if the state was perturbed while the attach task waited,
	// finishing the attach sequence lands in Normal.
	handler.transition(stateAborting)
	if err := handler.runTask(task{kind: taskAttach}); err != nil {
		t.Fatalf("runTask(attach): %v", err)
	}
	if got := handler.State(); got != stateNormal {
		t.Fatalf("state = %v, want normal", got)
	}
}
