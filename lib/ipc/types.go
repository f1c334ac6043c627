// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "time"

// DefaultSocketPath is where dtxd listens when no --socket flag is
// given.
const DefaultSocketPath = "/run/dtxd/dtxd.sock"

// Request actions understood by the daemon.
const (
	// ActionStatus returns the daemon's machine state, the current
	// device mode, and the daemon version.
	ActionStatus = "status"

	// ActionGetDeviceMode returns the current device operating mode.
	ActionGetDeviceMode = "get-device-mode"

	// ActionLatchRequest issues a latch-request command to the
	// hardware, equivalent to pressing the detach button.
	ActionLatchRequest = "latch-request"

	// ActionSubscribe switches the connection into streaming mode:
	// the daemon sends a Signal for every detach-state change and
	// device-mode change until the client disconnects.
	ActionSubscribe = "subscribe"

	// ActionJournal returns the most recent event-journal entries.
	// Fails when the journal is disabled in the daemon config.
	ActionJournal = "journal"
)

// DetachState is a status value the daemon broadcasts to subscribers
// as the detach/attach cycle progresses.
type DetachState string

const (
	// DetachReady: the latch is open, the tablet may be removed.
	DetachReady DetachState = "detach-ready"

	// DetachCompleted: the tablet has been removed, the daemon is
	// back in its idle state.
	DetachCompleted DetachState = "detach-completed"

	// DetachAborted: an in-progress detachment was cancelled.
	DetachAborted DetachState = "detach-aborted"

	// AttachCompleted: the tablet has been re-attached and the attach
	// sequence has finished.
	AttachCompleted DetachState = "attach-completed"
)

// Request is a CBOR-encoded request from a client to the daemon.
type Request struct {
	// Action is one of the Action* constants.
	Action string `cbor:"action"`

	// Count limits the number of entries returned by ActionJournal.
	// Zero means the daemon's default.
	Count int `cbor:"count,omitempty"`
}

// Response is the daemon's reply to a single request.
type Response struct {
	// OK reports whether the request succeeded. On failure Error
	// holds a human-readable reason and the remaining fields are
	// unset.
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`

	// DeviceMode is the current operating mode ("tablet", "laptop",
	// "studio"). Set for ActionStatus and ActionGetDeviceMode.
	DeviceMode string `cbor:"device_mode,omitempty"`

	// MachineState is the daemon's policy state ("normal",
	// "detaching", "attaching", "aborting"). Set for ActionStatus.
	MachineState string `cbor:"machine_state,omitempty"`

	// Version is the daemon build version. Set for ActionStatus.
	Version string `cbor:"version,omitempty"`

	// Journal holds the requested journal entries, newest first. Set
	// for ActionJournal.
	Journal []JournalEntry `cbor:"journal,omitempty"`
}

// Signal is one streamed notification on a subscribed connection.
// Exactly one field is set per signal.
type Signal struct {
	// DetachState is set when the detach/attach cycle progressed.
	DetachState DetachState `cbor:"detach_state,omitempty"`

	// DeviceMode is set when the device operating mode changed.
	DeviceMode string `cbor:"device_mode,omitempty"`
}

// JournalEntry is one row of the daemon's event journal.
type JournalEntry struct {
	// Time is when the entry was recorded.
	Time time.Time `cbor:"time"`

	// Kind is "event", "transition", or "command".
	Kind string `cbor:"kind"`

	// Detail is a short human-readable description, e.g.
	// "normal -> detaching" or "latch-open".
	Detail string `cbor:"detail"`
}
