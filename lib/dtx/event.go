// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package dtx

import "fmt"

// RawEvent is one fixed-size notification record as read from the DTX
// character device: an event type, an event code, and two argument
// bytes whose meaning depends on (type, code).
type RawEvent struct {
	Type uint8
	Code uint8
	Arg0 uint8
	Arg1 uint8
}

// Event type and code values emitted by the surface_dtx kernel driver.
// All detachment-subsystem events share type 0x11; the code selects
// the event, Arg0 carries the payload.
const (
	eventTypeDTX = 0x11

	eventCodeConnection    = 0x0c
	eventCodeOpMode        = 0x0d
	eventCodeDetachRequest = 0x0e
	eventCodeDetachError   = 0x0f
	eventCodeLatchState    = 0x11
)

// DetachErrorTimeout is the detach error code the hardware reports
// when the detachment procedure exceeded its internal time limit.
const DetachErrorTimeout uint8 = 0x02

// OpMode is the device operating mode (posture) reported by the
// hardware.
type OpMode uint8

// Operating modes. The values are the raw Arg0 payload of an opmode
// event and the value returned by the opmode ioctl.
const (
	Tablet OpMode = 0x00
	Laptop OpMode = 0x01
	Studio OpMode = 0x02
)

func (m OpMode) String() string {
	switch m {
	case Tablet:
		return "tablet"
	case Laptop:
		return "laptop"
	case Studio:
		return "studio"
	default:
		return fmt.Sprintf("opmode(%#02x)", uint8(m))
	}
}

// LatchState is the mechanical latch position.
type LatchState uint8

const (
	LatchClosed LatchState = 0x00
	LatchOpen   LatchState = 0x01
)

func (s LatchState) String() string {
	switch s {
	case LatchClosed:
		return "closed"
	case LatchOpen:
		return "open"
	default:
		return fmt.Sprintf("latch(%#02x)", uint8(s))
	}
}

// ConnectionState is the state of the electrical/data link between
// base and tablet.
type ConnectionState uint8

const (
	Disconnected ConnectionState = 0x00
	Connected    ConnectionState = 0x01
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("connection(%#02x)", uint8(s))
	}
}

// Event is a classified DTX notification. The concrete types are
// OpModeChange, ConnectionChange, LatchStateChange, DetachRequest,
// and DetachError; no other implementations exist.
type Event interface {
	isEvent()
}

// OpModeChange reports a change of the device operating mode.
type OpModeChange struct {
	Mode OpMode
}

// ConnectionChange reports the base↔tablet link going up or down.
type ConnectionChange struct {
	State ConnectionState
}

// LatchStateChange reports movement of the mechanical latch.
type LatchStateChange struct {
	State LatchState
}

// DetachRequest reports a press of the detach button (or an
// equivalent request issued through the latch-request command).
type DetachRequest struct{}

// DetachError reports a hardware-side failure of the detachment
// procedure. Code 0x02 ([DetachErrorTimeout]) means the procedure
// timed out; other codes are reserved by the hardware.
type DetachError struct {
	Code uint8
}

func (OpModeChange) isEvent()     {}
func (ConnectionChange) isEvent() {}
func (LatchStateChange) isEvent() {}
func (DetachRequest) isEvent()    {}
func (DetachError) isEvent()      {}

// Classify maps a raw record onto a typed event. The second return is
// false when the record is not one the daemon understands; callers
// log such records and carry on.
func Classify(raw RawEvent) (Event, bool) {
	if raw.Type != eventTypeDTX {
		return nil, false
	}

	switch raw.Code {
	case eventCodeConnection:
		return ConnectionChange{State: ConnectionState(raw.Arg0)}, true
	case eventCodeOpMode:
		return OpModeChange{Mode: OpMode(raw.Arg0)}, true
	case eventCodeDetachRequest:
		return DetachRequest{}, true
	case eventCodeDetachError:
		return DetachError{Code: raw.Arg0}, true
	case eventCodeLatchState:
		return LatchStateChange{State: LatchState(raw.Arg0)}, true
	default:
		return nil, false
	}
}
