// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package dtx

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevicePath is the DTX character device exposed by the surface_dtx
// kernel driver.
const DevicePath = "/dev/surface/dtx"

// ioctl request numbers for the surface_dtx device. Latch commands
// carry no argument (_IO); the opmode query reads a 32-bit value
// (_IOR). The magic 0x11 matches the driver's event type.
const (
	ioctlLatchOpen    = 0x1121            // _IO(0x11, 0x21)
	ioctlLatchRequest = 0x1122            // _IO(0x11, 0x22)
	ioctlGetOpMode    = 0x80041125        // _IOR(0x11, 0x25, __u32)
)

// Device is an open handle to the DTX device. It is safe to share: the
// command interface may be called from any goroutine, while the event
// stream has a single consumer.
type Device struct {
	file *os.File
}

// Open opens the DTX device at its standard path.
func Open() (*Device, error) {
	return OpenPath(DevicePath)
}

// OpenPath opens the DTX device at path. Useful for tests and for
// systems with a non-standard device node.
func OpenPath(path string) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("dtx: opening device %s: %w", path, err)
	}
	return &Device{file: file}, nil
}

// Close releases the device handle. The event stream returned by
// Events fails after Close.
func (d *Device) Close() error {
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("dtx: closing device: %w", err)
	}
	return nil
}

// Events returns the device's event stream. The stream is not
// restartable: the device delivers each record exactly once, so there
// must be a single consumer.
func (d *Device) Events() *EventReader {
	return &EventReader{r: d.file}
}

// Commands returns the synchronous command interface of the device.
func (d *Device) Commands() Commands {
	return Commands{file: d.file}
}

// EventReader yields raw event records from the device. Next blocks
// until the hardware produces the next record; the stream is
// conceptually infinite and ends only on an I/O error.
type EventReader struct {
	r   io.Reader
	buf [4]byte
}

// NewEventReader constructs an event reader over an arbitrary record
// source. Production code uses Device.Events; tests feed a bytes
// reader.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{r: r}
}

// Next reads the next raw event record. Any error, including EOF, is
// terminal for the stream.
func (er *EventReader) Next() (RawEvent, error) {
	if _, err := io.ReadFull(er.r, er.buf[:]); err != nil {
		return RawEvent{}, fmt.Errorf("dtx: reading event: %w", err)
	}
	return RawEvent{
		Type: er.buf[0],
		Code: er.buf[1],
		Arg0: er.buf[2],
		Arg1: er.buf[3],
	}, nil
}

// Commands issues ioctl commands against the DTX device. All commands
// are synchronous: the call returns once the driver has accepted the
// command. Commands is a small value type; copy it freely.
type Commands struct {
	file *os.File
}

// LatchOpen opens the latch, physically releasing the tablet from the
// base. This is irreversible for the current detach cycle: once the
// latch is open, the tablet can be removed.
func (c Commands) LatchOpen() error {
	if err := c.ioctl(ioctlLatchOpen, 0); err != nil {
		return fmt.Errorf("dtx: latch open: %w", err)
	}
	return nil
}

// LatchRequest mirrors a press of the detach button: in an idle state
// it initiates a detachment request, during a detachment it cancels
// the procedure and re-engages the latch.
func (c Commands) LatchRequest() error {
	if err := c.ioctl(ioctlLatchRequest, 0); err != nil {
		return fmt.Errorf("dtx: latch request: %w", err)
	}
	return nil
}

// OpMode queries the current device operating mode.
func (c Commands) OpMode() (OpMode, error) {
	var mode uint32
	if err := c.ioctl(ioctlGetOpMode, uintptr(unsafe.Pointer(&mode))); err != nil {
		return 0, fmt.Errorf("dtx: querying opmode: %w", err)
	}
	return OpMode(mode), nil
}

func (c Commands) ioctl(request uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, c.file.Fd(), uintptr(request), arg)
	if errno != 0 {
		return errno
	}
	return nil
}
