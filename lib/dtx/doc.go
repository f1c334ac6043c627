// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Package dtx provides access to the Surface DTX kernel device: the
// character device through which the detachment subsystem reports
// hardware events (detach-button presses, latch movement, base
// connection changes, operating-mode changes) and accepts latch
// commands.
//
// The package has three parts:
//
//   - [Device] wraps the open device file. [Device.Events] yields the
//     raw event stream; [Device.Commands] issues ioctl commands
//     (latch open, latch request, operating-mode query).
//
//   - [RawEvent] is the fixed-size record read from the device. It is
//     opaque to callers except through [Classify].
//
//   - [Classify] maps a raw record onto the closed set of typed
//     events ([OpModeChange], [ConnectionChange], [LatchStateChange],
//     [DetachRequest], [DetachError]). Classification is a pure
//     lookup with no side effects; records the kernel may emit in the
//     future simply classify as unrecognized.
package dtx
