// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

// Dtxd is the userspace daemon for the Surface detachment subsystem
// (DTX): the motorized latch that releases the tablet from the base
// on convertible devices.
//
// The daemon reads hardware events from the DTX character device,
// drives the detach/attach policy state machine, runs the operator's
// handler programs at each transition, and issues latch commands back
// to the hardware. Status is published over a CBOR Unix-socket IPC
// service to interested consumers (dtxctl, desktop integration).
//
// On startup:
//  1. Loads the configuration file and sets up logging.
//  2. Opens the DTX device and queries the current operating mode so
//     IPC consumers see correct state before the first event.
//  3. Starts the process task queue consumer, the hardware event
//     task, the IPC service, and the shutdown coordinator.
//
// The detach flow is safety-critical in one direction: the latch-open
// command physically releases the tablet, so it must never be issued
// from a stale state. Every queued job re-checks the machine state
// after its suspension point (subprocess wait, timer) before touching
// the hardware; that re-check is the system's sole correctness
// mechanism against races between hardware notifications, timers, and
// subprocess completions.
//
// The daemon runs until signaled. A first SIGINT/SIGTERM drains the
// task queue and exits cleanly; a second terminates immediately with
// the conventional 128+signal exit code.
package main
