// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"net"

	"github.com/linux-surface/dtxd/lib/codec"
	"github.com/linux-surface/dtxd/lib/ipc"
)

// request performs one request/response exchange with the daemon. A
// response carrying OK=false is returned as an error.
func request(socket string, req ipc.Request) (ipc.Response, error) {
	conn, err := dial(socket)
	if err != nil {
		return ipc.Response{}, err
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(req); err != nil {
		return ipc.Response{}, fmt.Errorf("sending request: %w", err)
	}

	var response ipc.Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return ipc.Response{}, fmt.Errorf("reading response: %w", err)
	}
	if !response.OK {
		return ipc.Response{}, errors.New(response.Error)
	}
	return response, nil
}

// subscribe opens a streaming connection and invokes handle for each
// signal. It returns when the daemon closes the connection or handle
// fails.
func subscribe(socket string, handle func(ipc.Signal) error) error {
	conn, err := dial(socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(ipc.Request{Action: ipc.ActionSubscribe}); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	decoder := codec.NewDecoder(conn)

	var ack ipc.Response
	if err := decoder.Decode(&ack); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if !ack.OK {
		return errors.New(ack.Error)
	}

	for {
		var signal ipc.Signal
		if err := decoder.Decode(&signal); err != nil {
			return fmt.Errorf("reading signal: %w", err)
		}
		if err := handle(signal); err != nil {
			return err
		}
	}
}

func dial(socket string) (net.Conn, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connecting to dtxd at %s (is the daemon running?): %w",
			socket, err)
	}
	return conn, nil
}
