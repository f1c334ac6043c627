// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/linux-surface/dtxd/lib/cli"
	"github.com/linux-surface/dtxd/lib/ipc"
	"github.com/linux-surface/dtxd/lib/version"
)

var socketPath string

func socketFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("dtxctl", pflag.ContinueOnError)
	flags.StringVarP(&socketPath, "socket", "s", ipc.DefaultSocketPath,
		"path to the dtxd socket")
	return flags
}

func main() {
	root := &cli.Command{
		Name:    "dtxctl",
		Summary: "Control and query the dtxd detachment daemon",
		Description: "dtxctl is the command-line client for dtxd, the daemon\n" +
			"managing clipboard detachment on Microsoft Surface devices.",
		Subcommands: []*cli.Command{
			statusCommand(),
			modeCommand(),
			requestCommand(),
			monitorCommand(),
			journalCommand(),
			versionCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dtxctl: %v\n", err)
		os.Exit(1)
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "Show daemon state and device mode",
		Flags:   socketFlags,
		Run: func(args []string) error {
			response, err := request(socketPath, ipc.Request{Action: ipc.ActionStatus})
			if err != nil {
				return err
			}
			fmt.Printf("state:   %s\n", response.MachineState)
			fmt.Printf("mode:    %s\n", response.DeviceMode)
			fmt.Printf("version: %s\n", response.Version)
			return nil
		},
	}
}

func modeCommand() *cli.Command {
	return &cli.Command{
		Name:    "mode",
		Summary: "Print the current device operating mode",
		Flags:   socketFlags,
		Run: func(args []string) error {
			response, err := request(socketPath, ipc.Request{Action: ipc.ActionGetDeviceMode})
			if err != nil {
				return err
			}
			fmt.Println(response.DeviceMode)
			return nil
		},
	}
}

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:    "request",
		Summary: "Trigger a latch request (like pressing the detach button)",
		Description: "Sends a latch-request command through the daemon. In the idle\n" +
			"state this starts a detachment; during a detachment it cancels it.",
		Flags: socketFlags,
		Run: func(args []string) error {
			_, err := request(socketPath, ipc.Request{Action: ipc.ActionLatchRequest})
			return err
		},
	}
}

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Summary: "Stream detach/attach notifications until interrupted",
		Examples: []cli.Example{
			{Description: "Watch a detach cycle live", Command: "dtxctl monitor"},
		},
		Flags: socketFlags,
		Run: func(args []string) error {
			return subscribe(socketPath, func(signal ipc.Signal) error {
				switch {
				case signal.DetachState != "":
					fmt.Printf("detach: %s\n", signal.DetachState)
				case signal.DeviceMode != "":
					fmt.Printf("mode: %s\n", signal.DeviceMode)
				}
				return nil
			})
		},
	}
}

func journalCommand() *cli.Command {
	var count int
	return &cli.Command{
		Name:    "journal",
		Summary: "Show recent entries from the daemon's event journal",
		Flags: func() *pflag.FlagSet {
			flags := socketFlags()
			flags.IntVarP(&count, "count", "n", 32, "number of entries to show")
			return flags
		},
		Run: func(args []string) error {
			response, err := request(socketPath, ipc.Request{
				Action: ipc.ActionJournal,
				Count:  count,
			})
			if err != nil {
				return err
			}
			for _, entry := range response.Journal {
				fmt.Printf("%s  %-10s  %s\n",
					entry.Time.Format("2006-01-02 15:04:05"), entry.Kind, entry.Detail)
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Println("dtxctl " + version.Full())
			return nil
		},
	}
}
