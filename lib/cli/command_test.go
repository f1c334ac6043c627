// Copyright 2026 The dtxd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestDispatchSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "dtxctl",
		Subcommands: []*Command{
			{
				Name: "status",
				Run: func(args []string) error {
					ran = append(ran, "status")
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"status"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ran) != 1 || ran[0] != "status" {
		t.Errorf("ran = %v, want [status]", ran)
	}
}

func TestUnknownSubcommand(t *testing.T) {
	root := &Command{
		Name:        "dtxctl",
		Subcommands: []*Command{{Name: "status", Run: func([]string) error { return nil }}},
	}

	err := root.Execute([]string{"stats"})
	if err == nil {
		t.Fatal("Execute with unknown subcommand succeeded, want error")
	}
	if !strings.Contains(err.Error(), `unknown command "stats"`) {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestFlagParsing(t *testing.T) {
	var count int
	cmd := &Command{
		Name: "journal",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("journal", pflag.ContinueOnError)
			flags.IntVar(&count, "count", 20, "number of entries")
			return flags
		},
		Run: func(args []string) error { return nil },
	}

	if err := cmd.Execute([]string{"--count", "5"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestSubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "dtxctl",
		Subcommands: []*Command{{Name: "status", Run: func([]string) error { return nil }}},
	}

	if err := root.Execute(nil); err == nil {
		t.Error("Execute without subcommand succeeded, want error")
	}
}

func TestHelpOutput(t *testing.T) {
	root := &Command{
		Name:    "dtxctl",
		Summary: "Control the DTX daemon",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show daemon status", Run: func([]string) error { return nil }},
		},
	}

	var help strings.Builder
	root.PrintHelp(&help)
	out := help.String()
	for _, want := range []string{"Control the DTX daemon", "status", "Show daemon status"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}
