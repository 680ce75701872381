package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version and commit are set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=abc123" ./cmd/flowchart/
var (
	version = "dev"
	commit  = "none"
)

func versionTemplate() string {
	return fmt.Sprintf("flowchart %s\ncommit: %s\ngo: %s\n", version, commit, runtime.Version())
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(a.stdout, versionTemplate())
			return err
		},
	}
}
