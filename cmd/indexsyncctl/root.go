// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// ServerEnvVar overrides the default server URL.
const ServerEnvVar = "INDEXSYNC_SERVER"

const defaultServer = "http://127.0.0.1:8080"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server  string
	timeout time.Duration
	output  string
}

func (o *globalOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "indexsyncctl",
		Short:         "Inspect and repair index synchronization on an indexsync server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "table" && opts.output != "json" {
				return fmt.Errorf("--output must be table or json, got %q", opts.output)
			}
			return nil
		},
	}

	server := os.Getenv(ServerEnvVar)
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "indexsync server base URL (env "+ServerEnvVar+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(
		newMetadataCmd(opts),
		newCheckpointCmd(opts),
		newHealthCmd(opts),
	)
	return root
}
