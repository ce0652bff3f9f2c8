// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package main

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/indexsync/internal/models"
)

func newCheckpointCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Show the change-capture checkpoint and tailer state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cp models.CheckpointResponse
			if err := opts.client().get(cmd.Context(), "/sync/checkpoint", nil, &cp); err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), &cp)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "Token:\t%s\n", orDash(cp.Token))
			fmt.Fprintf(tw, "Updated:\t%s\n", formatTime(cp.UpdatedAt))
			fmt.Fprintf(tw, "State:\t%s\n", orDash(cp.State))
			fmt.Fprintf(tw, "Cursor:\t%s\n", orDash(cp.Cursor))
			fmt.Fprintf(tw, "In flight:\t%s\n", strconv.Itoa(cp.InFlight))
			return tw.Flush()
		},
	}
}

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show component health; exits non-zero when degraded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var health models.HealthResponse
			err := opts.client().get(cmd.Context(), "/health", nil, &health)

			// A degraded report arrives as a 503 with the report as details.
			var apiErr *apiError
			degraded := errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && len(apiErr.Details) > 0
			if degraded {
				if uerr := json.Unmarshal(apiErr.Details, &health); uerr != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			if opts.output == "json" {
				if werr := writeJSON(cmd.OutOrStdout(), &health); werr != nil {
					return werr
				}
			} else {
				names := make([]string, 0, len(health.Components))
				for name := range health.Components {
					names = append(names, name)
				}
				sort.Strings(names)

				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintf(tw, "Status:\t%s\n", health.Status)
				fmt.Fprintf(tw, "Uptime:\t%s\n", (time.Duration(health.Uptime) * time.Second).String())
				for _, name := range names {
					state := "up"
					if !health.Components[name] {
						state = "DOWN"
					}
					fmt.Fprintf(tw, "  %s\t%s\n", name, state)
				}
				if ferr := tw.Flush(); ferr != nil {
					return ferr
				}
			}

			if degraded {
				return fmt.Errorf("server is %s", health.Status)
			}
			return nil
		},
	}
}
