// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/indexsync/internal/models"
)

func newMetadataCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "metadata",
		Aliases: []string{"md"},
		Short:   "Inspect sync metadata lineages",
	}
	cmd.AddCommand(
		newMetadataGetCmd(opts),
		newMetadataListCmd(opts),
		newMetadataReplayCmd(opts),
	)
	return cmd
}

func newMetadataGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <metadata-id>",
		Short: "Show one lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var md models.SyncMetadata
			if err := opts.client().get(cmd.Context(), "/sync/metadata/"+url.PathEscape(args[0]), nil, &md); err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), &md)
			}
			return printMetadataDetail(cmd.OutOrStdout(), &md)
		},
	}
}

type metadataListFlags struct {
	status   string
	entityID string
	approach string
	terminal bool
	limit    int
}

func newMetadataListCmd(opts *globalOptions) *cobra.Command {
	flags := &metadataListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lineages, newest first",
		Example: `  indexsyncctl metadata list --status failure --terminal
  indexsyncctl metadata list --entity doc-42 --approach queue_versioned`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if flags.status != "" {
				q.Set("status", flags.status)
			}
			if flags.entityID != "" {
				q.Set("entity_id", flags.entityID)
			}
			if flags.approach != "" {
				q.Set("approach", flags.approach)
			}
			if cmd.Flags().Changed("terminal") {
				q.Set("terminal", strconv.FormatBool(flags.terminal))
			}
			if flags.limit > 0 {
				q.Set("limit", strconv.Itoa(flags.limit))
			}

			var list models.MetadataListResponse
			if err := opts.client().get(cmd.Context(), "/sync/metadata", q, &list); err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), &list)
			}
			return printMetadataTable(cmd.OutOrStdout(), list.Items)
		},
	}
	cmd.Flags().StringVar(&flags.status, "status", "", "secondary status: pending, success, failure or not_found")
	cmd.Flags().StringVar(&flags.entityID, "entity", "", "only lineages of this entity id")
	cmd.Flags().StringVar(&flags.approach, "approach", "", "only lineages of this approach")
	cmd.Flags().BoolVar(&flags.terminal, "terminal", false, "only terminal (true) or non-terminal (false) lineages")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum rows (server default 100, max 1000)")
	return cmd
}

func newMetadataReplayCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <metadata-id>",
		Short: "Re-dispatch a terminally failed lineage once, from the current primary document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp models.ReplayResponse
			err := opts.client().post(cmd.Context(), "/sync/metadata/"+url.PathEscape(args[0])+"/replay", &resp)
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
				return fmt.Errorf("lineage %s cannot be replayed: %s", args[0], apiErr.Message)
			}
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), &resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Replayed %s: %s\n", resp.MetadataID, resp.Outcome)
			if resp.Reason != "" {
				fmt.Fprintf(out, "Reason: %s\n", resp.Reason)
			}
			return nil
		},
	}
}

func printMetadataTable(w io.Writer, items []*models.SyncMetadata) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tENTITY\tAPPROACH\tOP\tSEQ\tSTATUS\tATTEMPTS\tTERMINAL\tUPDATED")
	for _, md := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%t\t%s\n",
			md.ID, md.EntityID, md.Approach, md.Operation, md.OperationSeq,
			md.SecondaryStatus, md.AttemptCount, md.Terminal, formatTime(&md.UpdatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d lineage(s)\n", len(items))
	return err
}

func printMetadataDetail(w io.Writer, md *models.SyncMetadata) error {
	tw := newTable(w)
	rows := [][2]string{
		{"ID", md.ID},
		{"Entity", md.EntityID},
		{"Approach", string(md.Approach)},
		{"Operation", string(md.Operation)},
		{"Operation seq", strconv.FormatInt(md.OperationSeq, 10)},
		{"Entity version", strconv.FormatInt(md.EntityVersion, 10)},
		{"Primary", md.PrimaryStatus + " at " + formatTime(&md.PrimaryWriteAt)},
		{"Secondary", string(md.SecondaryStatus)},
		{"Secondary write", formatTime(md.SecondaryWriteAt)},
		{"Attempts", strconv.Itoa(md.AttemptCount)},
		{"First failure", formatTime(md.FirstFailureAt)},
		{"Last attempt", formatTime(md.LastAttemptAt)},
		{"Next retry", formatTime(md.NextRetryAt)},
		{"Terminal", strconv.FormatBool(md.Terminal)},
		{"Reason", orDash(md.FailureReason)},
		{"Updated", formatTime(&md.UpdatedAt)},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}
