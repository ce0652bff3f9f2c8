// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Command indexsyncctl inspects a running indexsync server: sync metadata,
// the tailer checkpoint and component health, and replays terminally failed
// lineages.
//
// It talks to the server's HTTP API rather than opening the stores, which
// the server holds exclusive locks on.
//
//	indexsyncctl metadata list --status failure --terminal
//	indexsyncctl metadata get 6f1c...
//	indexsyncctl metadata replay 6f1c...
//	indexsyncctl checkpoint
//	indexsyncctl health
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
