// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package services adapts indexsync components to suture.Service.
//
// Each wrapper turns a component's own lifecycle into Serve(ctx) error:
// return ctx.Err() once canceled, any other error to be restarted. The
// wrappers depend on small interfaces rather than the concrete types so the
// package does not import the WAL, queue or HTTP packages.
package services
