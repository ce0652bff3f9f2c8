// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package api is the HTTP surface of indexsync, routed with chi.

# Endpoints

	POST   /api/v1/entities?approach=queue        create (body: EntityRequest)
	PUT    /api/v1/entities/{id}?approach=cdc     update
	DELETE /api/v1/entities/{id}?approach=direct  delete
	GET    /api/v1/entities/{id}                  read from the primary store
	GET    /api/v1/sync/metadata/{id}             one lineage
	GET    /api/v1/sync/metadata?status=failure   list lineages
	POST   /api/v1/sync/metadata/{id}/replay      replay a terminal failure
	GET    /api/v1/sync/checkpoint                tailer position
	GET    /api/v1/health                         component health
	GET    /metrics                               Prometheus

The approach query parameter picks the synchronization strategy per request;
without it the configured default applies. A mutation succeeds once the
primary store write commits: index failures are recorded in the lineage's
sync metadata, never returned to the caller.

Responses use the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", ...}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}}
*/
package api
