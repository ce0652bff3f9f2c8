// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

/*
Package primary is the authoritative document store for synchronized entities.

The store is backed by BadgerDB. Every committed mutation bumps the entity's
version and appends a ChangeEvent to an ordered change log in the same
transaction, so log order is commit order. The change log is what the
change-capture tailer consumes.

Key layout:

	entity:{id}          JSON-encoded models.Entity (tombstoned on delete)
	changelog:{seq}      JSON-encoded models.ChangeEvent, seq is 8 bytes big-endian
	seq:changelog        Badger sequence lease for change log numbering

Deletes keep a tombstone row so the version keeps increasing if the same id is
created again. Version-fenced index writes depend on that.

Resume tokens are the decimal change log sequence. The empty token means
"before the first event".
*/
package primary
