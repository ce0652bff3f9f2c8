// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package reconcile

import "github.com/tomtom215/indexsync/internal/models"

// Capability parametrizes the engine for one synchronization strategy.
type Capability struct {
	// Fenced sends the task version with every index write so the index
	// rejects writes it already has a newer version of.
	Fenced bool

	// Inline means the attempt runs on the caller's request path.
	Inline bool

	// Requeue allows a transient failure to be retried after backoff. Without
	// it a transient failure is terminal.
	Requeue bool
}

// CapabilityFor returns the capability of an approach. The cdc approach is
// unfenced here; the tailer enables fencing from its own configuration.
func CapabilityFor(a models.Approach) Capability {
	switch a {
	case models.ApproachDirect:
		return Capability{Inline: true}
	case models.ApproachDirectVersioned:
		return Capability{Inline: true, Fenced: true}
	case models.ApproachQueue:
		return Capability{Requeue: true}
	case models.ApproachQueueVersioned:
		return Capability{Fenced: true, Requeue: true}
	case models.ApproachHybrid:
		return Capability{Inline: true, Requeue: true}
	case models.ApproachCDC:
		return Capability{Requeue: true}
	default:
		return Capability{}
	}
}
