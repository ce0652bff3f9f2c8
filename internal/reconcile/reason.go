// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tomtom215/indexsync/internal/index"
)

// Stable reason tags recorded in SyncMetadata.FailureReason.
const (
	ReasonStale          = "Stale"
	ReasonRateLimited    = "RateLimited"
	ReasonConnectTimeout = "ConnectTimeout"
	ReasonReadTimeout    = "ReadTimeout"
	ReasonMissingDoc     = "MissingDocument"
	ReasonUnknownOp      = "UnknownOperation"
)

// ExtractReason reduces err to a short, low-cardinality tag. Known root
// causes map to fixed tags; otherwise the gateway's reason is used, then the
// root cause's message, then its type name.
func ExtractReason(err error) string {
	if err == nil {
		return ""
	}
	if index.StatusOf(err) == http.StatusTooManyRequests {
		return ReasonRateLimited
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout() {
		return ReasonConnectTimeout
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ReasonReadTimeout
	}

	var ie *index.Error
	if errors.As(err, &ie) && ie.Reason != "" {
		return ie.Reason
	}

	root := rootCause(err)
	if msg := root.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", root)
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
