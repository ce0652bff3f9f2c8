// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package index

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags the outcome of a failed index call. The reconciliation engine
// switches on the kind rather than on error types.
type Kind int

const (
	// KindNone is returned by KindOf for a nil error.
	KindNone Kind = iota
	// KindConflict means a fenced write found an equal or newer stored version.
	KindConflict
	// KindClient is a 4xx rejection of the request itself.
	KindClient
	// KindTransient covers connectivity, timeouts, rate limiting and 5xx.
	KindTransient
	// KindNotFound is a 404 on a document that was expected to exist.
	KindNotFound
)

// String returns the lowercase kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "success"
	case KindConflict:
		return "conflict"
	case KindClient:
		return "client"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on resubmission.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// Error is the single failure type returned by Gateway implementations.
type Error struct {
	Kind       Kind
	StatusCode int
	Reason     string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("index %s (status %d): %s", e.Kind, e.StatusCode, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("index %s (status %d)", e.Kind, e.StatusCode)
	case e.Cause != nil && e.Reason != "":
		return fmt.Sprintf("index %s: %s: %v", e.Kind, e.Reason, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("index %s: %v", e.Kind, e.Cause)
	default:
		return fmt.Sprintf("index %s: %s", e.Kind, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Classify maps an HTTP status into a kind: 409 conflict, 404 not found,
// 429 transient, other 4xx client, anything else transient.
func Classify(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return KindNone
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 400 && status < 500:
		return KindClient
	default:
		return KindTransient
	}
}

// KindOf returns the kind carried by err. Errors that did not come from a
// gateway are transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindTransient
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.StatusCode
	}
	return 0
}

// NewStatusError builds an Error from an HTTP status and reason.
func NewStatusError(status int, reason string) *Error {
	return &Error{Kind: Classify(status), StatusCode: status, Reason: reason}
}

// Conflict builds a version conflict error.
func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, StatusCode: http.StatusConflict, Reason: reason}
}

// Transient wraps a transport level failure.
func Transient(reason string, cause error) *Error {
	return &Error{Kind: KindTransient, Reason: reason, Cause: cause}
}
