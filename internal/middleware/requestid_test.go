// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/indexsync/internal/logging"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generates when missing", "", false},
		{"keeps upstream id", "req-123", true},
		{"replaces oversized id", strings.Repeat("x", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRequestID, gotCorrelationID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRequestID = logging.RequestIDFromContext(r.Context())
				gotCorrelationID = logging.CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			header := rec.Header().Get(RequestIDHeader)
			if header == "" {
				t.Fatal("response has no request id")
			}
			if header != gotRequestID {
				t.Errorf("header %q != context %q", header, gotRequestID)
			}
			if gotCorrelationID != gotRequestID {
				t.Errorf("correlation id %q != request id %q", gotCorrelationID, gotRequestID)
			}
			if tt.keep && header != tt.incoming {
				t.Errorf("request id = %q, want %q", header, tt.incoming)
			}
			if !tt.keep && header == tt.incoming {
				t.Errorf("request id %q should have been replaced", header)
			}
		})
	}
}
