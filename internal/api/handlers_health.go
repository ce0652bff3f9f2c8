// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/indexsync/internal/models"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// Health handles GET /api/v1/health. It answers 503 when any component is
// down so load balancers can act on the status code alone.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]bool, len(h.deps.Checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range h.deps.Checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			ok := check(ctx)
			mu.Lock()
			components[name] = ok
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	resp := &models.HealthResponse{
		Status:     "healthy",
		Components: components,
		Uptime:     time.Since(h.startTime).Seconds(),
	}
	status := http.StatusOK
	for _, ok := range components {
		if !ok {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}

	rw := NewResponseWriter(w, r)
	if status == http.StatusOK {
		rw.Success(resp)
		return
	}
	rw.ErrorWithDetails(status, ErrCodeServiceUnavailable, "One or more components are unhealthy", resp)
}
