// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/indexsync/internal/checkpoint"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/reconcile"
	"github.com/tomtom215/indexsync/internal/synchronizer"
	"github.com/tomtom215/indexsync/internal/tailer"
	"github.com/tomtom215/indexsync/internal/validation"
)

// Synchronizer is the part of *synchronizer.Synchronizer the API calls.
type Synchronizer interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
	Create(ctx context.Context, approach models.Approach, e *models.Entity) (*synchronizer.Result, error)
	Update(ctx context.Context, approach models.Approach, e *models.Entity) (*synchronizer.Result, error)
	Delete(ctx context.Context, approach models.Approach, id string) (*synchronizer.Result, error)
	Replay(ctx context.Context, metadataID string) (reconcile.Decision, error)
}

// TailerStatus is the live state of an in-process tailer.
type TailerStatus interface {
	State() tailer.State
	Cursor() string
	InFlight() int
}

// HealthCheck reports whether one component is usable.
type HealthCheck func(ctx context.Context) bool

// Deps are the handler's collaborators. Checkpoints and Tailer are nil when
// change capture is disabled.
type Deps struct {
	Sync            Synchronizer
	Metadata        metadata.Store
	Checkpoints     checkpoint.Store
	Tailer          TailerStatus
	Checks          map[string]HealthCheck
	DefaultApproach models.Approach
	MaxBodyBytes    int64
}

// Handler serves the API.
type Handler struct {
	deps      Deps
	startTime time.Time
	newID     func() string
}

// NewHandler creates a handler. An invalid default approach falls back to
// direct.
func NewHandler(deps Deps, newID func() string) *Handler {
	if !deps.DefaultApproach.Valid() {
		deps.DefaultApproach = models.ApproachDirect
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}
	return &Handler{deps: deps, startTime: time.Now(), newID: newID}
}

// approach reads the approach query parameter.
func (h *Handler) approach(r *http.Request) (models.Approach, error) {
	raw := r.URL.Query().Get("approach")
	if raw == "" {
		return h.deps.DefaultApproach, nil
	}
	return models.ParseApproach(raw)
}

// decodeEntity reads and validates an EntityRequest body. It writes the
// error response itself and reports whether the handler may continue.
func (h *Handler) decodeEntity(rw *ResponseWriter, w http.ResponseWriter, r *http.Request) (*models.EntityRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		rw.BadRequest("Cannot read request body")
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var req models.EntityRequest
	if err := dec.Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return nil, false
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, apiErr.Message, apiErr.Details)
		return nil, false
	}
	return &req, true
}

// writeSyncError maps synchronizer and store errors to responses.
func writeSyncError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, synchronizer.ErrQueueUnavailable):
		rw.ServiceUnavailable("Queue transport is not configured for this approach")
	case errors.Is(err, primary.ErrNotFound):
		rw.NotFound("Entity not found")
	case errors.Is(err, primary.ErrAlreadyExists):
		rw.Conflict("Entity already exists")
	case errors.Is(err, primary.ErrInvalidEntity):
		rw.BadRequest(err.Error())
	case errors.Is(err, metadata.ErrNotFound):
		rw.NotFound("Sync metadata not found")
	case errors.Is(err, synchronizer.ErrNotReplayable):
		rw.Conflict("Sync lineage is not a terminal failure")
	case errors.Is(err, synchronizer.ErrSuperseded):
		rw.Conflict("Sync lineage was superseded by a newer write")
	case errors.Is(err, synchronizer.ErrPrimaryWrite):
		rw.InternalError(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rw.ServiceUnavailable("Request canceled")
	default:
		rw.InternalError(err)
	}
}

func mutationResponse(approach models.Approach, res *synchronizer.Result) *models.MutationResponse {
	out := &models.MutationResponse{
		Entity:   res.Entity,
		Approach: approach,
		Metadata: res.Metadata,
	}
	if res.Metadata != nil {
		out.MetadataID = res.Metadata.ID
	}
	if res.Decision != nil {
		out.Outcome = string(res.Decision.Outcome)
	}
	return out
}
