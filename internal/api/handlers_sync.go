// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/indexsync/internal/checkpoint"
	"github.com/tomtom215/indexsync/internal/metadata"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/validation"
)

// maxMetadataLimit caps one listing page.
const maxMetadataLimit = 1000

type metadataListParams struct {
	Status   string `json:"status" validate:"omitempty,oneof=pending success failure not_found"`
	EntityID string `json:"entity_id" validate:"omitempty,entity_id"`
	Approach string `json:"approach" validate:"omitempty,approach"`
	Terminal string `json:"terminal" validate:"omitempty,oneof=true false"`
	Limit    int    `json:"limit" validate:"min=0,max=1000"`
}

func (p *metadataListParams) filter() metadata.Filter {
	f := metadata.Filter{
		EntityID: p.EntityID,
		Status:   models.SecondaryStatus(p.Status),
		Limit:    p.Limit,
	}
	if f.Limit == 0 {
		f.Limit = 100
	}
	if p.Approach != "" {
		f.Approaches = []models.Approach{models.Approach(p.Approach)}
	}
	if p.Terminal != "" {
		terminal := p.Terminal == "true"
		f.Terminal = &terminal
	}
	return f
}

// GetMetadata handles GET /api/v1/sync/metadata/{id}.
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	md, err := h.deps.Metadata.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			rw.NotFound("Sync metadata not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(md)
}

// ListMetadata handles GET /api/v1/sync/metadata.
func (h *Handler) ListMetadata(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	params := metadataListParams{
		Status:   q.Get("status"),
		EntityID: q.Get("entity_id"),
		Approach: q.Get("approach"),
		Terminal: q.Get("terminal"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		params.Limit = n
	}
	if verr := validation.ValidateStruct(&params); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, apiErr.Message, apiErr.Details)
		return
	}

	items, err := h.deps.Metadata.List(r.Context(), params.filter())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if items == nil {
		items = []*models.SyncMetadata{}
	}
	rw.Success(&models.MetadataListResponse{Items: items, Count: len(items)})
}

// ReplayMetadata handles POST /api/v1/sync/metadata/{id}/replay.
func (h *Handler) ReplayMetadata(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	d, err := h.deps.Sync.Replay(r.Context(), id)
	if err != nil {
		writeSyncError(rw, err)
		return
	}
	rw.Success(&models.ReplayResponse{
		MetadataID: id,
		Outcome:    string(d.Outcome),
		Reason:     d.Reason,
		Metadata:   d.Metadata,
	})
}

// GetCheckpoint handles GET /api/v1/sync/checkpoint.
func (h *Handler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Checkpoints == nil {
		rw.NotFound("Change capture is not enabled")
		return
	}

	resp := &models.CheckpointResponse{}
	cp, err := h.deps.Checkpoints.Load(r.Context())
	switch {
	case err == nil:
		resp.Token = cp.Token
		updated := cp.UpdatedAt
		resp.UpdatedAt = &updated
	case errors.Is(err, checkpoint.ErrNotFound):
	default:
		rw.DatabaseError(err)
		return
	}

	if h.deps.Tailer != nil {
		resp.State = h.deps.Tailer.State().String()
		resp.Cursor = h.deps.Tailer.Cursor()
		resp.InFlight = h.deps.Tailer.InFlight()
	}
	rw.Success(resp)
}
