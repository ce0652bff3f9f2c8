// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/indexsync/internal/validation"
)

// CreateEntity handles POST /api/v1/entities.
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	approach, err := h.approach(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	req, ok := h.decodeEntity(rw, w, r)
	if !ok {
		return
	}

	id := req.ID
	if id == "" {
		id = h.newID()
	}
	res, err := h.deps.Sync.Create(r.Context(), approach, req.ToEntity(id))
	if err != nil {
		writeSyncError(rw, err)
		return
	}
	rw.Created(mutationResponse(approach, res))
}

// UpdateEntity handles PUT /api/v1/entities/{id}.
func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := entityID(rw, r)
	if !ok {
		return
	}
	approach, err := h.approach(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	req, ok := h.decodeEntity(rw, w, r)
	if !ok {
		return
	}
	if req.ID != "" && req.ID != id {
		rw.BadRequest("Body id does not match path id")
		return
	}

	res, err := h.deps.Sync.Update(r.Context(), approach, req.ToEntity(id))
	if err != nil {
		writeSyncError(rw, err)
		return
	}
	rw.Success(mutationResponse(approach, res))
}

// DeleteEntity handles DELETE /api/v1/entities/{id}. Deleting a missing
// entity succeeds with deleted=false.
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := entityID(rw, r)
	if !ok {
		return
	}
	approach, err := h.approach(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	res, err := h.deps.Sync.Delete(r.Context(), approach, id)
	if err != nil {
		writeSyncError(rw, err)
		return
	}
	out := mutationResponse(approach, res)
	deleted := res.Existed
	out.Deleted = &deleted
	rw.Success(out)
}

// GetEntity handles GET /api/v1/entities/{id}.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := entityID(rw, r)
	if !ok {
		return
	}
	e, err := h.deps.Sync.Get(r.Context(), id)
	if err != nil {
		writeSyncError(rw, err)
		return
	}
	rw.Success(e)
}

func entityID(rw *ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validation.ValidEntityID(id) {
		rw.BadRequest("Invalid entity id")
		return "", false
	}
	return id, true
}
