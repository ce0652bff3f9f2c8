// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

//go:build integration

package index

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/testinfra"
)

// Usage:
//   go test -tags integration -run TestElasticGateway_Integration ./internal/index/...

func TestElasticGateway_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	es, err := testinfra.NewElasticsearchContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to start Elasticsearch container: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, es.Container)

	cfg := DefaultConfig()
	cfg.URL = es.URL
	cfg.ReadTimeout = 30 * time.Second
	g, err := NewElasticGateway(cfg)
	if err != nil {
		t.Fatalf("NewElasticGateway failed: %v", err)
	}
	const idx = "entities"

	getSource := func(t *testing.T, id string) (map[string]interface{}, bool) {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, es.URL+"/"+idx+"/_doc/"+id, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", id, err)
		}
		defer func() { _ = resp.Body.Close() }()
		var body struct {
			Found  bool                   `json:"found"`
			Source map[string]interface{} `json:"_source"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", id, err)
		}
		return body.Source, body.Found
	}

	t.Run("cluster is healthy", func(t *testing.T) {
		if !g.Healthy(ctx) {
			t.Error("Expected Healthy to report true")
		}
	})

	t.Run("external versions reject equal or older writes", func(t *testing.T) {
		e := &models.Entity{ID: "v1", Name: "two", Version: 2}
		if _, err := g.CreateEntityWithVersion(ctx, idx, e.ID, e, 2); err != nil {
			t.Fatalf("CreateEntityWithVersion(2): %v", err)
		}

		for _, version := range []int64{2, 1} {
			stale := &models.Entity{ID: "v1", Name: "stale", Version: version}
			_, err := g.UpdateEntityWithVersion(ctx, idx, stale.ID, stale, version)
			if KindOf(err) != KindConflict {
				t.Errorf("version %d: expected conflict, got %v", version, err)
			}
			if status := StatusOf(err); status != http.StatusConflict {
				t.Errorf("version %d: expected status 409, got %d", version, status)
			}
		}

		newer := &models.Entity{ID: "v1", Name: "three", Version: 3}
		if _, err := g.UpdateEntityWithVersion(ctx, idx, newer.ID, newer, 3); err != nil {
			t.Fatalf("UpdateEntityWithVersion(3): %v", err)
		}
		src, found := getSource(t, "v1")
		if !found || src["name"] != "three" {
			t.Errorf("Expected stored name three, got %v (found=%v)", src["name"], found)
		}
	})

	t.Run("versioned delete fences later writes", func(t *testing.T) {
		e := &models.Entity{ID: "d1", Name: "one", Version: 1}
		if _, err := g.CreateEntityWithVersion(ctx, idx, e.ID, e, 1); err != nil {
			t.Fatalf("CreateEntityWithVersion: %v", err)
		}
		if _, err := g.DeleteEntityWithVersion(ctx, idx, "d1", 2); err != nil {
			t.Fatalf("DeleteEntityWithVersion: %v", err)
		}
		if _, found := getSource(t, "d1"); found {
			t.Error("Expected document to be deleted")
		}

		late := &models.Entity{ID: "d1", Name: "late", Version: 2}
		if _, err := g.CreateEntityWithVersion(ctx, idx, late.ID, late, 2); KindOf(err) != KindConflict {
			t.Errorf("Expected a write at the delete version to conflict, got %v", err)
		}
	})

	t.Run("deleting a missing document succeeds", func(t *testing.T) {
		if _, err := g.DeleteEntity(ctx, idx, "missing-1"); err != nil {
			t.Errorf("DeleteEntity: %v", err)
		}
		if _, err := g.DeleteEntityWithVersion(ctx, idx, "missing-2", 5); err != nil {
			t.Errorf("DeleteEntityWithVersion: %v", err)
		}
	})

	t.Run("partial update upserts", func(t *testing.T) {
		e := &models.Entity{ID: "u1", Name: "created by update", Version: 1}
		if _, err := g.UpdateEntity(ctx, idx, e.ID, e); err != nil {
			t.Fatalf("UpdateEntity on missing document: %v", err)
		}
		src, found := getSource(t, "u1")
		if !found || src["name"] != "created by update" {
			t.Fatalf("Expected upserted document, got %v (found=%v)", src, found)
		}

		if _, err := g.UpdateEntity(ctx, idx, e.ID, &models.Entity{ID: "u1", Name: "renamed", Version: 2}); err != nil {
			t.Fatalf("UpdateEntity: %v", err)
		}
		src, _ = getSource(t, "u1")
		if src["name"] != "renamed" {
			t.Errorf("Expected renamed, got %v", src["name"])
		}
	})

	t.Run("invalid index name is a client error", func(t *testing.T) {
		e := &models.Entity{ID: "c1", Name: "x"}
		_, err := g.CreateEntity(ctx, "Not_Lowercase", e)
		if KindOf(err) != KindClient {
			t.Errorf("Expected client error, got %v", err)
		}
	})
}
