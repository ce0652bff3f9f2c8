// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/indexsync/internal/config"
	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/models"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/tailer"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

// testConfig runs everything in process: in-memory Badger for the primary
// store and the outbox, in-memory DuckDB, GoChannel queue.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Primary = primary.Config{InMemory: true}
	cfg.Metadata = database.Config{Driver: database.DriverDuckDB, MaxOpenConns: 1}
	cfg.Queue = queue.MemoryConfig()
	cfg.WAL.InMemory = true
	cfg.WAL.RetryInterval = 50 * time.Millisecond
	cfg.Tailer.PollInterval = 20 * time.Millisecond
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.API.RateLimitRequests = 0
	cfg.Supervisor.FailureBackoff = 50 * time.Millisecond
	cfg.Supervisor.ShutdownTimeout = 2 * time.Second
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) (*app, *index.MemoryIndex) {
	t.Helper()
	idx := index.NewMemoryIndex()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, cfg, idx)
	if err != nil {
		cancel()
		t.Fatalf("newApp: %v", err)
	}
	tree, err := a.buildTree()
	if err != nil {
		cancel()
		a.close(context.Background())
		t.Fatalf("buildTree: %v", err)
	}

	done := make(chan struct{})
	go func() {
		runTree(ctx, tree)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("supervisor tree did not stop")
		}
		a.close(context.Background())
	})

	// Queued tasks published before the router subscribes are dropped by
	// GoChannel.
	waitFor(t, "consumer router running", func() bool {
		r := a.router.Load()
		return r != nil && r.IsRunning()
	})
	return a, idx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type mutationEnvelope struct {
	Success bool                    `json:"success"`
	Data    models.MutationResponse `json:"data"`
}

func createEntity(t *testing.T, a *app, approach, body string) models.MutationResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities?approach="+approach, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var env mutationEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env.Data
}

func TestApp_DirectApproach(t *testing.T) {
	a, idx := startApp(t, testConfig(t))

	resp := createEntity(t, a, "direct", `{"id":"doc-1","name":"first"}`)
	if resp.Outcome != "success" {
		t.Errorf("Outcome = %q, want success", resp.Outcome)
	}
	if _, _, ok := idx.Document("entities", "doc-1"); !ok {
		t.Error("document not indexed inline")
	}

	md, err := a.metadata.GetByID(context.Background(), resp.MetadataID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if md.SecondaryStatus != models.SecondarySuccess {
		t.Errorf("SecondaryStatus = %q", md.SecondaryStatus)
	}
}

func TestApp_QueueApproach(t *testing.T) {
	tests := []struct {
		name string
		wal  bool
	}{
		{"through outbox", true},
		{"direct publish", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.WAL.Enabled = tt.wal
			cfg.Tailer.Enabled = false
			a, idx := startApp(t, cfg)

			resp := createEntity(t, a, "queue_versioned", `{"id":"doc-q","name":"queued"}`)
			if resp.MetadataID == "" {
				t.Fatal("no metadata id returned")
			}

			waitFor(t, "queued document indexed", func() bool {
				_, _, ok := idx.Document("entities", "doc-q")
				return ok
			})
			waitFor(t, "lineage success", func() bool {
				md, err := a.metadata.GetByID(context.Background(), resp.MetadataID)
				return err == nil && md.SecondaryStatus == models.SecondarySuccess
			})
		})
	}
}

func TestApp_CDCApproach(t *testing.T) {
	a, idx := startApp(t, testConfig(t))

	// A cold-start tailer begins at the log head it sees when it starts.
	waitFor(t, "tailer started", func() bool {
		return a.tailer.State() != tailer.StateStopped
	})
	createEntity(t, a, "cdc", `{"id":"doc-c","name":"captured"}`)

	waitFor(t, "captured document indexed", func() bool {
		_, _, ok := idx.Document("entities", "doc-c")
		return ok
	})
	waitFor(t, "checkpoint persisted", func() bool {
		cp, err := a.checkpoints.Load(context.Background())
		return err == nil && cp.Token != ""
	})
}

func TestApp_Health(t *testing.T) {
	a, _ := startApp(t, testConfig(t))

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Data models.HealthResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, name := range []string{"primary", "metadata", "queue", "consumer"} {
		if ok, present := env.Data.Components[name]; !present || !ok {
			t.Errorf("component %s = %v (present %v)", name, ok, present)
		}
	}
	if _, present := env.Data.Components["index"]; present {
		t.Error("in-memory index has no health check and should not be listed")
	}
}

func TestApp_BuildTreeWithoutOptionalServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.WAL.Enabled = false
	cfg.Tailer.Enabled = false

	a, err := newApp(context.Background(), cfg, index.NewMemoryIndex())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close(context.Background())

	if a.retryLoop != nil || a.compactor != nil || a.wal != nil {
		t.Error("outbox components built with wal disabled")
	}
	if a.tailer != nil {
		t.Error("tailer built while disabled")
	}
	if a.outbox == nil || a.outbox.Durable() {
		t.Error("expected a non-durable outbox")
	}
	if _, err := a.buildTree(); err != nil {
		t.Errorf("buildTree: %v", err)
	}
}

func TestNewApp_FailureReleasesResources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata = database.Config{Driver: "sqlite"}

	a, err := newApp(context.Background(), cfg, index.NewMemoryIndex())
	if err == nil {
		a.close(context.Background())
		t.Fatal("expected error for unsupported metadata driver")
	}
	if !strings.Contains(err.Error(), "init stores") {
		t.Errorf("error = %v, want it to name the failing step", err)
	}
}
