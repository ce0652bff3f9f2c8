// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultElasticsearchImage is a single-node capable Elasticsearch 8 image.
	DefaultElasticsearchImage = "docker.elastic.co/elasticsearch/elasticsearch:8.15.3"

	// DefaultElasticsearchPort is the HTTP API port.
	DefaultElasticsearchPort = "9200"
)

// ElasticsearchContainer is a running single-node cluster.
type ElasticsearchContainer struct {
	testcontainers.Container
	URL string
}

// NewElasticsearchContainer starts a cluster with security disabled and waits
// for its health endpoint.
func NewElasticsearchContainer(ctx context.Context, opts ...Option) (*ElasticsearchContainer, error) {
	cfg := newContainerConfig(DefaultElasticsearchImage, 2*time.Minute, opts)

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultElasticsearchPort + "/tcp"},
		Env: map[string]string{
			"discovery.type":         "single-node",
			"xpack.security.enabled": "false",
			"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/_cluster/health").
			WithPort(DefaultElasticsearchPort + "/tcp").
			WithStatusCodeMatcher(func(status int) bool { return status == http.StatusOK }).
			WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, DefaultElasticsearchPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &ElasticsearchContainer{
		Container: container,
		URL:       fmt.Sprintf("http://%s:%s", host, mapped.Port()),
	}, nil
}
