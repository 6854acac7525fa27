// Package docker talks to the container engine through the Docker Engine
// API. Podman serves the same API on its socket, so a rootless deployment
// is reached by pointing DOCKER_HOST (or --engine-host) at it.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"n8nstack/internal/retry"

	"github.com/docker/docker/client"
)

// Runtime wraps an engine API client.
type Runtime struct {
	cli client.APIClient
	log *slog.Logger

	engineOnce sync.Once
	podman     bool
}

// NewRuntime creates a client from the environment. A non-empty host
// overrides DOCKER_HOST, e.g. unix:///run/user/1000/podman/podman.sock.
func NewRuntime(host string) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewRuntimeFromClient(cli), nil
}

// NewRuntimeFromClient wraps an existing client.
func NewRuntimeFromClient(cli client.APIClient) *Runtime {
	return &Runtime{cli: cli, log: slog.With("component", "docker")}
}

// WaitReady polls the engine until it answers a ping. Errors other than a
// refused connection stop the wait.
func (r *Runtime) WaitReady(ctx context.Context) error {
	waiting := false
	err := retry.Until(ctx, retry.Policy{Interval: time.Second}, func(ctx context.Context, _ int) (bool, error) {
		_, err := r.cli.Ping(ctx)
		if err == nil {
			if waiting {
				r.log.Debug("engine reachable")
			}
			return true, nil
		}
		if !client.IsErrConnectionFailed(err) {
			return false, retry.Permanent(fmt.Errorf("connect to container engine: %w", err))
		}
		if !waiting {
			waiting = true
			r.log.Debug("waiting for container engine")
		}
		return false, err
	})
	return err
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}
