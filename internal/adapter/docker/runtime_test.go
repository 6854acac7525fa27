package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"n8nstack/internal/ownership"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// engineStub implements the parts of client.APIClient that Runtime uses.
// Unimplemented methods panic through the nil embedded interface.
type engineStub struct {
	client.APIClient

	missingImage bool
	pulled       []string
	created      []*container.HostConfig
	createdCfg   []*container.Config
	removed      []string
	exitCode     int64
	output       string

	health *container.Health
	absent bool

	platform   string
	versionErr error
}

func (e *engineStub) ServerVersion(context.Context) (types.Version, error) {
	if e.versionErr != nil {
		return types.Version{}, e.versionErr
	}
	v := types.Version{}
	v.Platform.Name = e.platform
	return v, nil
}

func (e *engineStub) ContainerCreate(_ context.Context, cfg *container.Config, hc *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	if e.missingImage {
		return container.CreateResponse{}, fmt.Errorf("no such image %s: %w", cfg.Image, errdefs.ErrNotFound)
	}
	e.created = append(e.created, hc)
	e.createdCfg = append(e.createdCfg, cfg)
	return container.CreateResponse{ID: fmt.Sprintf("c%d", len(e.created))}, nil
}

func (e *engineStub) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	e.pulled = append(e.pulled, ref)
	e.missingImage = false
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (e *engineStub) ContainerStart(context.Context, string, container.StartOptions) error {
	return nil
}

func (e *engineStub) ContainerWait(context.Context, string, container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	ch := make(chan container.WaitResponse, 1)
	ch <- container.WaitResponse{StatusCode: e.exitCode}
	return ch, make(chan error)
}

func (e *engineStub) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(e.output))
	return io.NopCloser(&buf), nil
}

func (e *engineStub) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	e.removed = append(e.removed, id)
	return nil
}

func (e *engineStub) ContainerInspect(context.Context, string) (container.InspectResponse, error) {
	if e.absent {
		return container.InspectResponse{}, errdefs.ErrNotFound
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			State: &container.State{Running: true, Health: e.health},
		},
	}, nil
}

func TestRunOnceCollectsOutputAndRemoves(t *testing.T) {
	eng := &engineStub{output: "1000:1000\n", platform: "Podman Engine"}
	rt := NewRuntimeFromClient(eng)

	res, err := rt.RunOnce(t.Context(), ownership.Job{
		Image:      "busybox",
		Cmd:        []string{"stat", "-c", "%u:%g", "/target"},
		Binds:      []ownership.Bind{{Source: "/srv/n8n", Target: "/target", ChownToContainer: true}},
		Privileged: true,
		User:       "0:0",
	})
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.ExitCode != 0 || res.Output != "1000:1000\n" {
		t.Fatalf("RunOnce() = %+v", res)
	}
	if len(eng.created) != 1 {
		t.Fatalf("created %d containers, want 1", len(eng.created))
	}
	hc := eng.created[0]
	if !hc.Privileged {
		t.Fatal("helper container is not privileged")
	}
	if len(hc.Binds) != 1 || hc.Binds[0] != "/srv/n8n:/target:U" {
		t.Fatalf("Binds = %v, want [/srv/n8n:/target:U]", hc.Binds)
	}
	if eng.createdCfg[0].User != "0:0" {
		t.Fatalf("User = %q, want 0:0", eng.createdCfg[0].User)
	}
	if len(eng.removed) != 1 || eng.removed[0] != "c1" {
		t.Fatalf("removed = %v, want [c1]", eng.removed)
	}
}

func TestRunOncePullsMissingImage(t *testing.T) {
	eng := &engineStub{missingImage: true, exitCode: 1, output: "denied"}
	rt := NewRuntimeFromClient(eng)

	res, err := rt.RunOnce(t.Context(), ownership.Job{Image: "busybox:stable", Cmd: []string{"true"}})
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(eng.pulled) != 1 || eng.pulled[0] != "busybox:stable" {
		t.Fatalf("pulled = %v", eng.pulled)
	}
	if res.ExitCode != 1 || res.Output != "denied" {
		t.Fatalf("RunOnce() = %+v, want exit 1 with output", res)
	}
}

func TestBindSpecWithoutChown(t *testing.T) {
	if got := bindSpec(ownership.Bind{Source: "/a", Target: "/b"}, true); got != "/a:/b" {
		t.Fatalf("bindSpec() = %q", got)
	}
}

func TestRunOnceOmitsPodmanBindOptionOnDocker(t *testing.T) {
	for name, eng := range map[string]*engineStub{
		"docker":        {platform: "Docker Engine - Community"},
		"version error": {versionErr: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			rt := NewRuntimeFromClient(eng)
			job := ownership.Job{
				Image: "busybox",
				Cmd:   []string{"chown", "-R", "1000:1000", "/target"},
				Binds: []ownership.Bind{{Source: "/srv/n8n", Target: "/target", ChownToContainer: true}},
			}
			if _, err := rt.RunOnce(t.Context(), job); err != nil {
				t.Fatalf("RunOnce() error = %v", err)
			}
			if got := eng.created[0].Binds; len(got) != 1 || got[0] != "/srv/n8n:/target" {
				t.Fatalf("Binds = %v, want [/srv/n8n:/target]", got)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	eng := &engineStub{health: &container.Health{Status: container.Healthy}}
	h, err := NewRuntimeFromClient(eng).Health(t.Context(), "n8n-postgres")
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if !h.Exists || !h.Running || h.Status != "healthy" {
		t.Fatalf("Health() = %+v", h)
	}

	eng.absent = true
	h, err = NewRuntimeFromClient(eng).Health(t.Context(), "gone")
	if err != nil {
		t.Fatalf("Health(absent) error = %v", err)
	}
	if h.Exists {
		t.Fatal("Health(absent).Exists = true")
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := error(&ExitError{Cmd: []string{"pg_isready"}, ExitCode: 2, Stderr: "no response\n"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode != 2 {
		t.Fatalf("errors.As() failed for %v", err)
	}
	if got := err.Error(); got != "exec [pg_isready]: exit code 2: no response" {
		t.Fatalf("Error() = %q", got)
	}
}
