package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// ExitError is a command that ran inside a container and exited non-zero.
type ExitError struct {
	Cmd      []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exec %v: exit code %d: %s", e.Cmd, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Exec runs cmd inside the named running container and returns its stdout.
func (r *Runtime) Exec(ctx context.Context, name string, cmd ...string) ([]byte, error) {
	resp, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec %v in %q: %w", cmd, name, err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec %v: %w", cmd, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("read exec output %v: %w", cmd, err)
	}

	info, err := r.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec %v: %w", cmd, err)
	}
	if info.ExitCode != 0 {
		return stdout.Bytes(), &ExitError{Cmd: cmd, ExitCode: info.ExitCode, Stderr: stderr.String()}
	}
	return stdout.Bytes(), nil
}

// Health is a container's state as the engine reports it.
type Health struct {
	Exists  bool
	Running bool
	// Status is the healthcheck status ("healthy", "starting", ...), or
	// empty when the container defines no healthcheck.
	Status string
}

func (r *Runtime) Health(ctx context.Context, name string) (Health, error) {
	info, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Health{}, nil
		}
		return Health{}, fmt.Errorf("inspect container %q: %w", name, err)
	}
	h := Health{Exists: true}
	if info.ContainerJSONBase != nil && info.State != nil {
		h.Running = info.State.Running
		if info.State.Health != nil {
			h.Status = info.State.Health.Status
		}
	}
	return h, nil
}
