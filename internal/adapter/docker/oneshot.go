package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"n8nstack/internal/ownership"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
)

var _ ownership.ContainerRunner = (*Runtime)(nil)

// RunOnce creates a container for job, waits for it to exit, collects its
// output and removes it. The image is pulled when missing.
func (r *Runtime) RunOnce(ctx context.Context, job ownership.Job) (ownership.JobResult, error) {
	cc := &container.Config{
		Image: job.Image,
		Cmd:   job.Cmd,
		User:  job.User,
	}
	hc := &container.HostConfig{Privileged: job.Privileged}
	podman := r.isPodman(ctx)
	for _, b := range job.Binds {
		hc.Binds = append(hc.Binds, bindSpec(b, podman))
	}

	created, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, "")
	if errdefs.IsNotFound(err) {
		if perr := r.ImagePull(ctx, job.Image); perr != nil {
			return ownership.JobResult{}, perr
		}
		created, err = r.cli.ContainerCreate(ctx, cc, hc, nil, nil, "")
	}
	if err != nil {
		return ownership.JobResult{}, fmt.Errorf("create helper container from %q: %w", job.Image, err)
	}
	id := created.ID
	defer func() {
		rmCtx := context.WithoutCancel(ctx)
		if err := r.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			r.log.Warn("remove helper container", "id", id, "err", err)
		}
	}()

	waitCh, errCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)
	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return ownership.JobResult{}, fmt.Errorf("start helper container: %w", err)
	}

	var exit int64
	select {
	case <-ctx.Done():
		return ownership.JobResult{}, ctx.Err()
	case err := <-errCh:
		return ownership.JobResult{}, fmt.Errorf("wait for helper container: %w", err)
	case resp := <-waitCh:
		if resp.Error != nil && resp.Error.Message != "" {
			return ownership.JobResult{}, fmt.Errorf("wait for helper container: %s", resp.Error.Message)
		}
		exit = resp.StatusCode
	}

	out, err := r.logs(ctx, id)
	if err != nil {
		r.log.Debug("read helper container logs", "id", id, "err", err)
	}
	return ownership.JobResult{ExitCode: int(exit), Output: out}, nil
}

// bindSpec renders a bind mount. The :U option is a podman extension that
// Docker rejects, so it is only added when the engine is podman.
func bindSpec(b ownership.Bind, podman bool) string {
	spec := b.Source + ":" + b.Target
	if b.ChownToContainer && podman {
		spec += ":U"
	}
	return spec
}

// isPodman reports whether the engine identifies itself as podman. The answer
// is cached for the life of the Runtime; a failed lookup counts as Docker.
func (r *Runtime) isPodman(ctx context.Context) bool {
	r.engineOnce.Do(func() {
		v, err := r.cli.ServerVersion(ctx)
		if err != nil {
			r.log.Debug("query engine version", "err", err)
			return
		}
		r.podman = strings.Contains(strings.ToLower(v.Platform.Name), "podman")
		for _, c := range v.Components {
			if strings.Contains(strings.ToLower(c.Name), "podman") {
				r.podman = true
			}
		}
	})
	return r.podman
}

func (r *Runtime) logs(ctx context.Context, id string) (string, error) {
	rc, err := r.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("container logs %q: %w", id, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return buf.String(), fmt.Errorf("demux container logs: %w", err)
	}
	return buf.String(), nil
}

func (r *Runtime) ImagePull(ctx context.Context, img string) error {
	r.log.Info("pulling image", "image", img)
	pull, err := r.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", img, err)
	}
	defer pull.Close()
	if _, err := io.Copy(io.Discard, pull); err != nil {
		return fmt.Errorf("pull image %q: %w", img, err)
	}
	return nil
}
