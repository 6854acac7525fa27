package ownership

import (
	"context"
	"errors"
	"io/fs"
)

// ErrToolUnavailable is returned by a CommandRunner when the program does
// not exist on this host.
var ErrToolUnavailable = errors.New("tool not available")

// CommandRunner executes a host program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Bind mounts a host path into a one-shot container. ChownToContainer asks
// the runtime to hand the source to the container's user first (podman's
// ":U" option). Runtimes without that option ignore it.
type Bind struct {
	Source           string
	Target           string
	ChownToContainer bool
}

// Job is a short-lived container run to completion and then removed.
type Job struct {
	Image      string
	Cmd        []string
	Binds      []Bind
	Privileged bool
	User       string
}

type JobResult struct {
	ExitCode int
	Output   string
}

// ContainerRunner runs a Job through the container engine.
type ContainerRunner interface {
	RunOnce(ctx context.Context, job Job) (JobResult, error)
}

// Filesystem is the host view of Path, as the invoking user sees it.
type Filesystem interface {
	Owner(path string) (uid, gid int, err error)
	ChownAll(ctx context.Context, path string, uid, gid int) error
	ChmodAll(ctx context.Context, path string, mode fs.FileMode) error
}

// OwnerViewer is implemented by strategies that change ownership inside a
// user namespace. The reconciler verifies their work through this view
// instead of the host stat, since the host sees shifted ids.
type OwnerViewer interface {
	ViewOwner(ctx context.Context, t Target) (uid, gid int, err error)
}
