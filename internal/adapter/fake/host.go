package fake

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"n8nstack/internal/ownership"
)

var (
	_ ownership.CommandRunner   = (*CommandRunner)(nil)
	_ ownership.ContainerRunner = (*ContainerRunner)(nil)
	_ ownership.Filesystem      = (*Filesystem)(nil)
)

const (
	FaultFilesystemChown = "filesystem.chown"
	FaultFilesystemChmod = "filesystem.chmod"
	FaultFilesystemOwner = "filesystem.owner"
)

// CommandFunc handles one host command.
type CommandFunc func(args []string) ([]byte, error)

// CommandRunner dispatches host commands to handlers keyed by program name.
// Programs without a handler are reported as unavailable.
type CommandRunner struct {
	CallRecorder

	mu       sync.Mutex
	handlers map[string]CommandFunc
}

func NewCommandRunner() *CommandRunner {
	return &CommandRunner{handlers: make(map[string]CommandFunc)}
}

func (r *CommandRunner) Handle(program string, fn CommandFunc) {
	r.mu.Lock()
	r.handlers[program] = fn
	r.mu.Unlock()
}

// Lines returns every recorded invocation as a shell-like string.
func (r *CommandRunner) Lines() []string {
	calls := r.Calls("Run")
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Args[0].(string))
	}
	return out
}

func (r *CommandRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.record("Run", strings.Join(append([]string{name}, args...), " "))
	r.mu.Lock()
	fn, ok := r.handlers[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ownership.ErrToolUnavailable, name)
	}
	return fn(args)
}

// ContainerRunner records jobs and answers them through Handler.
type ContainerRunner struct {
	CallRecorder
	Faults

	Handler func(job ownership.Job) (ownership.JobResult, error)
}

const FaultContainerRunOnce = "container.run_once"

func (r *ContainerRunner) Jobs() []ownership.Job {
	calls := r.Calls("RunOnce")
	out := make([]ownership.Job, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Args[0].(ownership.Job))
	}
	return out
}

func (r *ContainerRunner) RunOnce(_ context.Context, job ownership.Job) (ownership.JobResult, error) {
	r.record("RunOnce", job)
	if err := r.evalFault(FaultContainerRunOnce, job); err != nil {
		return ownership.JobResult{}, err
	}
	if r.Handler == nil {
		return ownership.JobResult{}, nil
	}
	return r.Handler(job)
}

type entry struct {
	uid, gid int
	mode     fs.FileMode
}

// Filesystem is an in-memory tree of owners and modes. Chown on a path
// applies to it and everything below it.
type Filesystem struct {
	CallRecorder
	Faults

	mu      sync.Mutex
	entries map[string]entry
}

func NewFilesystem() *Filesystem {
	return &Filesystem{entries: make(map[string]entry)}
}

// Add creates path with the given owner and mode.
func (f *Filesystem) Add(path string, uid, gid int, mode fs.FileMode) {
	f.mu.Lock()
	f.entries[filepath.Clean(path)] = entry{uid: uid, gid: gid, mode: mode}
	f.mu.Unlock()
}

// Mode returns the mode of path, or 0 when absent.
func (f *Filesystem) Mode(path string) fs.FileMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[filepath.Clean(path)].mode
}

// SetOwnerAll changes owners below path without recording a call, the way an
// out-of-process tool would.
func (f *Filesystem) SetOwnerAll(path string, uid, gid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walk(path, func(p string, e entry) entry {
		e.uid, e.gid = uid, gid
		return e
	})
}

// SetModeAll is SetOwnerAll for modes.
func (f *Filesystem) SetModeAll(path string, mode fs.FileMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walk(path, func(p string, e entry) entry {
		e.mode = mode
		return e
	})
}

func (f *Filesystem) walk(root string, fn func(string, entry) entry) bool {
	root = filepath.Clean(root)
	found := false
	for p, e := range f.entries {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			f.entries[p] = fn(p, e)
			found = true
		}
	}
	return found
}

func (f *Filesystem) Owner(path string) (int, int, error) {
	f.record("Owner", path)
	if err := f.evalFault(FaultFilesystemOwner, path); err != nil {
		return 0, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[filepath.Clean(path)]
	if !ok {
		return 0, 0, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return e.uid, e.gid, nil
}

func (f *Filesystem) ChownAll(_ context.Context, path string, uid, gid int) error {
	f.record("ChownAll", path, uid, gid)
	if err := f.evalFault(FaultFilesystemChown, path, uid, gid); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.walk(path, func(_ string, e entry) entry { e.uid, e.gid = uid, gid; return e }) {
		return &fs.PathError{Op: "lchown", Path: path, Err: fs.ErrNotExist}
	}
	return nil
}

func (f *Filesystem) ChmodAll(_ context.Context, path string, mode fs.FileMode) error {
	f.record("ChmodAll", path, mode)
	if err := f.evalFault(FaultFilesystemChmod, path, mode); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.walk(path, func(_ string, e entry) entry { e.mode = mode; return e }) {
		return &fs.PathError{Op: "chmod", Path: path, Err: fs.ErrNotExist}
	}
	return nil
}
