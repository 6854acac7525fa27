// Package host implements the ownership ports against the local machine:
// program execution through os/exec and filesystem walks through
// golang.org/x/sys/unix.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"n8nstack/internal/ownership"
)

var _ ownership.CommandRunner = Runner{}

// Runner executes host programs.
type Runner struct{}

// Run returns combined output. A missing program yields an error wrapping
// ownership.ErrToolUnavailable.
func (Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ownership.ErrToolUnavailable, name)
		}
		return nil, fmt.Errorf("look up %s: %w", name, err)
	}

	slog.Debug("run host command", "component", "host", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}
