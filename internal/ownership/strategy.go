package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Strategy is one mechanism for changing ownership. Chown and Chmod work
// recursively on t.Path. Remediation returns the commands an operator would
// run to do the same by hand.
type Strategy interface {
	Name() string
	Chown(ctx context.Context, t Target) error
	Chmod(ctx context.Context, t Target) error
	Remediation(t Target) []string
}

const (
	StrategyUnshare   = "podman-unshare"
	StrategyContainer = "container"
	StrategySudo      = "sudo"
	StrategyDirect    = "direct"

	// DefaultHelperImage runs the container strategy. Any image with
	// chown, chmod and stat works.
	DefaultHelperImage = "docker.io/library/busybox:stable"

	containerMountPoint = "/target"
)

func runTool(ctx context.Context, r CommandRunner, name string, args ...string) error {
	out, err := r.Run(ctx, name, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

// UnshareStrategy runs chown inside the rootless podman user namespace,
// where the invoking user is root.
type UnshareStrategy struct {
	Runner CommandRunner
}

func (UnshareStrategy) Name() string { return StrategyUnshare }

func (s UnshareStrategy) Chown(ctx context.Context, t Target) error {
	return runTool(ctx, s.Runner, "podman", "unshare", "chown", "-R", t.Owner(), t.Path)
}

func (s UnshareStrategy) Chmod(ctx context.Context, t Target) error {
	return runTool(ctx, s.Runner, "podman", "unshare", "chmod", "-R", t.modeArg(), t.Path)
}

func (s UnshareStrategy) ViewOwner(ctx context.Context, t Target) (int, int, error) {
	out, err := s.Runner.Run(ctx, "podman", "unshare", "stat", "-c", "%u:%g", t.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("podman unshare stat: %w", err)
	}
	return ParseOwner(string(out))
}

func (UnshareStrategy) Remediation(t Target) []string {
	return []string{
		"podman unshare chown -R " + t.Owner() + " " + shellQuote(t.Path),
		"podman unshare chmod -R " + t.modeArg() + " " + shellQuote(t.Path),
	}
}

// ContainerStrategy mounts the path into a privileged helper container and
// runs chown as the container's root. Chown binds ask for podman's :U mount
// option, which maps ownership through a rootless user namespace. The engine
// adapter drops it on Docker, where rootful container root is host root.
type ContainerStrategy struct {
	Runner ContainerRunner
	Image  string
}

func (ContainerStrategy) Name() string { return StrategyContainer }

func (s ContainerStrategy) image() string {
	if s.Image == "" {
		return DefaultHelperImage
	}
	return s.Image
}

func (s ContainerStrategy) run(ctx context.Context, t Target, chown bool, cmd ...string) (string, error) {
	res, err := s.Runner.RunOnce(ctx, Job{
		Image:      s.image(),
		Cmd:        cmd,
		Binds:      []Bind{{Source: t.Path, Target: containerMountPoint, ChownToContainer: chown}},
		Privileged: true,
		User:       "0:0",
	})
	if err != nil {
		return "", fmt.Errorf("helper container %v: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("helper container %v: exit code %d: %s", cmd, res.ExitCode, strings.TrimSpace(res.Output))
	}
	return res.Output, nil
}

func (s ContainerStrategy) Chown(ctx context.Context, t Target) error {
	_, err := s.run(ctx, t, true, "chown", "-R", t.Owner(), containerMountPoint)
	return err
}

func (s ContainerStrategy) Chmod(ctx context.Context, t Target) error {
	_, err := s.run(ctx, t, false, "chmod", "-R", t.modeArg(), containerMountPoint)
	return err
}

func (s ContainerStrategy) ViewOwner(ctx context.Context, t Target) (int, int, error) {
	out, err := s.run(ctx, t, false, "stat", "-c", "%u:%g", containerMountPoint)
	if err != nil {
		return 0, 0, err
	}
	return ParseOwner(out)
}

func (s ContainerStrategy) Remediation(t Target) []string {
	return []string{
		fmt.Sprintf("podman run --rm --privileged --user 0:0 -v %s:%s:U %s chown -R %s %s",
			shellQuote(t.Path), containerMountPoint, s.image(), t.Owner(), containerMountPoint),
	}
}

// SudoStrategy runs chown as host root without prompting for a password.
type SudoStrategy struct {
	Runner CommandRunner
}

func (SudoStrategy) Name() string { return StrategySudo }

func (s SudoStrategy) Chown(ctx context.Context, t Target) error {
	return runTool(ctx, s.Runner, "sudo", "-n", "chown", "-R", t.Owner(), t.Path)
}

func (s SudoStrategy) Chmod(ctx context.Context, t Target) error {
	return runTool(ctx, s.Runner, "sudo", "-n", "chmod", "-R", t.modeArg(), t.Path)
}

func (SudoStrategy) Remediation(t Target) []string {
	return []string{
		"sudo chown -R " + t.Owner() + " " + shellQuote(t.Path),
		"sudo chmod -R " + t.modeArg() + " " + shellQuote(t.Path),
	}
}

// DirectStrategy changes ownership in-process as the invoking user. It only
// succeeds when that user is root or already owns everything.
type DirectStrategy struct {
	FS Filesystem
}

func (DirectStrategy) Name() string { return StrategyDirect }

func (s DirectStrategy) Chown(ctx context.Context, t Target) error {
	return s.FS.ChownAll(ctx, t.Path, t.UID, t.GID)
}

func (s DirectStrategy) Chmod(ctx context.Context, t Target) error {
	return s.FS.ChmodAll(ctx, t.Path, t.Mode)
}

func (DirectStrategy) Remediation(t Target) []string {
	return []string{
		"chown -R " + t.Owner() + " " + shellQuote(t.Path),
		"chmod -R " + t.modeArg() + " " + shellQuote(t.Path),
	}
}

// DefaultStrategies returns the standard order. A nil containers runner
// leaves out the container strategy.
func DefaultStrategies(cmds CommandRunner, containers ContainerRunner, fsys Filesystem, image string) []Strategy {
	out := []Strategy{UnshareStrategy{Runner: cmds}}
	if containers != nil {
		out = append(out, ContainerStrategy{Runner: containers, Image: image})
	}
	return append(out, SudoStrategy{Runner: cmds}, DirectStrategy{FS: fsys})
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrToolUnavailable)
}
