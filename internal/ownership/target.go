// Package ownership makes a host directory owned by a given uid:gid with
// mode 0755, across the user-namespace boundary of a rootless container
// runtime.
//
// A Reconciler tries a list of Strategy values in order. A strategy only
// wins when a fresh stat shows the expected owner; a command that exits
// zero without changing anything counts as a failure. When no strategy
// wins the caller gets an *UnreconciledError with the commands an operator
// can run by hand. That error is a warning, not a failure of the run.
package ownership

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMode is applied recursively once ownership is in place.
const DefaultMode fs.FileMode = 0o755

// Target asserts that Path (recursively) belongs to UID:GID with Mode.
type Target struct {
	Path string
	UID  int
	GID  int
	Mode fs.FileMode
}

func (t Target) Validate() error {
	if strings.TrimSpace(t.Path) == "" {
		return errors.New("path is required")
	}
	if !filepath.IsAbs(t.Path) {
		return fmt.Errorf("path %q must be absolute", t.Path)
	}
	if t.UID < 0 || t.GID < 0 {
		return fmt.Errorf("uid and gid must not be negative, got %d:%d", t.UID, t.GID)
	}
	return nil
}

func (t Target) withDefaults() Target {
	if t.Mode == 0 {
		t.Mode = DefaultMode
	}
	t.Path = filepath.Clean(t.Path)
	return t
}

// Owner formats the target as chown(1) expects it.
func (t Target) Owner() string {
	return strconv.Itoa(t.UID) + ":" + strconv.Itoa(t.GID)
}

func (t Target) modeArg() string {
	return strconv.FormatUint(uint64(t.Mode.Perm()), 8)
}

func (t Target) String() string {
	return fmt.Sprintf("%s (%s, %s)", t.Path, t.Owner(), t.modeArg())
}

// ParseOwner parses "uid:gid" as printed by `stat -c %u:%g`.
func ParseOwner(s string) (uid, gid int, err error) {
	u, g, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("parse owner %q: want uid:gid", s)
	}
	uid, err = strconv.Atoi(u)
	if err != nil {
		return 0, 0, fmt.Errorf("parse owner %q: uid: %w", s, err)
	}
	gid, err = strconv.Atoi(g)
	if err != nil {
		return 0, 0, fmt.Errorf("parse owner %q: gid: %w", s, err)
	}
	if uid < 0 || gid < 0 {
		return 0, 0, fmt.Errorf("parse owner %q: negative id", s)
	}
	return uid, gid, nil
}
