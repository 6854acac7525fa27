package host

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"n8nstack/internal/ownership"

	"golang.org/x/sys/unix"
)

var _ ownership.Filesystem = FS{}

// FS is the invoking user's view of the host filesystem.
type FS struct{}

func (FS) Owner(path string) (int, int, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return int(st.Uid), int(st.Gid), nil
}

// ChownAll walks path without following symlinks and lchowns every entry.
func (FS) ChownAll(ctx context.Context, path string, uid, gid int) error {
	return filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := unix.Lchown(p, uid, gid); err != nil {
			return &os.PathError{Op: "lchown", Path: p, Err: err}
		}
		return nil
	})
}

// ChmodAll sets mode on every entry under path. Symlinks are skipped.
func (FS) ChmodAll(ctx context.Context, path string, mode fs.FileMode) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		return os.Chmod(p, mode.Perm())
	})
}
