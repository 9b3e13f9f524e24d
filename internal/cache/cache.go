// Package cache keeps the local slides directory in place and optionally
// refreshes it from a network share.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	appLog "slidecycle/internal/log"
)

// EnsureDir creates dir if it is missing. An existing directory is not an
// error; any other failure is returned. created reports whether this call
// made the directory.
func EnsureDir(afs afero.Fs, dir string) (created bool, err error) {
	info, err := afs.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		appLog.Debug("directory already exists", "dir", dir)
		return false, nil
	case err == nil:
		return false, fmt.Errorf("cache: %s exists and is not a directory", dir)
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("cache: stat %s: %w", dir, err)
	}
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	appLog.Debug("directory created", "dir", dir)
	return true, nil
}

// Refresher brings the local image cache up to date before matching.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Noop is the Refresher used when no network share is configured.
type Noop struct{}

func (Noop) Refresh(context.Context) error { return nil }

// Share refreshes Dest from Source on a mounted network share: the mount
// is ensured first, then Dest is deleted and Source copied over it.
type Share struct {
	Fs         afero.Fs
	Mounter    Mounter
	MountPoint string
	Source     string
	Dest       string
}

// Refresh is best-effort. A failed mount is only logged: Dest is still
// cleared and the copy is attempted from whatever Source holds, so an
// unreachable share leaves Dest absent. A failed copy leaves Dest partially
// filled or absent; the error is logged and returned for the caller to weigh.
func (s *Share) Refresh(ctx context.Context) error {
	if s.Mounter != nil {
		if err := s.Mounter.EnsureMounted(ctx, s.MountPoint); err != nil {
			// The copy below reports the real damage if the share is absent.
			appLog.Error("mount failed", err, "mount_point", s.MountPoint)
		}
	}

	if err := s.Fs.RemoveAll(s.Dest); err != nil {
		appLog.Error("cache clear failed", err, "dest", s.Dest)
	}

	n, err := CopyTree(s.Fs, s.Source, s.Dest)
	if err != nil {
		appLog.Error("cache refresh failed", err, "src", s.Source, "dest", s.Dest, "copied", n)
		return err
	}
	appLog.Info("cache refreshed", "src", s.Source, "dest", s.Dest, "files", n)
	return nil
}

// CopyTree recursively copies src to dst, which must not exist yet. It keeps
// going past per-file failures and returns them joined, along with the
// number of files copied.
func CopyTree(afs afero.Fs, src, dst string) (int, error) {
	root, err := afs.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("cache: source %s: %w", src, err)
	}
	if !root.IsDir() {
		return 0, fmt.Errorf("cache: source %s is not a directory", src)
	}

	var (
		copied int
		errs   []error
	)
	walkErr := afero.Walk(afs, src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			if err := afs.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				errs = append(errs, err)
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			appLog.Debug("skipping non-regular file", "path", path)
			return nil
		}
		if err := copyFile(afs, path, target, info.Mode().Perm()); err != nil {
			errs = append(errs, err)
			return nil
		}
		copied++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return copied, errors.Join(errs...)
}

func copyFile(afs afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := afs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := afs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
