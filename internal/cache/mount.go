package cache

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/afero"
	mountutils "k8s.io/mount-utils"

	appLog "slidecycle/internal/log"
)

// Mounter makes sure a network share is mounted at a mount point.
type Mounter interface {
	EnsureMounted(ctx context.Context, mountPoint string) error
}

// mountChecker is the part of mount-utils' Interface we need.
type mountChecker interface {
	IsLikelyNotMountPoint(file string) (bool, error)
}

// runFunc runs an external command to completion.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecMounter mounts through `mount <mountpoint>`, relying on a
// user-mountable /etc/fstab entry for the share.
type ExecMounter struct {
	Fs afero.Fs
	// Timeout bounds the mount command. Zero means no timeout; a hung
	// share then hangs the run.
	Timeout time.Duration

	checker mountChecker
	run     runFunc
}

// NewExecMounter returns an ExecMounter backed by the host mount table.
func NewExecMounter(afs afero.Fs, timeout time.Duration) *ExecMounter {
	return &ExecMounter{
		Fs:      afs,
		Timeout: timeout,
		checker: mountutils.New(""),
		run:     runCommand,
	}
}

func (m *ExecMounter) EnsureMounted(ctx context.Context, mountPoint string) error {
	if _, err := EnsureDir(m.Fs, mountPoint); err != nil {
		return err
	}

	notMnt, err := m.checker.IsLikelyNotMountPoint(mountPoint)
	if err == nil && !notMnt {
		appLog.Debug("share already mounted", "mount_point", mountPoint)
		return nil
	}
	if err != nil {
		appLog.Debug("mount point check failed, mounting anyway", "mount_point", mountPoint, "err", err)
	}

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	appLog.Info("mounting share", "mount_point", mountPoint)
	out, err := m.run(ctx, "mount", mountPoint)
	if err != nil {
		return fmt.Errorf("cache: mount %s: %w: %s", mountPoint, err, out)
	}
	return nil
}
