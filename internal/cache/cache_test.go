package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()

	created, err := EnsureDir(fs, "/home/kiosk/slides")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDir(fs, "/home/kiosk/slides")
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := afero.DirExists(fs, "/home/kiosk/slides")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureDirOverFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/kiosk/slides", []byte("x"), 0o644))

	_, err := EnsureDir(fs, "/home/kiosk/slides")
	assert.Error(t, err)
}

func TestEnsureDirReadOnly(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := EnsureDir(fs, "/home/kiosk/slides")
	assert.Error(t, err)
}

func seedShare(t *testing.T, fs afero.Fs) {
	t.Helper()
	files := map[string]string{
		"/mnt/share/slides/schedule.txt":    "20240115=enCAimg\n",
		"/mnt/share/slides/enCAimg.jpg":     "jpeg-a",
		"/mnt/share/slides/old/frCAimg.jpg": "jpeg-b",
	}
	for p, body := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(body), 0o644))
	}
}

func TestCopyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedShare(t, fs)

	n, err := CopyTree(fs, "/mnt/share/slides", "/home/kiosk/slides")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := afero.ReadFile(fs, "/home/kiosk/slides/old/frCAimg.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-b", string(data))
}

type fakeMounter struct {
	calls int
	err   error
}

func (f *fakeMounter) EnsureMounted(context.Context, string) error {
	f.calls++
	return f.err
}

func TestShareRefreshReplacesDest(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedShare(t, fs)
	require.NoError(t, afero.WriteFile(fs, "/home/kiosk/slides/stale.jpg", []byte("old"), 0o644))

	m := &fakeMounter{}
	s := &Share{Fs: fs, Mounter: m, MountPoint: "/mnt/share", Source: "/mnt/share/slides", Dest: "/home/kiosk/slides"}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 1, m.calls)

	exists, err := afero.Exists(fs, "/home/kiosk/slides/stale.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(fs, "/home/kiosk/slides/schedule.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestShareRefreshMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/kiosk/slides/stale.jpg", []byte("old"), 0o644))

	s := &Share{
		Fs:      fs,
		Mounter: &fakeMounter{err: errors.New("mount: can't find in /etc/fstab")},
		Source:  "/mnt/share/slides",
		Dest:    "/home/kiosk/slides",
	}
	err := s.Refresh(context.Background())
	require.Error(t, err)

	exists, err := afero.DirExists(fs, "/home/kiosk/slides")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestShareRefreshMountFailureStillCopies(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedShare(t, fs)
	require.NoError(t, afero.WriteFile(fs, "/home/kiosk/slides/stale.jpg", []byte("old"), 0o644))

	m := &fakeMounter{err: errors.New("exit status 32")}
	s := &Share{Fs: fs, Mounter: m, MountPoint: "/mnt/share", Source: "/mnt/share/slides", Dest: "/home/kiosk/slides"}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 1, m.calls)

	exists, err := afero.Exists(fs, "/home/kiosk/slides/stale.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(fs, "/home/kiosk/slides/enCAimg.jpg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Refresh(context.Background()))
}

type fakeChecker struct {
	notMnt bool
	err    error
}

func (f fakeChecker) IsLikelyNotMountPoint(string) (bool, error) { return f.notMnt, f.err }

func TestExecMounter(t *testing.T) {
	tests := []struct {
		name      string
		checker   fakeChecker
		runErr    error
		wantRun   bool
		wantError bool
	}{
		{name: "already mounted", checker: fakeChecker{notMnt: false}},
		{name: "not mounted", checker: fakeChecker{notMnt: true}, wantRun: true},
		{name: "check failed", checker: fakeChecker{err: errors.New("stat")}, wantRun: true},
		{name: "mount failed", checker: fakeChecker{notMnt: true}, runErr: errors.New("exit status 32"), wantRun: true, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			var gotArgs []string
			m := &ExecMounter{
				Fs:      fs,
				checker: tt.checker,
				run: func(_ context.Context, name string, args ...string) ([]byte, error) {
					gotArgs = append([]string{name}, args...)
					return nil, tt.runErr
				},
			}

			err := m.EnsureMounted(context.Background(), "/mnt/share")
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.wantRun {
				assert.Equal(t, []string{"mount", "/mnt/share"}, gotArgs)
			} else {
				assert.Nil(t, gotArgs)
			}

			ok, err := afero.DirExists(fs, "/mnt/share")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}
