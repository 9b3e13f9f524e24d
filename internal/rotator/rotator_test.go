package rotator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecycle/internal/cache"
	"slidecycle/internal/config"
	"slidecycle/internal/ics"
	"slidecycle/internal/model"
)

const (
	home     = "/home/kiosk"
	fehbg    = "/home/kiosk/.fehbg"
	schedTxt = "/home/kiosk/slides/schedule.txt"
)

var jan15 = time.Date(2024, time.January, 15, 7, 0, 0, 0, time.UTC)

func newRotator(t *testing.T, schedule string, mutate func(*config.Config)) (*Rotator, afero.Fs) {
	t.Helper()
	cfg := &config.Config{Home: home}
	cfg.Normalize()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	fs := afero.NewMemMapFs()
	if schedule != "" {
		require.NoError(t, afero.WriteFile(fs, schedTxt, []byte(schedule), 0o644))
	}
	return &Rotator{
		Config: cfg,
		Fs:     fs,
		Now:    func() time.Time { return jan15 },
	}, fs
}

func readArtifact(t *testing.T, fs afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fs, fehbg)
	require.NoError(t, err)
	return string(data)
}

func TestRunDateMatch(t *testing.T) {
	r, fs := newRotator(t, "20240114=frCAimg\n20240115=enCAimg\n20240116=enSADimg\n", nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20240115", res.Key)
	assert.Equal(t, 1, res.Matched)
	assert.True(t, res.Written())
	assert.Equal(t, "/home/kiosk/slides/enCAimg.jpg", res.Image)
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/enCAimg.jpg\"\n", readArtifact(t, fs))
}

func TestRunWeekMatch(t *testing.T) {
	r, fs := newRotator(t, "week2=frCAimg\nweek3=enCAimg\n", func(c *config.Config) {
		c.KeyMode = model.KeyWeek
		c.Extension = "png"
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "week3", res.Key)
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/enCAimg.png\"\n", readArtifact(t, fs))
}

func TestRunLastMatchWins(t *testing.T) {
	r, fs := newRotator(t, "20240115=enCAimg\n20240115=frCAimg\n", nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/frCAimg.jpg\"\n", readArtifact(t, fs))
}

func TestRunNoMatchKeepsArtifact(t *testing.T) {
	r, fs := newRotator(t, "20240301=enCAimg\n", nil)
	const prior = "feh --bg-fill \"/home/kiosk/slides/old.jpg\"\n"
	require.NoError(t, afero.WriteFile(fs, fehbg, []byte(prior), 0o644))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Matched)
	assert.False(t, res.Written())
	assert.Equal(t, prior, readArtifact(t, fs))
}

func TestRunIndexMode(t *testing.T) {
	r, fs := newRotator(t, "20240115=englishCA\n", func(c *config.Config) {
		c.Images = model.ImageIndex
	})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/enCAimg.jpg\"\n", readArtifact(t, fs))
}

func TestRunUnknownThemeSkipsLine(t *testing.T) {
	r, fs := newRotator(t, "20240115=englishCA\n20240115=klingonCA\n", func(c *config.Config) {
		c.Images = model.ImageIndex
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	// The unknown theme did not overwrite the earlier match.
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/enCAimg.jpg\"\n", readArtifact(t, fs))
}

func TestRunUnknownThemeOnly(t *testing.T) {
	r, fs := newRotator(t, "20240115=klingonCA\n", func(c *config.Config) {
		c.Images = model.ImageIndex
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Written())
	exists, err := afero.Exists(fs, fehbg)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunMalformedPolicies(t *testing.T) {
	const sched = "weeklyreset\n20240115=enCAimg\n"

	r, fs := newRotator(t, sched, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Written())
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/enCAimg.jpg\"\n", readArtifact(t, fs))

	r, fs = newRotator(t, sched, func(c *config.Config) { c.Malformed = model.MalformedAbort })
	res, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Written())
	exists, err := afero.Exists(fs, fehbg)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunMissingSchedule(t *testing.T) {
	r, fs := newRotator(t, "", nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Written())

	// The slides directory is still created.
	ok, err := afero.DirExists(fs, "/home/kiosk/slides")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunSlidesDirFailure(t *testing.T) {
	r, _ := newRotator(t, "", nil)
	r.Fs = afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := r.Run(context.Background())
	assert.Error(t, err)
}

type refresherFunc func(context.Context) error

func (f refresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

func TestRunRefreshFailureIsNotFatal(t *testing.T) {
	r, fs := newRotator(t, "20240115=enCAimg\n", nil)
	called := false
	r.Refresher = refresherFunc(func(context.Context) error {
		called = true
		return errors.New("share offline")
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, res.Written())
	assert.Contains(t, readArtifact(t, fs), "enCAimg.jpg")
}

// failWriteFs refuses to open one path for writing.
type failWriteFs struct {
	afero.Fs
	path string
}

func (f failWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.path && flag&os.O_WRONLY != 0 {
		return nil, os.ErrPermission
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestRunArtifactWriteFailure(t *testing.T) {
	r, fs := newRotator(t, "20240115=enCAimg\n", nil)
	r.Fs = failWriteFs{Fs: fs, path: fehbg}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.False(t, res.Written())
}

type stubCalendar struct {
	body []byte
	err  error
}

func (s stubCalendar) Fetch(_ context.Context, url string) (ics.FetchResult, error) {
	return ics.FetchResult{URL: url, Body: s.body}, s.err
}

const calendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//slidecycle//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:a@test\r\nDTSTAMP:20240101T000000Z\r\nDTSTART;VALUE=DATE:20240115\r\nSUMMARY:frSADimg\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestRunCalendarSchedule(t *testing.T) {
	r, fs := newRotator(t, "20240115=enCAimg\n", func(c *config.Config) {
		c.ScheduleURL = "https://cal.example.com/slides.ics"
	})
	r.Calendar = stubCalendar{body: []byte(calendar)}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	// Calendar entries are applied after the schedule file.
	assert.Equal(t, "feh --bg-fill \"/home/kiosk/slides/frSADimg.jpg\"\n", readArtifact(t, fs))
}

func TestRunCalendarUnavailable(t *testing.T) {
	r, fs := newRotator(t, "20240115=enCAimg\n", func(c *config.Config) {
		c.ScheduleURL = "https://cal.example.com/slides.ics"
	})
	r.Calendar = stubCalendar{err: errors.New("dial tcp: no route to host")}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Contains(t, readArtifact(t, fs), "enCAimg.jpg")
}

func TestNewWiresCollaborators(t *testing.T) {
	cfg := &config.Config{Home: home}
	cfg.Normalize()
	r := New(cfg)
	assert.Nil(t, r.Calendar)
	assert.Equal(t, cache.Noop{}, r.Refresher)

	cfg.Refresh.Enabled = true
	cfg.ScheduleURL = "https://cal.example.com/slides.ics"
	r = New(cfg)
	assert.NotNil(t, r.Calendar)
	assert.IsType(t, &cache.Share{}, r.Refresher)
}
