// Package rotator runs one pass of the schedule: it derives today's key,
// scans the schedule for matching entries and points the background
// artifact at the matched image.
//
// Failure policy, per error kind:
//   - slides directory cannot be created: fatal, Run returns the error
//   - cache refresh fails: logged, matching continues on what is on disk
//   - schedule file missing or unreadable: logged, run ends without output
//   - remote calendar unavailable: logged, local schedule still used
//   - malformed line: skipped (or fatal for the rest of the file under
//     the abort policy)
//   - unknown theme: logged, that line skipped
//   - artifact cannot be written: logged, run continues
package rotator

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/afero"

	"slidecycle/internal/background"
	"slidecycle/internal/cache"
	"slidecycle/internal/config"
	"slidecycle/internal/ics"
	appLog "slidecycle/internal/log"
	"slidecycle/internal/model"
	"slidecycle/internal/schedule"
	"slidecycle/internal/theme"
)

// CalendarFetcher fetches a remote .ics schedule.
type CalendarFetcher interface {
	Fetch(ctx context.Context, url string) (ics.FetchResult, error)
}

// Rotator holds everything one run needs. Zero-valued collaborators are
// replaced with defaults by New.
type Rotator struct {
	Config    *config.Config
	Fs        afero.Fs
	Refresher cache.Refresher
	Calendar  CalendarFetcher
	Now       func() time.Time
}

// Result summarises a run.
type Result struct {
	Key string
	// Matched counts entries whose key equalled Key.
	Matched int
	// Image is the image path of the last artifact written, if any.
	Image string
	// Command is the artifact content last written.
	Command string
}

// Written reports whether the artifact was replaced during the run.
func (r Result) Written() bool { return r.Command != "" }

// New builds a Rotator for cfg on the real filesystem. The cache refresh is
// wired only when the config enables it.
func New(cfg *config.Config) *Rotator {
	osFs := afero.NewOsFs()
	r := &Rotator{
		Config:    cfg,
		Fs:        osFs,
		Refresher: cache.Noop{},
		Now:       time.Now,
	}
	if cfg.Refresh.Enabled {
		r.Refresher = &cache.Share{
			Fs:         osFs,
			Mounter:    cache.NewExecMounter(osFs, cfg.Refresh.MountTimeout),
			MountPoint: cfg.Refresh.MountPoint,
			Source:     cfg.Refresh.Source,
			Dest:       cfg.SlidesPath(),
		}
	}
	if cfg.ScheduleURL != "" {
		r.Calendar = ics.NewFetcher(osFs, cfg.CachePath())
	}
	return r
}

// Run performs one pass. Only failures that leave nothing to do are
// returned; everything else is logged and reflected in the Result.
func (r *Rotator) Run(ctx context.Context) (Result, error) {
	cfg := r.Config
	if r.Refresher == nil {
		r.Refresher = cache.Noop{}
	}
	if r.Now == nil {
		r.Now = time.Now
	}

	if _, err := cache.EnsureDir(r.Fs, cfg.SlidesPath()); err != nil {
		return Result{}, err
	}

	if err := r.Refresher.Refresh(ctx); err != nil {
		appLog.Warn("continuing after cache refresh failure", "err", err)
	}

	now := r.Now()
	key, err := schedule.KeyFor(cfg.KeyMode, now)
	if err != nil {
		return Result{}, err
	}
	res := Result{Key: key}
	appLog.Debug("current key", "key", key, "mode", cfg.KeyMode)

	writer := &background.Writer{Fs: r.Fs, Path: cfg.OutputPath(), Viewer: cfg.Viewer}
	apply := func(e model.Entry) error {
		if e.Key != key {
			return nil
		}
		res.Matched++
		r.apply(writer, e, &res)
		return nil
	}

	if err := r.scanFile(apply); err != nil {
		appLog.Error("schedule processing stopped", err, "file", cfg.SchedulePath())
	}

	if r.Calendar != nil && cfg.ScheduleURL != "" {
		entries, err := r.calendarEntries(ctx, now)
		if err != nil {
			appLog.Error("calendar schedule unavailable", err)
		}
		for _, e := range entries {
			_ = apply(e)
		}
	}

	if res.Matched == 0 {
		appLog.Info("no schedule entry for today", "key", key)
	}
	return res, nil
}

func (r *Rotator) scanFile(fn func(model.Entry) error) error {
	path := r.Config.SchedulePath()
	f, err := r.Fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Error("schedule file not found", err, "file", path)
			return nil
		}
		return err
	}
	defer f.Close()
	return schedule.Scan(f, r.Config.Malformed, fn)
}

func (r *Rotator) calendarEntries(ctx context.Context, now time.Time) ([]model.Entry, error) {
	fetched, err := r.Calendar.Fetch(ctx, r.Config.ScheduleURL)
	if err != nil {
		return nil, err
	}
	events, err := ics.ParseICS(fetched.Body, now.Location())
	if err != nil {
		return nil, err
	}
	return ics.EntriesFor(events, r.Config.KeyMode, now)
}

// apply resolves a matched entry and writes the artifact.
func (r *Rotator) apply(w *background.Writer, e model.Entry, res *Result) {
	cfg := r.Config
	stem, err := r.resolve(e.Value)
	if err != nil {
		appLog.Error("cannot resolve image", err, "line", e.Line, "value", e.Value)
		return
	}

	img := background.ImagePath(cfg.Home, cfg.SlidesDir, stem, cfg.Extension)
	cmd, err := w.Write(img)
	if err != nil {
		appLog.Error("unable to write background command", err, "command", cmd)
		return
	}
	res.Image = img
	res.Command = cmd
	appLog.Info("background updated", "key", e.Key, "image", img)
}

func (r *Rotator) resolve(value string) (string, error) {
	if r.Config.Images == model.ImageIndex {
		return theme.Resolve(value)
	}
	return value, nil
}
