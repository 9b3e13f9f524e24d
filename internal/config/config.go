package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"slidecycle/internal/model"
)

const (
	DefaultSlidesDir  = "slides"
	DefaultSchedule   = "schedule.txt"
	DefaultExtension  = "jpg"
	DefaultViewer     = "feh --bg-fill"
	DefaultOutput     = ".fehbg"
	DefaultMountPoint = "/mnt/wahdocs"
	DefaultSource     = "/mnt/wahdocs/slides"
	DefaultCadence    = "0 6 * * *"
)

// RefreshConfig describes the optional network share the local slides
// directory is refreshed from before matching.
type RefreshConfig struct {
	Enabled bool `yaml:"enabled"`

	// MountPoint is mounted with `mount <MountPoint>`, so it needs a
	// user-mountable /etc/fstab entry.
	MountPoint string `yaml:"mount_point"`

	// Source is copied wholesale over the local slides directory.
	Source string `yaml:"source"`

	// MountTimeout bounds the mount command. Zero waits forever.
	MountTimeout time.Duration `yaml:"mount_timeout"`
}

// Config is the deployment policy for one user's rotator.
type Config struct {
	// Home is the user home directory. Empty means $HOME.
	Home string `yaml:"home"`

	// SlidesDir holds images and the schedule file, relative to Home.
	SlidesDir string `yaml:"slides_dir"`

	// Schedule is the schedule file name inside SlidesDir, or an absolute path.
	Schedule string `yaml:"schedule"`

	// ScheduleURL optionally points at an .ics calendar whose event
	// summaries are used as additional schedule values.
	ScheduleURL string `yaml:"schedule_url,omitempty"`

	// CacheDir keeps the HTTP cache for ScheduleURL, relative to Home.
	CacheDir string `yaml:"cache_dir"`

	KeyMode   model.KeyMode         `yaml:"key_mode"`
	Images    model.ImageMode       `yaml:"images"`
	Malformed model.MalformedPolicy `yaml:"malformed"`

	// Extension is the image file extension without the dot.
	Extension string `yaml:"extension"`

	// Viewer is the command prefix written to the output artifact; the
	// quoted image path is appended.
	Viewer string `yaml:"viewer"`

	// Output is the artifact path, relative to Home unless absolute.
	Output string `yaml:"output"`

	Refresh RefreshConfig `yaml:"refresh"`

	// Cadence is the 5-field cron expression printed by `slidecycle crontab`.
	Cadence string `yaml:"cadence"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Home == "" {
		c.Home = os.Getenv("HOME")
	}
	if c.SlidesDir == "" {
		c.SlidesDir = DefaultSlidesDir
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(".cache", "slidecycle")
	}
	if c.KeyMode == "" {
		c.KeyMode = model.KeyDate
	}
	if c.Images == "" {
		c.Images = model.ImageDirect
	}
	if c.Malformed == "" {
		c.Malformed = model.MalformedSkip
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.Viewer == "" {
		c.Viewer = DefaultViewer
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Refresh.MountPoint == "" {
		c.Refresh.MountPoint = DefaultMountPoint
	}
	if c.Refresh.Source == "" {
		c.Refresh.Source = DefaultSource
	}
	if c.Cadence == "" {
		c.Cadence = DefaultCadence
	}
}

// Validate rejects enum values the rotator does not understand. A typo in
// key_mode would otherwise never match and fail silently.
func (c *Config) Validate() error {
	switch c.KeyMode {
	case model.KeyDate, model.KeyWeek:
	default:
		return fmt.Errorf("config: unknown key_mode %q (want date or week)", c.KeyMode)
	}
	switch c.Images {
	case model.ImageDirect, model.ImageIndex:
	default:
		return fmt.Errorf("config: unknown images mode %q (want direct or index)", c.Images)
	}
	switch c.Malformed {
	case model.MalformedSkip, model.MalformedAbort:
	default:
		return fmt.Errorf("config: unknown malformed policy %q (want skip or abort)", c.Malformed)
	}
	if c.Home == "" {
		return errors.New("config: home directory is unknown; set home or $HOME")
	}
	return nil
}

// SlidesPath is the absolute local slides directory.
func (c *Config) SlidesPath() string {
	return filepath.Join(c.Home, c.SlidesDir)
}

// SchedulePath is the absolute schedule file path. An absolute Schedule is
// used as is.
func (c *Config) SchedulePath() string {
	if filepath.IsAbs(c.Schedule) {
		return c.Schedule
	}
	return filepath.Join(c.SlidesPath(), c.Schedule)
}

// OutputPath is the absolute output artifact path.
func (c *Config) OutputPath() string {
	return c.underHome(c.Output)
}

// CachePath is the absolute HTTP cache directory for ScheduleURL.
func (c *Config) CachePath() string {
	return c.underHome(c.CacheDir)
}

func (c *Config) underHome(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// DefaultPath is where the config lives when --config is not given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "slidecycle", "config.yaml")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "slidecycle", "config.yaml")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".slidecycle-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
