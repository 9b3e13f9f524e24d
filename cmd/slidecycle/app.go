package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli"

	"slidecycle/internal/config"
	appLog "slidecycle/internal/log"
	"slidecycle/internal/rotator"
	"slidecycle/internal/theme"
)

const dateLayout = "2006-01-02"

var globalFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "debug",
		Usage: "enable debug logging",
	},
	cli.StringFlag{
		Name:  "filename",
		Value: config.DefaultSchedule,
		Usage: "schedule file name inside the slides directory, or an absolute path",
	},
	cli.StringFlag{
		Name:  "logfile",
		Usage: "log to `FILE` instead of stdout",
	},
	cli.StringFlag{
		Name:  "config",
		Value: config.DefaultPath(),
		Usage: "path to the YAML config",
	},
}

var runFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "no-refresh",
		Usage: "skip the network share refresh even if the config enables it",
	},
	cli.StringFlag{
		Name:  "date",
		Usage: "pretend today is `YYYY-MM-DD`",
	},
}

func newApp(out io.Writer) *cli.App {
	var logCloser io.Closer

	app := cli.NewApp()
	app.Name = "slidecycle"
	app.Usage = "set the desktop background from a weekly slide schedule"
	app.UsageText = "slidecycle [global options] [command] [options]"
	app.Version = version
	app.Writer = out
	app.Flags = append(append([]cli.Flag{}, globalFlags...), runFlags...)
	app.Before = func(c *cli.Context) error {
		closer, err := appLog.Configure(appLog.Options{
			Verbose: c.GlobalBool("debug"),
			File:    c.GlobalString("logfile"),
		})
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	}
	app.After = func(*cli.Context) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	}
	app.Action = runDefault
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "match today's schedule entry and update the background (default)",
			Flags:  runFlags,
			Action: run,
		},
		{
			Name:   "crontab",
			Usage:  "print a crontab line for the configured cadence",
			Action: crontab,
		},
		{
			Name:   "themes",
			Usage:  "list the symbolic themes and their image stems",
			Action: themes,
		},
	}
	return app
}

// loadConfig applies the global flags on top of the config file.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if c.GlobalIsSet("filename") {
		cfg.Schedule = c.GlobalString("filename")
	}
	return cfg, nil
}

// flagString reads a run flag that may sit before or after the command name.
func flagString(c *cli.Context, name string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return c.GlobalString(name)
}

func flagBool(c *cli.Context, name string) bool {
	return c.Bool(name) || c.GlobalBool(name)
}

// runDefault is the root action. urfave/cli passes an unknown command name
// through as an argument, so a typo would otherwise run silently.
func runDefault(c *cli.Context) error {
	if c.NArg() > 0 {
		appLog.Warn("ignoring unexpected arguments, running the default action", "args", strings.Join(c.Args(), " "))
	}
	return run(c)
}

func run(c *cli.Context) error {
	appLog.Info("slidecycle starting", "version", version)

	cfg, err := loadConfig(c)
	if err != nil {
		appLog.Error("failed to load config", err)
		return err
	}
	if flagBool(c, "no-refresh") {
		cfg.Refresh.Enabled = false
	}

	r := rotator.New(cfg)
	if d := flagString(c, "date"); d != "" {
		day, err := time.ParseInLocation(dateLayout, d, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", d)
		}
		r.Now = func() time.Time { return day.Add(12 * time.Hour) }
	}

	appLog.Debug("effective config",
		"home", cfg.Home,
		"schedule", cfg.SchedulePath(),
		"schedule_url_set", cfg.ScheduleURL != "",
		"key_mode", cfg.KeyMode,
		"images", cfg.Images,
		"malformed", cfg.Malformed,
		"output", cfg.OutputPath(),
		"refresh", cfg.Refresh.Enabled,
	)

	// The mount command has no timeout of its own; a signal is the only
	// way to stop a hung run early.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := r.Run(ctx)
	if err != nil {
		appLog.Error("run failed", err)
		return err
	}
	appLog.Debug("run finished", "key", res.Key, "matched", res.Matched, "written", res.Written(), "image", res.Image)
	return nil
}

func crontab(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Standard crontab syntax only: five fields or an @descriptor.
	sched, err := cron.ParseStandard(cfg.Cadence)
	if err != nil {
		return fmt.Errorf("invalid cadence %q: %w", cfg.Cadence, err)
	}

	exe, err := os.Executable()
	if err != nil {
		exe = "slidecycle"
	}
	line := []string{cfg.Cadence, exe, "--config", c.GlobalString("config")}
	if lf := c.GlobalString("logfile"); lf != "" {
		line = append(line, "--logfile", lf)
	}

	appLog.Info("next scheduled run", "at", sched.Next(time.Now()).Format(time.RFC3339))
	_, err = fmt.Fprintln(c.App.Writer, strings.Join(line, " "))
	return err
}

func themes(c *cli.Context) error {
	for _, k := range theme.Keys() {
		stem, err := theme.Resolve(string(k))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.App.Writer, "%s\t%s\n", k, stem); err != nil {
			return err
		}
	}
	return nil
}
