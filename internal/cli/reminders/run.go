package reminders

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julianstephens/habitnudge/internal/cli"
	"github.com/julianstephens/habitnudge/internal/config"
	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/logger"
	"github.com/julianstephens/habitnudge/internal/reminder"
	"github.com/julianstephens/habitnudge/internal/storage"
)

const (
	EngineAll    = "all"
	EngineTiered = string(constants.EngineTiered)
	EngineFree   = string(constants.EngineFree)
)

type RunCmd struct {
	Engine string `help:"Engines to run (all, tiered, free)." enum:"all,tiered,free" default:"all"`
	DryRun bool   `help:"Print reminders instead of delivering them. Nothing is written back and no lease is taken."`
	At     string `help:"Evaluate the pass as of this RFC3339 instant instead of now."`
}

func (c *RunCmd) Run(ctx *cli.Context) error {
	now, err := c.evaluationTime()
	if err != nil {
		return err
	}

	cfg := ctx.Config
	if c.DryRun {
		cfg.Transport = config.TransportDryRun
		cfg.LeaseBackend = config.LeaseNone
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runCtx := *ctx
	runCtx.Config = cfg

	locker, closeLocker, err := runCtx.Locker()
	if err != nil {
		return err
	}
	defer closeLocker()

	dispatcher, closeDispatcher, err := runCtx.Dispatcher()
	if err != nil {
		return err
	}
	defer closeDispatcher()

	var store storage.Provider = ctx.Store
	if c.DryRun {
		store = readOnlyStore{Provider: ctx.Store}
	}

	opts := cfg.PassOptions()
	var engines []reminder.Engine
	if c.Engine == EngineAll || c.Engine == EngineTiered || c.Engine == "" {
		engines = append(engines, reminder.NewTieredEngine(store, dispatcher, locker, opts))
	}
	if c.Engine == EngineAll || c.Engine == EngineFree || c.Engine == "" {
		engines = append(engines, reminder.NewFreeEngine(store, dispatcher, locker, opts, cfg.FreeHour))
	}
	if len(engines) == 0 {
		return fmt.Errorf("unknown engine %q (expected all, tiered or free)", c.Engine)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting reminder pass", "at", now.Format(time.RFC3339), "engine", c.Engine, "dry_run", c.DryRun)
	reports, err := reminder.RunPass(sigCtx, now, engines...)

	cli.RenderReports(ctx.Stdout(), reports)
	for _, r := range reports {
		if r == nil {
			continue
		}
		logger.Info("Reminder pass finished",
			"engine", r.Engine,
			"sent", r.Sent(),
			"skipped", r.Skipped(),
			"failed", r.Failed(),
			"messages", r.Messages(),
			"lease_held", r.LeaseHeld,
			"duration", r.Duration(),
		)
	}

	if err != nil {
		return fmt.Errorf("reminder pass failed: %w", err)
	}
	return nil
}

func (c *RunCmd) evaluationTime() (time.Time, error) {
	if c.At == "" {
		return time.Now().UTC(), nil
	}
	at, err := time.Parse(time.RFC3339, c.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q (expected RFC3339, e.g. 2024-07-09T08:00:00Z): %w", c.At, err)
	}
	return at.UTC(), nil
}

// readOnlyStore drops the sent-timestamp writes so a dry run leaves no trace.
type readOnlyStore struct {
	storage.Provider
}

func (readOnlyStore) UpdateLastSent(ctx context.Context, scheduleID string, at time.Time) error {
	return nil
}

func (readOnlyStore) UpdateFallbackLastSent(ctx context.Context, scheduleID string, at time.Time) error {
	return nil
}

func (readOnlyStore) UpdateDefaultReminderSent(ctx context.Context, userID string, at time.Time) error {
	return nil
}
