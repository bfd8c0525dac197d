package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own diagnostics through the service logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func (a *App) newCron() (*cron.Cron, error) {
	loc := a.cfg.GovernorQuotaLocation
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{logger: a.logger.Named("cron")}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{name: "event_store_sweep", schedule: a.cfg.EventStoreSweepSchedule, run: a.sweepEvents},
		{name: "roster_refresh", schedule: a.cfg.RosterRefreshSchedule, run: a.refreshRosters},
	}
	for _, job := range jobs {
		if strings.TrimSpace(job.schedule) == "" {
			continue
		}
		if _, err := c.AddFunc(job.schedule, job.run); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, job.schedule, err)
		}
	}
	return c, nil
}

func (a *App) sweepEvents() {
	ctx := a.backgroundContext()
	if evicted := a.store.EvictExpired(ctx); evicted > 0 {
		a.logger.InfoContext(ctx, "expired events swept", "evicted", evicted)
	}
}

// refreshRosters reloads only leagues whose snapshot has gone stale.
func (a *App) refreshRosters() {
	ctx := a.backgroundContext()
	if _, err := a.rosters.Load(ctx, a.cfg.Leagues, false); err != nil {
		a.logger.ErrorContext(ctx, "scheduled roster refresh failed", "error", err)
	}
}
