package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
)

// Janitor periodically removes workspace files left behind when the server
// crashed mid-execution. Normal executions always clean up after themselves;
// the janitor only catches what a killed process could not.
type Janitor struct {
	workspaces *WorkspaceManager
	maxAge     time.Duration
	logger     *zap.Logger
	cron       *cron.Cron
	now        func() time.Time
}

// NewJanitor creates a janitor for schedule, a five-field cron expression or
// a descriptor such as "@every 5m".
func NewJanitor(logger *zap.Logger, workspaces *WorkspaceManager, schedule string, maxAge time.Duration) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	j := &Janitor{
		workspaces: workspaces,
		maxAge:     maxAge,
		logger:     logger.Named("janitor"),
		cron:       cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:        time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule janitor: %w", err)
	}
	return j, nil
}

// NewJanitorFromConfig creates the janitor from the janitor section
func NewJanitorFromConfig(logger *zap.Logger, cfg *config.Config, workspaces *WorkspaceManager) (*Janitor, error) {
	return NewJanitor(logger, workspaces, cfg.Janitor.Schedule, cfg.JanitorMaxAge())
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep() {
	removed, err := j.workspaces.Sweep(j.maxAge, j.now())
	if err != nil {
		j.logger.Warn("scratch sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Info("removed stale workspace files", zap.Int("count", removed))
	}
}

// Start runs a first sweep and starts the schedule.
func (j *Janitor) Start() {
	j.Sweep()
	j.cron.Start()
	j.logger.Debug("janitor started", zap.Duration("max_age", j.maxAge))
}

// Stop stops the schedule and waits for a running sweep until ctx is done.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
