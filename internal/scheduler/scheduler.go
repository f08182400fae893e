// Package scheduler periodically reconciles every tenant with an enabled
// storage configuration.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/qadhya/drivesync/internal/errors"
	"github.com/qadhya/drivesync/internal/models"
	"github.com/qadhya/drivesync/internal/reconcile"
	"github.com/qadhya/drivesync/internal/runlog"
)

// ConfigLister returns the storage configurations due for sync.
type ConfigLister interface {
	ListEnabledStorageConfigs(ctx context.Context, provider string) ([]models.StorageConfig, error)
}

// Runner executes one reconciliation run.
type Runner interface {
	Run(ctx context.Context, cfg reconcile.SyncConfig) (*runlog.Summary, error)
}

// Scheduler runs tenants one after another on a fixed interval.
type Scheduler struct {
	configs  ConfigLister
	runner   Runner
	interval time.Duration
	defaults reconcile.SyncConfig
	logger   *slog.Logger
}

// New creates a Scheduler. defaults is the per-run template; its
// Provider selects which storage configurations are listed.
func New(configs ConfigLister, runner Runner, interval time.Duration, defaults reconcile.SyncConfig, logger *slog.Logger) *Scheduler {
	if defaults.Provider == "" {
		defaults.Provider = models.ProviderGoogleDrive
	}
	return &Scheduler{
		configs:  configs,
		runner:   runner,
		interval: interval,
		defaults: defaults,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
// It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs every enabled tenant once, sequentially, and returns the
// number of runs that did not fail. A tenant whose previous run is still
// holding the lease is skipped.
func (s *Scheduler) Tick(ctx context.Context) int {
	configs, err := s.configs.ListEnabledStorageConfigs(ctx, s.defaults.Provider)
	if err != nil {
		s.logger.Error("listing storage configurations failed", slog.String("error", err.Error()))
		return 0
	}

	ok := 0
	for _, sc := range configs {
		if ctx.Err() != nil {
			return ok
		}

		cfg := s.defaults
		cfg.TenantID = sc.TenantID

		summary, err := s.runner.Run(ctx, cfg)
		switch {
		case errors.Is(err, apperrors.ErrRunInProgress):
			s.logger.Info("tenant already syncing, skipped", slog.String("tenant_id", sc.TenantID))
		case err != nil:
			s.logger.Warn("scheduled sync failed",
				slog.String("tenant_id", sc.TenantID),
				slog.String("error", err.Error()),
			)
		default:
			ok++
			s.logger.Debug("scheduled sync finished",
				slog.String("tenant_id", sc.TenantID),
				slog.String("status", string(summary.Status)),
			)
		}
	}

	return ok
}
