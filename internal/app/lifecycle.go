package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"regportal.io/automation/internal/pkg/logger"
	"regportal.io/automation/internal/pkg/worker"
)

// Start starts all background services: the dispatch loop and the
// housekeeping ticker.
func (a *Application) Start(ctx context.Context) error {
	a.Engine.Start(ctx)
	a.startHousekeeping(ctx, a.Config.Automation.CleanupInterval)
	return nil
}

// startHousekeeping periodically forgets ended sessions and purges expired
// credentials. The work itself runs on the general pool.
// nolint:naked-goroutine // housekeeping ticker loop only.
func (a *Application) startHousekeeping(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.Pools.SubmitDetached(worker.PoolGeneral, a.housekeep); err != nil {
					logger.Warn("housekeeping skipped", zap.Error(err))
				}
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *Application) housekeep(_ context.Context) {
	sessions := a.Engine.CleanupSessions()
	creds := a.Vault.PurgeExpired()
	if sessions > 0 || creds > 0 {
		logger.Info("housekeeping done",
			zap.Int("sessions_removed", sessions),
			zap.Int("credentials_purged", creds),
		)
	}
}

// Shutdown gracefully shuts down all application components. Calls after
// the first are no-ops.
func (a *Application) Shutdown() {
	a.stopOnce.Do(func() {
		if a.stopCh != nil {
			close(a.stopCh)
		}
		if a.Engine != nil {
			a.Engine.Stop()
		}
		if a.Pools != nil {
			a.Pools.Shutdown()
		}
		logger.Info("Application stopped")
	})
}
