package app

import (
	"context"
	"time"

	"github.com/bobmcallan/mfdesk/internal/common"
)

// sessionSweeper deletes expired sessions.
type sessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// startSessionSweeper sweeps on a fixed interval until ctx is cancelled.
func startSessionSweeper(ctx context.Context, sweeper sessionSweeper, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Session sweeper: stopped")
			return
		case <-ticker.C:
			sweepSessions(ctx, sweeper, logger)
		}
	}
}

func sweepSessions(ctx context.Context, sweeper sessionSweeper, logger *common.Logger) {
	start := time.Now()

	removed, err := sweeper.SweepExpired(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Session sweep failed")
		return
	}
	if removed == 0 {
		return
	}

	logger.Info().
		Int("removed", removed).
		Dur("elapsed", time.Since(start)).
		Msg("Session sweep: complete")
}
