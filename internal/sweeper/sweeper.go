// Package sweeper runs the retention cleanup on a fixed interval.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner deletes expired records and reports how many went.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Run calls c.Cleanup once immediately and then every interval until ctx is
// done. Failures are logged and the loop keeps going.
func Run(ctx context.Context, c Cleaner, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sweep := func() {
		n, err := c.Cleanup(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("sweep failed", zap.Error(err))
			}
			return
		}
		if n > 0 {
			logger.Info("swept expired chunks", zap.Int("deleted", n))
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
