package auction

import (
	"context"
	"time"

	"rental-auction/utils"
)

// ExpirySweeper periodically closes auctions whose deadline has passed
type ExpirySweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewExpirySweeper creates a sweeper running every interval
func NewExpirySweeper(engine *Engine, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{engine: engine, interval: interval}
}

// Run sweeps until ctx is cancelled
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	utils.Info("auction: expiry sweeper started", map[string]any{"interval": s.interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("auction: expiry sweeper stopped", nil)
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	closed, err := s.engine.CloseExpired(ctx)
	if err != nil {
		utils.Error("auction: expiry sweep finished with errors", map[string]any{
			"closed": closed,
			"error":  err.Error(),
		})
		return
	}
	if closed > 0 {
		utils.Info("auction: expiry sweep closed auctions", map[string]any{"closed": closed})
	}
}
