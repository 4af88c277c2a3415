package lock

import (
	"context"
	"time"
)

// RunSweeper deletes expired locks every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	s.logger.Info("starting lock sweeper", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lock sweeper stopping")
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("lock sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired locks removed", "count", n)
			}
		}
	}
}
