package gateway

import (
	"context"
	"time"

	"github.com/pumpgate-io/pumpgate/internal/gateway/storage"
	"github.com/pumpgate-io/pumpgate/pkg/log"
)

const sweepInterval = 24 * time.Hour

// retentionSweeper deletes persisted rows older than the retention
// window, once at startup and then daily. A retention of 0 keeps
// everything forever.
type retentionSweeper struct {
	db            *storage.Store
	retentionDays int
	interval      time.Duration
	logger        log.Logger
}

func newRetentionSweeper(db *storage.Store, retentionDays int) *retentionSweeper {
	return &retentionSweeper{
		db:            db,
		retentionDays: retentionDays,
		interval:      sweepInterval,
		logger:        log.Std().WithName("retention"),
	}
}

// Name implements server.Server.
func (s *retentionSweeper) Name() string {
	return "retention"
}

// Start sweeps immediately and then on every interval until ctx is
// canceled.
func (s *retentionSweeper) Start(ctx context.Context) error {
	if s.retentionDays <= 0 {
		s.logger.Info("retention sweep disabled")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *retentionSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour).Unix()
	removed, err := s.db.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error(err, "retention sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info("retention sweep", "rows_removed", removed, "cutoff", cutoff)
	}
}
