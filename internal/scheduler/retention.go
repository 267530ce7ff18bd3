package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// CleanupChaseRecordsJob deletes failed chase records older than the
// retention horizon. Sent and cancelled records are history and stay.
func (s *Scheduler) CleanupChaseRecordsJob(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}

	cutoff := s.clock.Now(ctx).AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.DeleteFailedChaseRecordsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.metrics.RecordsExpired.Add(float64(deleted))
		s.log.Info("expired failed chase records", zap.Int64("deleted", deleted))
	}
	return nil
}
