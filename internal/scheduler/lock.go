package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const batchLockKey = "chase:batch:lock"

// acquireBatchLock takes a best-effort distributed lock so overlapping
// scheduler processes do not run the same cycle twice. Without Redis the
// single-worker assumption holds and the lock is a no-op; a Redis failure
// degrades the same way rather than blocking the cycle.
func (s *Scheduler) acquireBatchLock(ctx context.Context, ttl time.Duration) (func(), bool) {
	if s.rdb == nil {
		return func() {}, true
	}

	ok, err := s.rdb.SetNX(ctx, batchLockKey, "1", ttl).Result()
	if err != nil {
		s.log.Warn("batch lock unavailable, proceeding without it", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}

	release := func() {
		_ = s.rdb.Del(context.Background(), batchLockKey).Err()
	}
	return release, true
}
