// Package scheduler drives recurring chase batches.
package scheduler

import (
	"context"
	"time"

	billingservice "github.com/chasedesk/chasedesk/internal/billing/service"
	chasedomain "github.com/chasedesk/chasedesk/internal/chase/domain"
	"github.com/chasedesk/chasedesk/internal/clock"
	"github.com/chasedesk/chasedesk/internal/config"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	log     *zap.Logger
	clock   clock.Clock
	repo    invoicedomain.Repository
	engine  chasedomain.Service
	rdb     *redis.Client
	metrics *Metrics
	sync    *billingservice.Service

	interval      time.Duration
	batchLimit    int
	retentionDays int
	syncEnabled   bool
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Repo    invoicedomain.Repository
	Engine  chasedomain.Service
	Redis   *redis.Client `optional:"true"`
	Metrics *Metrics
	Sync    *billingservice.Service `optional:"true"`
	Cfg     config.Config
}

func New(p Params) *Scheduler {
	interval := p.Cfg.Chase.BatchInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler"),
		clock:         p.Clock,
		repo:          p.Repo,
		engine:        p.Engine,
		rdb:           p.Redis,
		metrics:       p.Metrics,
		sync:          p.Sync,
		interval:      interval,
		batchLimit:    p.Cfg.Chase.BatchLimit,
		retentionDays: p.Cfg.Chase.RetentionDays,
		syncEnabled:   p.Cfg.Billing.SyncEnabled,
	}
}

// RunForever ticks until the context is cancelled. One batch runs
// immediately on startup so a freshly deployed scheduler does not wait a
// full interval before the first pass.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if s.syncEnabled && s.sync != nil {
		if _, err := s.sync.SyncAll(ctx); err != nil {
			s.log.Warn("billing sync failed", zap.Error(err))
		}
	}
	if _, err := s.RunBatch(ctx); err != nil {
		s.log.Error("batch run failed", zap.Error(err))
	}
	if err := s.CleanupChaseRecordsJob(ctx); err != nil {
		s.log.Warn("chase record cleanup failed", zap.Error(err))
	}
}

// RunBatch evaluates every chase candidate once with default options. A
// failure on one invoice never aborts the loop; only a store-level failure
// enumerating candidates or reading settings is fatal to the batch.
func (s *Scheduler) RunBatch(ctx context.Context) (chasedomain.BatchResult, error) {
	var result chasedomain.BatchResult

	release, acquired := s.acquireBatchLock(ctx, s.interval)
	if !acquired {
		s.log.Info("batch lock held elsewhere, skipping cycle")
		return result, nil
	}
	defer release()

	s.metrics.BatchesRun.Inc()

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return result, err
	}

	now := s.clock.Now(ctx)
	candidates, err := s.repo.ListChaseCandidates(ctx, now, s.batchLimit)
	if err != nil {
		return result, err
	}
	result.Candidates = len(candidates)
	s.metrics.Candidates.Add(float64(len(candidates)))

	for i := range candidates {
		inv := candidates[i]
		res, err := s.engine.Evaluate(ctx, &inv, settings, chasedomain.EvaluateOptions{})
		switch {
		case err != nil:
			result.Failed++
			s.metrics.ChasesFailed.Inc()
			s.log.Warn("chase evaluation failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
		case res.Sent:
			result.Sent++
			s.metrics.ChasesSent.Inc()
		case res.Reason == chasedomain.SkipWriteConflict:
			result.Conflicts++
			s.metrics.ChaseConflicts.Inc()
		default:
			result.Skipped++
		}
	}

	s.log.Info("batch completed",
		zap.Int("candidates", result.Candidates),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}
