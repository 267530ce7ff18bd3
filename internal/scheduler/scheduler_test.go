package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	chasedomain "github.com/chasedesk/chasedesk/internal/chase/domain"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	invoicerepo "github.com/chasedesk/chasedesk/internal/invoice/repository"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now(_ context.Context) time.Time { return c.now }

type stubEngine struct {
	results map[string]*chasedomain.Result
	errs    map[string]error
	calls   int
}

func (e *stubEngine) Evaluate(_ context.Context, inv *invoicedomain.Invoice, _ *invoicedomain.ChaseSettings, _ chasedomain.EvaluateOptions) (*chasedomain.Result, error) {
	e.calls++
	if err, ok := e.errs[inv.ExternalID]; ok {
		return &chasedomain.Result{}, err
	}
	if res, ok := e.results[inv.ExternalID]; ok {
		return res, nil
	}
	return &chasedomain.Result{State: chasedomain.StateNotYetDue, Reason: chasedomain.SkipBelowThreshold}, nil
}

func (e *stubEngine) EvaluateByID(_ context.Context, _ snowflake.ID, _ chasedomain.EvaluateOptions) (*chasedomain.Result, error) {
	return nil, errors.New("not implemented")
}

func (e *stubEngine) Pause(_ context.Context, _ snowflake.ID, _ bool) error { return nil }

func (e *stubEngine) NextEligibleAt(_ *invoicedomain.Invoice, _ *invoicedomain.ChaseSettings, _ time.Time) *time.Time {
	return nil
}

func setupScheduler(t *testing.T, engine *stubEngine, rdb *redis.Client) (*Scheduler, invoicedomain.Repository, time.Time) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.ChaseRecord{},
		&invoicedomain.ChaseSettings{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	repo := invoicerepo.NewRepository(db, node)
	require.NoError(t, repo.SaveSettings(context.Background(), &invoicedomain.ChaseSettings{
		Enabled:       true,
		MaxChaseCount: 5,
		UpdatedAt:     now,
	}))

	s := &Scheduler{
		log:           zap.NewNop(),
		clock:         fixedClock{now: now},
		repo:          repo,
		engine:        engine,
		rdb:           rdb,
		metrics:       NewMetrics(prometheus.NewRegistry()),
		interval:      time.Hour,
		batchLimit:    100,
		retentionDays: 90,
	}
	return s, repo, now
}

func seedCandidate(t *testing.T, repo invoicedomain.Repository, externalID string, now time.Time) {
	t.Helper()
	_, err := repo.UpsertSnapshot(context.Background(), invoicedomain.InvoiceSnapshot{
		ExternalID:  externalID,
		Recipient:   "owner@example.com",
		AmountCents: 1_000,
		Currency:    "USD",
		DueDate:     now.AddDate(0, 0, -10),
		Status:      invoicedomain.InvoiceStatusOverdue,
	}, now)
	require.NoError(t, err)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	engine := &stubEngine{
		results: map[string]*chasedomain.Result{
			"inv-a": {Sent: true, State: chasedomain.StateEligible},
			"inv-c": {State: chasedomain.StateEligible, Reason: chasedomain.SkipWriteConflict},
		},
		errs: map[string]error{
			"inv-b": errors.New("mailer_down"),
		},
	}
	s, repo, now := setupScheduler(t, engine, nil)

	seedCandidate(t, repo, "inv-a", now)
	seedCandidate(t, repo, "inv-b", now)
	seedCandidate(t, repo, "inv-c", now)
	seedCandidate(t, repo, "inv-d", now)

	result, err := s.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, result.Candidates)
	require.Equal(t, 1, result.Sent)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Conflicts)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 4, engine.calls)
}

func TestRunBatchSkipsWhenLockHeld(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set(batchLockKey, "1"))

	engine := &stubEngine{}
	s, repo, now := setupScheduler(t, engine, rdb)
	seedCandidate(t, repo, "inv-a", now)

	result, err := s.RunBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Candidates)
	require.Zero(t, engine.calls)
}

func TestRunBatchProceedsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	engine := &stubEngine{}
	s, repo, now := setupScheduler(t, engine, rdb)
	seedCandidate(t, repo, "inv-a", now)

	result, err := s.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Candidates)
	require.Equal(t, 1, engine.calls)
}

func TestRunBatchReleasesLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine := &stubEngine{}
	s, repo, now := setupScheduler(t, engine, rdb)
	seedCandidate(t, repo, "inv-a", now)

	result, err := s.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Candidates)
	require.False(t, mr.Exists(batchLockKey))
}

func TestRunBatchFailsWithoutSettings(t *testing.T) {
	engine := &stubEngine{}
	s, repo, now := setupScheduler(t, engine, nil)
	seedCandidate(t, repo, "inv-a", now)

	s.repo = brokenSettingsRepo{Repository: repo}

	_, err := s.RunBatch(context.Background())
	require.Error(t, err)
	require.Zero(t, engine.calls)
}

type brokenSettingsRepo struct {
	invoicedomain.Repository
}

func (brokenSettingsRepo) GetSettings(_ context.Context) (*invoicedomain.ChaseSettings, error) {
	return nil, errors.New("store_unavailable")
}

func TestCleanupChaseRecordsJob(t *testing.T) {
	engine := &stubEngine{}
	s, repo, now := setupScheduler(t, engine, nil)
	seedCandidate(t, repo, "inv-a", now)

	inv, err := repo.FindByExternalID(context.Background(), "inv-a")
	require.NoError(t, err)

	stale := &invoicedomain.ChaseRecord{
		InvoiceID: inv.ID,
		Recipient: inv.Recipient,
		Status:    invoicedomain.ChaseStatusFailed,
		CreatedAt: now.AddDate(0, 0, -120),
		UpdatedAt: now.AddDate(0, 0, -120),
	}
	require.NoError(t, repo.InsertChaseRecord(context.Background(), stale))

	require.NoError(t, s.CleanupChaseRecordsJob(context.Background()))

	records, err := repo.ListChaseRecords(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Empty(t, records)
}
