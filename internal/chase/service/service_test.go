package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	chasedomain "github.com/chasedesk/chasedesk/internal/chase/domain"
	"github.com/chasedesk/chasedesk/internal/generator"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	invoicerepo "github.com/chasedesk/chasedesk/internal/invoice/repository"
	"github.com/chasedesk/chasedesk/internal/mailer"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now(_ context.Context) time.Time { return c.now }

type stubGenerator struct {
	content generator.Content
	err     error
	calls   int
}

func (g *stubGenerator) Generate(_ context.Context, _ *invoicedomain.Invoice, _ int) (generator.Content, error) {
	g.calls++
	if g.err != nil {
		return generator.Content{}, g.err
	}
	return g.content, nil
}

type stubSender struct {
	receipt mailer.Receipt
	err     error
	calls   int
}

func (s *stubSender) Send(_ context.Context, msg mailer.Message) (mailer.Receipt, error) {
	s.calls++
	if s.err != nil {
		return mailer.Receipt{}, s.err
	}
	receipt := s.receipt
	if receipt.Recipient == "" {
		receipt.Recipient = msg.Recipient
	}
	return receipt, nil
}

type harness struct {
	db     *gorm.DB
	node   *snowflake.Node
	repo   invoicedomain.Repository
	gen    *stubGenerator
	sender *stubSender
	svc    *Service
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.ChaseRecord{},
		&invoicedomain.ChaseSettings{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	repo := invoicerepo.NewRepository(db, node)
	gen := &stubGenerator{content: generator.Content{Subject: "Payment reminder", Body: "Please pay."}}
	sender := &stubSender{receipt: mailer.Receipt{DeliveryID: "msg_1"}}

	svc := &Service{
		log:             zap.NewNop(),
		clock:           fixedClock{now: now},
		genID:           node,
		repo:            repo,
		generator:       gen,
		sender:          sender,
		jitterTolerance: 15 * time.Minute,
	}
	return &harness{db: db, node: node, repo: repo, gen: gen, sender: sender, svc: svc, now: now}
}

func (h *harness) seedInvoice(t *testing.T, mutate func(*invoicedomain.Invoice)) *invoicedomain.Invoice {
	t.Helper()
	inv := &invoicedomain.Invoice{
		ID:          h.node.Generate(),
		ExternalID:  "ext-" + h.node.Generate().String(),
		Recipient:   "customer@example.com",
		AmountCents: 125_00,
		Currency:    "USD",
		DueDate:     h.now.AddDate(0, 0, -12),
		Status:      invoicedomain.InvoiceStatusOverdue,
		CreatedAt:   h.now,
		UpdatedAt:   h.now,
	}
	if mutate != nil {
		mutate(inv)
	}
	require.NoError(t, h.db.Create(inv).Error)
	return inv
}

func (h *harness) reload(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	inv, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (h *harness) records(t *testing.T, invoiceID snowflake.ID) []invoicedomain.ChaseRecord {
	t.Helper()
	records, err := h.repo.ListChaseRecords(context.Background(), invoiceID)
	require.NoError(t, err)
	return records
}

func defaultSettings() *invoicedomain.ChaseSettings {
	return &invoicedomain.ChaseSettings{ID: 1, Enabled: true, MaxChaseCount: 5}
}

func TestEvaluateBelowThresholdNeverMutates(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.DueDate = h.now.AddDate(0, 0, -3)
	})

	res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.StateNotYetDue, res.State)
	require.Equal(t, chasedomain.SkipBelowThreshold, res.Reason)

	after := h.reload(t, inv.ID)
	require.Equal(t, 0, after.ChaseCount)
	require.Nil(t, after.LastChaseAt)
	require.Empty(t, h.records(t, inv.ID))
	require.Zero(t, h.gen.calls)
	require.Zero(t, h.sender.calls)
}

func TestEvaluateTerminalStatuses(t *testing.T) {
	h := newHarness(t)
	for _, status := range []invoicedomain.InvoiceStatus{
		invoicedomain.InvoiceStatusPaid,
		invoicedomain.InvoiceStatusCancelled,
	} {
		inv := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
			i.Status = status
		})
		res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{
			BypassPaused:   true,
			BypassInterval: true,
		})
		require.NoError(t, err)
		require.False(t, res.Sent)
		require.Equal(t, chasedomain.StateTerminal, res.State)
		require.Empty(t, h.records(t, inv.ID))
	}
}

func TestEvaluateChasingDisabled(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, nil)

	settings := defaultSettings()
	settings.Enabled = false

	res, err := h.svc.Evaluate(context.Background(), inv, settings, chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.SkipChasingDisabled, res.Reason)
}

func TestEvaluatePauseAndBypass(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.ChasePaused = true
	})

	res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.StatePaused, res.State)

	res, err = h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{BypassPaused: true})
	require.NoError(t, err)
	require.True(t, res.Sent)
}

func TestEvaluateCapNeverBypassed(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.ChaseCount = 5
	})

	res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{
		BypassPaused:   true,
		BypassInterval: true,
	})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.StateCapped, res.State)
	require.Zero(t, h.sender.calls)
}

func TestEvaluateIntervalGating(t *testing.T) {
	h := newHarness(t)

	// Eight days overdue requires a 48 hour gap between chases.
	last := h.now.Add(-30 * time.Hour)
	inv := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.DueDate = h.now.AddDate(0, 0, -8)
		i.LastChaseAt = &last
		i.ChaseCount = 1
	})

	res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.SkipIntervalGated, res.Reason)

	longAgo := h.now.Add(-50 * time.Hour)
	require.NoError(t, h.db.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).
		Update("last_chase_at", longAgo).Error)
	fresh := h.reload(t, inv.ID)

	res, err = h.svc.Evaluate(context.Background(), fresh, defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.True(t, res.Sent)
}

func TestEvaluateSuccessfulSendCommits(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.Status = invoicedomain.InvoiceStatusUnpaid
	})

	res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.True(t, res.Sent)
	require.NotNil(t, res.Record)
	require.Equal(t, invoicedomain.ChaseStatusSent, res.Record.Status)

	after := h.reload(t, inv.ID)
	require.Equal(t, 1, after.ChaseCount)
	require.NotNil(t, after.LastChaseAt)
	require.Equal(t, invoicedomain.InvoiceStatusOverdue, after.Status)

	records := h.records(t, inv.ID)
	require.Len(t, records, 1)
	require.Equal(t, invoicedomain.ChaseStatusSent, records[0].Status)
	require.Equal(t, "msg_1", records[0].ProviderMessageID)
	require.Equal(t, "customer@example.com", records[0].Recipient)
	require.Equal(t, 12, records[0].OverdueDays)
	require.NotNil(t, records[0].SentAt)
}

func TestEvaluateDeliveryFailureLeavesInvoiceUntouched(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, nil)
	h.sender.err = errors.New("smtp_down")

	res, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{})
	require.Error(t, err)
	require.False(t, res.Sent)

	after := h.reload(t, inv.ID)
	require.Equal(t, 0, after.ChaseCount)
	require.Nil(t, after.LastChaseAt)

	records := h.records(t, inv.ID)
	require.Len(t, records, 1)
	require.Equal(t, invoicedomain.ChaseStatusFailed, records[0].Status)

	// The next cycle retries the same invoice once delivery recovers.
	h.sender.err = nil
	res, err = h.svc.Evaluate(context.Background(), h.reload(t, inv.ID), defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.True(t, res.Sent)
}

func TestEvaluateGenerationFailureRecordsFailed(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, nil)
	h.gen.err = errors.New("model_unavailable")

	_, err := h.svc.Evaluate(context.Background(), inv, defaultSettings(), chasedomain.EvaluateOptions{})
	require.Error(t, err)
	require.Zero(t, h.sender.calls)

	after := h.reload(t, inv.ID)
	require.Equal(t, 0, after.ChaseCount)

	records := h.records(t, inv.ID)
	require.Len(t, records, 1)
	require.Equal(t, invoicedomain.ChaseStatusFailed, records[0].Status)
}

func TestEvaluateStaleSnapshotConflicts(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, nil)
	stale := h.reload(t, inv.ID)

	// First evaluation wins and commits.
	res, err := h.svc.Evaluate(context.Background(), h.reload(t, inv.ID), defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.True(t, res.Sent)

	// The stale snapshot loses the conditional write.
	res, err = h.svc.Evaluate(context.Background(), stale, defaultSettings(), chasedomain.EvaluateOptions{BypassInterval: true})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.SkipWriteConflict, res.Reason)

	after := h.reload(t, inv.ID)
	require.Equal(t, 1, after.ChaseCount)

	var sent, cancelled int
	for _, rec := range h.records(t, inv.ID) {
		switch rec.Status {
		case invoicedomain.ChaseStatusSent:
			sent++
		case invoicedomain.ChaseStatusCancelled:
			cancelled++
		}
	}
	require.Equal(t, 1, sent)
	require.Equal(t, 1, cancelled)
}

func TestEvaluatePaymentBeforeCommitRejectsChase(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, nil)
	stale := h.reload(t, inv.ID)

	// Payment lands after the eligibility read but before the commit.
	require.NoError(t, h.db.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).
		Update("status", invoicedomain.InvoiceStatusPaid).Error)

	res, err := h.svc.Evaluate(context.Background(), stale, defaultSettings(), chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.Equal(t, chasedomain.SkipWriteConflict, res.Reason)

	after := h.reload(t, inv.ID)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, after.Status)
	require.Equal(t, 0, after.ChaseCount)

	for _, rec := range h.records(t, inv.ID) {
		require.NotEqual(t, invoicedomain.ChaseStatusSent, rec.Status)
	}
}

func TestChaseCountMonotonic(t *testing.T) {
	h := newHarness(t)
	inv := h.seedInvoice(t, nil)

	settings := defaultSettings()
	for want := 1; want <= 3; want++ {
		fresh := h.reload(t, inv.ID)
		res, err := h.svc.Evaluate(context.Background(), fresh, settings, chasedomain.EvaluateOptions{BypassInterval: true})
		require.NoError(t, err)
		require.True(t, res.Sent)
		require.Equal(t, want, h.reload(t, inv.ID).ChaseCount)
	}
}

func TestNextEligibleAtProjection(t *testing.T) {
	h := newHarness(t)
	settings := defaultSettings()

	never := h.seedInvoice(t, nil)
	got := h.svc.NextEligibleAt(never, settings, h.now)
	require.NotNil(t, got)
	require.Equal(t, h.now, *got)

	last := h.now.Add(-10 * time.Hour)
	chased := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.DueDate = h.now.AddDate(0, 0, -8)
		i.LastChaseAt = &last
		i.ChaseCount = 2
	})
	got = h.svc.NextEligibleAt(chased, settings, h.now)
	require.NotNil(t, got)
	require.Equal(t, last.Add(48*time.Hour-15*time.Minute), *got)

	capped := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.ChaseCount = settings.MaxChaseCount
	})
	require.Nil(t, h.svc.NextEligibleAt(capped, settings, h.now))

	paid := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.Status = invoicedomain.InvoiceStatusPaid
	})
	require.Nil(t, h.svc.NextEligibleAt(paid, settings, h.now))

	young := h.seedInvoice(t, func(i *invoicedomain.Invoice) {
		i.DueDate = h.now.AddDate(0, 0, -2)
	})
	require.Nil(t, h.svc.NextEligibleAt(young, settings, h.now))
}

func TestEvaluateByID(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.repo.SaveSettings(context.Background(), defaultSettings()))
	inv := h.seedInvoice(t, nil)

	res, err := h.svc.EvaluateByID(context.Background(), inv.ID, chasedomain.EvaluateOptions{})
	require.NoError(t, err)
	require.True(t, res.Sent)

	_, err = h.svc.EvaluateByID(context.Background(), h.node.Generate(), chasedomain.EvaluateOptions{})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
