// Package service applies billing provider facts to the invoice store.
package service

import (
	"context"

	billingdomain "github.com/chasedesk/chasedesk/internal/billing/domain"
	"github.com/chasedesk/chasedesk/internal/clock"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	repo     invoicedomain.Repository
	provider billingdomain.Provider
}

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Repo     invoicedomain.Repository
	Provider billingdomain.Provider `optional:"true"`
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:      p.Log.Named("billing.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		provider: p.Provider,
	}
}

type SyncResult struct {
	Seen   int
	Failed int
}

// SyncAll pulls the provider's overdue invoices and upserts each one.
// Per-invoice failures are counted and skipped, matching the batch
// scheduler's isolation rule.
func (s *Service) SyncAll(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	if s.provider == nil {
		return result, nil
	}

	snapshots, err := s.provider.ListOverdueInvoices(ctx)
	if err != nil {
		return result, err
	}

	now := s.clock.Now(ctx)
	for _, snap := range snapshots {
		result.Seen++
		if _, err := s.repo.UpsertSnapshot(ctx, snap, now); err != nil {
			result.Failed++
			s.log.Warn("invoice sync failed",
				zap.String("external_id", snap.ExternalID),
				zap.Error(err),
			)
		}
	}

	s.log.Info("billing sync completed",
		zap.Int("seen", result.Seen),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ApplyEvent reacts to an asynchronous provider notification. Terminal
// transitions cancel any still-pending chase records so a paid invoice can
// never accumulate new chases.
func (s *Service) ApplyEvent(ctx context.Context, event billingdomain.Event) error {
	if event.ExternalID == "" {
		return billingdomain.ErrInvalidEvent
	}

	now := s.clock.Now(ctx)

	// The provider's own timestamp, when supplied, dates the transition.
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	switch event.Type {
	case billingdomain.EventInvoicePaid:
		_, err := s.repo.MarkTerminal(ctx, event.ExternalID, invoicedomain.InvoiceStatusPaid, occurredAt)
		return err
	case billingdomain.EventInvoiceCancelled:
		_, err := s.repo.MarkTerminal(ctx, event.ExternalID, invoicedomain.InvoiceStatusCancelled, occurredAt)
		return err
	case billingdomain.EventInvoiceUpdated:
		if event.Snapshot == nil {
			return billingdomain.ErrInvalidEvent
		}
		_, err := s.repo.UpsertSnapshot(ctx, *event.Snapshot, now)
		return err
	default:
		return billingdomain.ErrUnknownEventType
	}
}
