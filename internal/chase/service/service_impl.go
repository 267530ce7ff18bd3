// Package service implements the chase decision engine: for one invoice it
// decides whether a chase email is due right now and, if so, produces and
// commits exactly one send.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	chasedomain "github.com/chasedesk/chasedesk/internal/chase/domain"
	"github.com/chasedesk/chasedesk/internal/chase/policy"
	"github.com/chasedesk/chasedesk/internal/clock"
	"github.com/chasedesk/chasedesk/internal/config"
	"github.com/chasedesk/chasedesk/internal/generator"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"github.com/chasedesk/chasedesk/internal/mailer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node

	repo      invoicedomain.Repository
	generator generator.Generator
	sender    mailer.Sender

	jitterTolerance time.Duration
}

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      invoicedomain.Repository
	Generator generator.Generator
	Sender    mailer.Sender
	Cfg       config.Config
}

func NewService(p ServiceParam) chasedomain.Service {
	return &Service{
		log:             p.Log.Named("chase.service"),
		clock:           p.Clock,
		genID:           p.GenID,
		repo:            p.Repo,
		generator:       p.Generator,
		sender:          p.Sender,
		jitterTolerance: p.Cfg.Chase.JitterTolerance,
	}
}

// classify runs the eligibility chain in precedence order and returns the
// tagged state plus the skip reason for ineligible states. Options are
// applied here so expedite and batch runs share one auditable chain.
func (s *Service) classify(
	inv *invoicedomain.Invoice,
	settings *invoicedomain.ChaseSettings,
	opts chasedomain.EvaluateOptions,
	now time.Time,
) (chasedomain.ChaseState, string) {
	if inv.Status.Terminal() {
		return chasedomain.StateTerminal, chasedomain.SkipTerminalStatus
	}

	daysOverdue := inv.DaysOverdue(now)
	interval, ok := policy.RequiredInterval(daysOverdue, settings)
	if !ok {
		return chasedomain.StateNotYetDue, chasedomain.SkipBelowThreshold
	}

	if !settings.Enabled {
		return chasedomain.StateNotYetDue, chasedomain.SkipChasingDisabled
	}

	if inv.ChasePaused && !opts.BypassPaused {
		return chasedomain.StatePaused, chasedomain.SkipPaused
	}

	// The cap is hard: not even expedite crosses it.
	if inv.ChaseCount >= settings.MaxChaseCount {
		return chasedomain.StateCapped, chasedomain.SkipCapped
	}

	if inv.LastChaseAt != nil && !opts.BypassInterval {
		elapsed := now.Sub(*inv.LastChaseAt)
		if elapsed < interval-s.jitterTolerance {
			return chasedomain.StateNotYetDue, chasedomain.SkipIntervalGated
		}
	}

	return chasedomain.StateEligible, ""
}

func (s *Service) Evaluate(
	ctx context.Context,
	inv *invoicedomain.Invoice,
	settings *invoicedomain.ChaseSettings,
	opts chasedomain.EvaluateOptions,
) (*chasedomain.Result, error) {
	if inv == nil || settings == nil {
		return nil, invoicedomain.ErrInvalidInvoice
	}

	now := s.clock.Now(ctx)
	state, reason := s.classify(inv, settings, opts, now)
	if state != chasedomain.StateEligible {
		s.log.Debug("chase skipped",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("state", string(state)),
			zap.String("reason", reason),
		)
		return &chasedomain.Result{State: state, Reason: reason}, nil
	}

	daysOverdue := inv.DaysOverdue(now)

	content, err := s.generator.Generate(ctx, inv, daysOverdue)
	if err != nil {
		s.log.Warn("content generation failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		record := s.newRecord(inv, daysOverdue, generator.Content{}, now)
		record.Status = invoicedomain.ChaseStatusFailed
		record.Metadata = datatypes.JSONMap{"error": err.Error(), "stage": "generate"}
		if insertErr := s.repo.InsertChaseRecord(ctx, record); insertErr != nil {
			return nil, insertErr
		}
		return &chasedomain.Result{State: chasedomain.StateEligible, Record: record}, err
	}

	record := s.newRecord(inv, daysOverdue, content, now)
	if err := s.repo.InsertChaseRecord(ctx, record); err != nil {
		return nil, err
	}

	receipt, err := s.sender.Send(ctx, mailer.Message{
		Recipient: inv.Recipient,
		Subject:   content.Subject,
		Body:      content.Body,
	})
	if err != nil {
		s.log.Warn("chase delivery failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		// Invoice stays untouched so the next cycle retries.
		if finErr := s.repo.FinalizeChaseRecord(ctx, record.ID, invoicedomain.ChaseStatusFailed, map[string]any{
			"metadata": datatypes.JSONMap{"error": err.Error(), "stage": "send"},
		}, now); finErr != nil {
			s.log.Warn("failed to finalize chase record", zap.Error(finErr))
		}
		record.Status = invoicedomain.ChaseStatusFailed
		return &chasedomain.Result{State: chasedomain.StateEligible, Record: record}, err
	}

	err = s.repo.CommitChase(ctx, invoicedomain.ChaseCommit{
		Snapshot:          inv,
		RecordID:          record.ID,
		ProviderMessageID: receipt.DeliveryID,
		Recipient:         receipt.Recipient,
		Now:               now,
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrChaseConflict) {
			s.log.Debug("chase commit conflicted",
				zap.String("invoice_id", inv.ID.String()),
			)
			record.Status = invoicedomain.ChaseStatusCancelled
			return &chasedomain.Result{
				State:  chasedomain.StateEligible,
				Reason: chasedomain.SkipWriteConflict,
				Record: record,
			}, nil
		}
		return nil, err
	}

	record.Status = invoicedomain.ChaseStatusSent
	record.SentAt = &now
	record.ProviderMessageID = receipt.DeliveryID
	record.Recipient = receipt.Recipient

	s.log.Info("chase sent",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("external_id", inv.ExternalID),
		zap.Int("days_overdue", daysOverdue),
		zap.Int("chase_count", inv.ChaseCount+1),
	)
	return &chasedomain.Result{Sent: true, State: chasedomain.StateEligible, Record: record}, nil
}

func (s *Service) EvaluateByID(ctx context.Context, id snowflake.ID, opts chasedomain.EvaluateOptions) (*chasedomain.Result, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, inv, settings, opts)
}

func (s *Service) Pause(ctx context.Context, id snowflake.ID, paused bool) error {
	return s.repo.SetChasePaused(ctx, id, paused, s.clock.Now(ctx))
}

func (s *Service) NextEligibleAt(inv *invoicedomain.Invoice, settings *invoicedomain.ChaseSettings, now time.Time) *time.Time {
	if inv == nil || settings == nil || inv.Status.Terminal() {
		return nil
	}
	if inv.ChaseCount >= settings.MaxChaseCount {
		return nil
	}
	interval, ok := policy.RequiredInterval(inv.DaysOverdue(now), settings)
	if !ok {
		return nil
	}
	if inv.LastChaseAt == nil {
		return &now
	}
	next := inv.LastChaseAt.Add(interval - s.jitterTolerance)
	return &next
}

func (s *Service) newRecord(inv *invoicedomain.Invoice, daysOverdue int, content generator.Content, now time.Time) *invoicedomain.ChaseRecord {
	return &invoicedomain.ChaseRecord{
		ID:          s.genID.Generate(),
		InvoiceID:   inv.ID,
		OverdueDays: daysOverdue,
		Subject:     content.Subject,
		Body:        content.Body,
		Recipient:   inv.Recipient,
		Status:      invoicedomain.ChaseStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
