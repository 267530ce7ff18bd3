package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"gorm.io/gorm"
)

type repository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewRepository(db *gorm.DB, genID *snowflake.Node) invoicedomain.Repository {
	return &repository{db: db, genID: genID}
}

var nonTerminalStatuses = []invoicedomain.InvoiceStatus{
	invoicedomain.InvoiceStatusUnpaid,
	invoicedomain.InvoiceStatusOverdue,
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := r.db.WithContext(ctx).First(&inv, "external_id = ?", externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) List(ctx context.Context, filter invoicedomain.ListInvoiceFilter) ([]invoicedomain.Invoice, error) {
	q := r.db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var invoices []invoicedomain.Invoice
	err := q.Order("due_date ASC").Limit(limit).Offset(filter.Offset).Find(&invoices).Error
	return invoices, err
}

func (r *repository) ListChaseCandidates(ctx context.Context, now time.Time, limit int) ([]invoicedomain.Invoice, error) {
	if limit <= 0 {
		limit = 500
	}
	var invoices []invoicedomain.Invoice
	err := r.db.WithContext(ctx).
		Where("status IN ?", nonTerminalStatuses).
		Where("due_date < ?", now).
		Order("due_date ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

func (r *repository) UpsertSnapshot(ctx context.Context, snap invoicedomain.InvoiceSnapshot, now time.Time) (*invoicedomain.Invoice, error) {
	if snap.ExternalID == "" {
		return nil, invoicedomain.ErrInvalidInvoice
	}

	var out *invoicedomain.Invoice
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv invoicedomain.Invoice
		err := tx.First(&inv, "external_id = ?", snap.ExternalID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			inv = invoicedomain.Invoice{
				ID:          r.genID.Generate(),
				ExternalID:  snap.ExternalID,
				Recipient:   snap.Recipient,
				AmountCents: snap.AmountCents,
				Currency:    snap.Currency,
				DueDate:     snap.DueDate,
				Status:      snap.Status,
				OverdueDays: snap.OverdueDays,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if inv.Status == "" {
				inv.Status = invoicedomain.InvoiceStatusOverdue
			}
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}
			out = &inv
			return nil
		case err != nil:
			return err
		}

		// A provider snapshot cannot resurrect a paid or cancelled invoice.
		status := inv.Status
		if !inv.Status.Terminal() && snap.Status != "" {
			status = snap.Status
		}

		updates := map[string]any{
			"recipient":    snap.Recipient,
			"amount_cents": snap.AmountCents,
			"currency":     snap.Currency,
			"due_date":     snap.DueDate,
			"status":       status,
			"overdue_days": snap.OverdueDays,
			"updated_at":   now,
		}
		if err := tx.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).Updates(updates).Error; err != nil {
			return err
		}
		if status.Terminal() && !inv.Status.Terminal() {
			if err := cancelPendingRecords(tx, inv.ID, now); err != nil {
				return err
			}
		}
		err = tx.First(&inv, "id = ?", inv.ID).Error
		if err != nil {
			return err
		}
		out = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) MarkTerminal(ctx context.Context, externalID string, status invoicedomain.InvoiceStatus, now time.Time) (*invoicedomain.Invoice, error) {
	if !status.Terminal() {
		return nil, invoicedomain.ErrInvalidInvoice
	}

	var out *invoicedomain.Invoice
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv invoicedomain.Invoice
		if err := tx.First(&inv, "external_id = ?", externalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invoicedomain.ErrInvoiceNotFound
			}
			return err
		}

		if err := tx.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
			"status":     status,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		if err := cancelPendingRecords(tx, inv.ID, now); err != nil {
			return err
		}

		inv.Status = status
		inv.UpdatedAt = now
		out = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func cancelPendingRecords(tx *gorm.DB, invoiceID snowflake.ID, now time.Time) error {
	return tx.Model(&invoicedomain.ChaseRecord{}).
		Where("invoice_id = ? AND status = ?", invoiceID, invoicedomain.ChaseStatusPending).
		Updates(map[string]any{
			"status":     invoicedomain.ChaseStatusCancelled,
			"updated_at": now,
		}).Error
}

func (r *repository) SetChasePaused(ctx context.Context, id snowflake.ID, paused bool, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"chase_paused": paused,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return invoicedomain.ErrInvoiceNotFound
	}
	return nil
}

func (r *repository) InsertChaseRecord(ctx context.Context, record *invoicedomain.ChaseRecord) error {
	if record.ID == 0 {
		record.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FinalizeChaseRecord(ctx context.Context, id snowflake.ID, status invoicedomain.ChaseStatus, updates map[string]any, now time.Time) error {
	values := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&invoicedomain.ChaseRecord{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return invoicedomain.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListChaseRecords(ctx context.Context, invoiceID snowflake.ID) ([]invoicedomain.ChaseRecord, error) {
	var records []invoicedomain.ChaseRecord
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

func (r *repository) DeleteFailedChaseRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", invoicedomain.ChaseStatusFailed, cutoff).
		Delete(&invoicedomain.ChaseRecord{})
	return res.RowsAffected, res.Error
}

// CommitChase performs the optimistic commit: the invoice update is keyed on
// the chase fields exactly as they were read, so a concurrent evaluation or a
// payment landing mid-flight rejects the write. The loser's pending record is
// finalized cancelled and ErrChaseConflict returned.
func (r *repository) CommitChase(ctx context.Context, commit invoicedomain.ChaseCommit) error {
	snap := commit.Snapshot
	if snap == nil {
		return invoicedomain.ErrInvalidInvoice
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&invoicedomain.Invoice{}).
			Where("id = ? AND chase_count = ?", snap.ID, snap.ChaseCount).
			Where("status IN ?", nonTerminalStatuses)
		if snap.LastChaseAt == nil {
			q = q.Where("last_chase_at IS NULL")
		} else {
			q = q.Where("last_chase_at = ?", *snap.LastChaseAt)
		}

		res := q.Updates(map[string]any{
			"last_chase_at": commit.Now,
			"chase_count":   gorm.Expr("chase_count + 1"),
			"status":        invoicedomain.InvoiceStatusOverdue,
			"updated_at":    commit.Now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoicedomain.ErrChaseConflict
		}

		return tx.Model(&invoicedomain.ChaseRecord{}).
			Where("id = ?", commit.RecordID).
			Updates(map[string]any{
				"status":              invoicedomain.ChaseStatusSent,
				"sent_at":             commit.Now,
				"provider_message_id": commit.ProviderMessageID,
				"recipient":           commit.Recipient,
				"updated_at":          commit.Now,
			}).Error
	})
	if errors.Is(err, invoicedomain.ErrChaseConflict) {
		_ = r.FinalizeChaseRecord(ctx, commit.RecordID, invoicedomain.ChaseStatusCancelled, map[string]any{}, commit.Now)
		return invoicedomain.ErrChaseConflict
	}
	return err
}

func (r *repository) GetSettings(ctx context.Context) (*invoicedomain.ChaseSettings, error) {
	var settings invoicedomain.ChaseSettings
	err := r.db.WithContext(ctx).First(&settings, "id = ?", 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrSettingsNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (r *repository) SaveSettings(ctx context.Context, settings *invoicedomain.ChaseSettings) error {
	settings.ID = 1
	return r.db.WithContext(ctx).Save(settings).Error
}
