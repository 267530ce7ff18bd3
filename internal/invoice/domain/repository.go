package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ListInvoiceFilter struct {
	Status InvoiceStatus
	Limit  int
	Offset int
}

// ChaseCommit is the engine's all-or-nothing state transition: finalize the
// pending record to sent and bump the invoice counters in one conditional
// write keyed on the snapshot's chase fields.
type ChaseCommit struct {
	// Snapshot is the invoice exactly as read when eligibility was decided.
	Snapshot          *Invoice
	RecordID          snowflake.ID
	ProviderMessageID string
	Recipient         string
	Now               time.Time
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	FindByExternalID(ctx context.Context, externalID string) (*Invoice, error)
	List(ctx context.Context, filter ListInvoiceFilter) ([]Invoice, error)

	// ListChaseCandidates returns invoices with status unpaid/overdue whose
	// due date is in the past, oldest due first.
	ListChaseCandidates(ctx context.Context, now time.Time, limit int) ([]Invoice, error)

	// UpsertSnapshot records provider facts, creating the invoice on first
	// sight and applying corrective updates afterwards. Chase fields are
	// never touched except when the provider reports a terminal status.
	UpsertSnapshot(ctx context.Context, snap InvoiceSnapshot, now time.Time) (*Invoice, error)

	// MarkTerminal applies a payment/cancellation notice and cancels any
	// still-pending chase records for the invoice.
	MarkTerminal(ctx context.Context, externalID string, status InvoiceStatus, now time.Time) (*Invoice, error)

	SetChasePaused(ctx context.Context, id snowflake.ID, paused bool, now time.Time) error

	InsertChaseRecord(ctx context.Context, record *ChaseRecord) error
	FinalizeChaseRecord(ctx context.Context, id snowflake.ID, status ChaseStatus, updates map[string]any, now time.Time) error
	ListChaseRecords(ctx context.Context, invoiceID snowflake.ID) ([]ChaseRecord, error)
	DeleteFailedChaseRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CommitChase returns ErrChaseConflict when the conditional write is
	// rejected; the record is finalized cancelled in that case.
	CommitChase(ctx context.Context, commit ChaseCommit) error

	GetSettings(ctx context.Context) (*ChaseSettings, error)
	SaveSettings(ctx context.Context, settings *ChaseSettings) error
}

// InvoiceSnapshot is the set of facts the billing provider supplies per
// invoice; everything chase-related stays owned by this service.
type InvoiceSnapshot struct {
	ExternalID  string
	Recipient   string
	AmountCents int64
	Currency    string
	DueDate     time.Time
	Status      InvoiceStatus
	OverdueDays *int
}
