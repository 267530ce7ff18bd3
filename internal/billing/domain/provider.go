// Package domain defines the billing provider contract.
package domain

import (
	"context"
	"errors"
	"time"

	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
)

// Provider supplies invoice fact snapshots. The chase core only consumes
// these; it never reaches into provider internals.
type Provider interface {
	ListOverdueInvoices(ctx context.Context) ([]invoicedomain.InvoiceSnapshot, error)
}

type EventType string

const (
	EventInvoicePaid      EventType = "invoice.paid"
	EventInvoiceCancelled EventType = "invoice.cancelled"
	EventInvoiceUpdated   EventType = "invoice.updated"
)

// Event is an asynchronous provider notification. Payment and cancellation
// always win over any in-flight chase decision.
type Event struct {
	Type       EventType
	ExternalID string
	OccurredAt time.Time
	Snapshot   *invoicedomain.InvoiceSnapshot
}

var (
	ErrUnknownEventType = errors.New("billing_unknown_event_type")
	ErrInvalidEvent     = errors.New("billing_invalid_event")
)
