package server

import (
	"errors"
	"time"

	billingdomain "github.com/chasedesk/chasedesk/internal/billing/domain"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

type billingEventRequest struct {
	Type       string `json:"type"`
	ExternalID string `json:"external_id"`
	OccurredAt string `json:"occurred_at"`
	Invoice    *struct {
		Recipient   string `json:"recipient"`
		AmountCents int64  `json:"amount_cents"`
		Currency    string `json:"currency"`
		DueDate     string `json:"due_date"`
		Status      string `json:"status"`
		OverdueDays *int   `json:"overdue_days,omitempty"`
	} `json:"invoice,omitempty"`
}

// @Summary      Ingest Billing Event
// @Description  Accept a payment/cancellation/update notification from the billing provider
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /webhooks/billing [post]
func (s *Server) IngestBillingEvent(c *gin.Context) {
	var req billingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event := billingdomain.Event{
		Type:       billingdomain.EventType(req.Type),
		ExternalID: req.ExternalID,
	}
	if ts, err := time.Parse(time.RFC3339, req.OccurredAt); err == nil {
		event.OccurredAt = ts
	}
	if req.Invoice != nil {
		dueDate, err := time.Parse(time.RFC3339, req.Invoice.DueDate)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		event.Snapshot = &invoicedomain.InvoiceSnapshot{
			ExternalID:  req.ExternalID,
			Recipient:   req.Invoice.Recipient,
			AmountCents: req.Invoice.AmountCents,
			Currency:    req.Invoice.Currency,
			DueDate:     dueDate.UTC(),
			Status:      invoicedomain.InvoiceStatus(req.Invoice.Status),
			OverdueDays: req.Invoice.OverdueDays,
		}
	}

	if err := s.billingSvc.ApplyEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, billingdomain.ErrUnknownEventType) || errors.Is(err, billingdomain.ErrInvalidEvent) {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"received": true})
}
