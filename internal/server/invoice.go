package server

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

type invoiceResponse struct {
	ID             string     `json:"id"`
	ExternalID     string     `json:"external_id"`
	Recipient      string     `json:"recipient"`
	AmountCents    int64      `json:"amount_cents"`
	Currency       string     `json:"currency"`
	DueDate        time.Time  `json:"due_date"`
	Status         string     `json:"status"`
	DaysOverdue    int        `json:"days_overdue"`
	LastChaseAt    *time.Time `json:"last_chase_at,omitempty"`
	ChaseCount     int        `json:"chase_count"`
	ChasePaused    bool       `json:"chase_paused"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

func (s *Server) toInvoiceResponse(inv *invoicedomain.Invoice, settings *invoicedomain.ChaseSettings, now time.Time) invoiceResponse {
	resp := invoiceResponse{
		ID:          inv.ID.String(),
		ExternalID:  inv.ExternalID,
		Recipient:   inv.Recipient,
		AmountCents: inv.AmountCents,
		Currency:    inv.Currency,
		DueDate:     inv.DueDate,
		Status:      string(inv.Status),
		DaysOverdue: inv.DaysOverdue(now),
		LastChaseAt: inv.LastChaseAt,
		ChaseCount:  inv.ChaseCount,
		ChasePaused: inv.ChasePaused,
	}
	if settings != nil {
		resp.NextEligibleAt = s.chaseSvc.NextEligibleAt(inv, settings, now)
	}
	return resp
}

// @Summary      List Invoices
// @Description  List tracked invoices, optionally filtered by status
// @Tags         invoices
// @Produce      json
// @Param        status  query  string  false  "Invoice status"
// @Success      200  {object}  map[string]any
// @Router       /invoices [get]
func (s *Server) ListInvoices(c *gin.Context) {
	filter := invoicedomain.ListInvoiceFilter{
		Status: invoicedomain.InvoiceStatus(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Offset = offset
	}

	invoices, err := s.repo.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	settings, err := s.repo.GetSettings(c.Request.Context())
	if err != nil {
		settings = nil
	}

	now := s.clock.Now(c.Request.Context())
	out := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, s.toInvoiceResponse(&invoices[i], settings, now))
	}
	respondData(c, out)
}

// @Summary      Get Invoice
// @Description  Fetch one invoice with its computed next-chase eligibility time
// @Tags         invoices
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  map[string]any
// @Router       /invoices/{id} [get]
func (s *Server) GetInvoice(c *gin.Context) {
	id, err := parseInvoiceID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.repo.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	settings, err := s.repo.GetSettings(c.Request.Context())
	if err != nil {
		settings = nil
	}

	respondData(c, s.toInvoiceResponse(inv, settings, s.clock.Now(c.Request.Context())))
}

func parseInvoiceID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}
