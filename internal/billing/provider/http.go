// Package provider implements the billing facts provider over HTTP.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	billingdomain "github.com/chasedesk/chasedesk/internal/billing/domain"
	"github.com/chasedesk/chasedesk/internal/config"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"go.uber.org/zap"
)

type httpProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPProvider(cfg config.Config, log *zap.Logger) billingdomain.Provider {
	return &httpProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Billing.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.Billing.APIKey),
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log.Named("billing.provider"),
	}
}

type providerInvoice struct {
	ID          string `json:"id"`
	Recipient   string `json:"recipient"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	OverdueDays *int   `json:"overdue_days,omitempty"`
}

type listInvoicesResponse struct {
	Invoices []providerInvoice `json:"invoices"`
}

func (p *httpProvider) ListOverdueInvoices(ctx context.Context) ([]invoicedomain.InvoiceSnapshot, error) {
	if p.baseURL == "" {
		return nil, errors.New("billing_provider_not_configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/invoices?status=overdue", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.New("billing_request_failed")
	}

	var out listInvoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	snapshots := make([]invoicedomain.InvoiceSnapshot, 0, len(out.Invoices))
	for _, inv := range out.Invoices {
		snap, err := toSnapshot(inv)
		if err != nil {
			p.log.Warn("skipping malformed provider invoice",
				zap.String("external_id", inv.ID),
				zap.Error(err),
			)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func toSnapshot(inv providerInvoice) (invoicedomain.InvoiceSnapshot, error) {
	if strings.TrimSpace(inv.ID) == "" {
		return invoicedomain.InvoiceSnapshot{}, billingdomain.ErrInvalidEvent
	}
	dueDate, err := time.Parse(time.RFC3339, inv.DueDate)
	if err != nil {
		dueDate, err = time.Parse("2006-01-02", inv.DueDate)
		if err != nil {
			return invoicedomain.InvoiceSnapshot{}, err
		}
	}
	return invoicedomain.InvoiceSnapshot{
		ExternalID:  strings.TrimSpace(inv.ID),
		Recipient:   strings.TrimSpace(inv.Recipient),
		AmountCents: inv.AmountCents,
		Currency:    strings.ToUpper(strings.TrimSpace(inv.Currency)),
		DueDate:     dueDate.UTC(),
		Status:      invoicedomain.InvoiceStatus(strings.ToLower(strings.TrimSpace(inv.Status))),
		OverdueDays: inv.OverdueDays,
	}, nil
}
