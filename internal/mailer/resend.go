package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chasedesk/chasedesk/internal/config"
	"github.com/google/uuid"
)

type resendClient struct {
	baseURL       string
	apiKey        string
	from          string
	signature     string
	testRecipient string
	client        *http.Client
}

func NewResendClient(cfg config.Config) Sender {
	timeout := cfg.Mailer.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimSpace(cfg.Mailer.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}

	testRecipient := ""
	if !cfg.Production() {
		testRecipient = strings.TrimSpace(cfg.Mailer.TestRecipient)
	}

	return &resendClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        strings.TrimSpace(cfg.Mailer.APIKey),
		from:          strings.TrimSpace(cfg.Mailer.From),
		signature:     cfg.Mailer.Signature,
		testRecipient: testRecipient,
		client:        &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type sendError struct {
	Message string `json:"message"`
}

func (c *resendClient) Send(ctx context.Context, msg Message) (Receipt, error) {
	if c.apiKey == "" {
		return Receipt{}, errors.New("mailer_not_configured")
	}

	recipient := strings.TrimSpace(msg.Recipient)
	if c.testRecipient != "" {
		recipient = c.testRecipient
	}
	if recipient == "" {
		return Receipt{}, errors.New("mailer_missing_recipient")
	}

	body := msg.Body
	if c.signature != "" {
		body = strings.TrimSpace(body) + "\n\n" + c.signature
	}

	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{recipient},
		Subject: msg.Subject,
		Text:    body,
	})
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr sendError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return Receipt{}, errors.New("mailer_request_failed")
		}
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = "mailer_request_failed"
		}
		return Receipt{}, errors.New(message)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Receipt{}, err
	}
	if out.ID == "" {
		return Receipt{}, errors.New("mailer_response_invalid")
	}

	return Receipt{DeliveryID: out.ID, Recipient: recipient}, nil
}
