package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chasedesk/chasedesk/internal/config"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
)

type openAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIClient(cfg config.Config) Generator {
	timeout := cfg.Generator.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSpace(cfg.Generator.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &openAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.Generator.APIKey),
		model:   cfg.Generator.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = "You write short, professional payment reminder emails. " +
	"Reply with a line starting with 'Subject:' followed by the email body. " +
	"Do not include a signature, sign-off, or sender name; one is appended later."

func (c *openAIClient) Generate(ctx context.Context, inv *invoicedomain.Invoice, daysOverdue int) (Content, error) {
	if c.apiKey == "" {
		return Content{}, errors.New("generator_not_configured")
	}

	prompt := fmt.Sprintf(
		"Invoice %s for %s %s is %d days overdue (due %s). Write a reminder asking for payment. Firmness should scale with how overdue it is.",
		inv.ExternalID,
		formatAmount(inv.AmountCents),
		strings.ToUpper(inv.Currency),
		daysOverdue,
		inv.DueDate.Format("2006-01-02"),
	)

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Content{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Content{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr chatError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return Content{}, errors.New("generator_request_failed")
		}
		message := strings.TrimSpace(apiErr.Error.Message)
		if message == "" {
			message = "generator_request_failed"
		}
		return Content{}, errors.New(message)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Content{}, err
	}
	if len(out.Choices) == 0 {
		return Content{}, errors.New("generator_response_empty")
	}

	content := parseContent(out.Choices[0].Message.Content)
	if content.Subject == "" || content.Body == "" {
		return Content{}, errors.New("generator_response_invalid")
	}
	return content, nil
}

// parseContent splits the model reply into subject and body and strips any
// signature block the model emitted despite the instruction not to.
func parseContent(raw string) Content {
	raw = strings.TrimSpace(raw)
	var subject string
	body := raw

	if idx := strings.Index(raw, "\n"); idx > 0 {
		first := strings.TrimSpace(raw[:idx])
		if strings.HasPrefix(strings.ToLower(first), "subject:") {
			subject = strings.TrimSpace(first[len("subject:"):])
			body = strings.TrimSpace(raw[idx+1:])
		}
	} else if strings.HasPrefix(strings.ToLower(raw), "subject:") {
		subject = strings.TrimSpace(raw[len("subject:"):])
		body = ""
	}

	return Content{Subject: subject, Body: stripSignature(body)}
}

var signatureMarkers = []string{
	"best regards",
	"kind regards",
	"regards,",
	"sincerely",
	"thank you,",
	"thanks,",
	"best,",
	"--",
}

func stripSignature(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if trimmed == "" {
			continue
		}
		for _, marker := range signatureMarkers {
			if strings.HasPrefix(trimmed, marker) {
				return strings.TrimSpace(strings.Join(lines[:i], "\n"))
			}
		}
	}
	return strings.TrimSpace(body)
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
