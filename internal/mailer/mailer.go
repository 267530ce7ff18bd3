// Package mailer delivers chase emails through an external send provider.
package mailer

import (
	"context"
)

type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Receipt reports the delivery id and the recipient actually used, which is
// the configured test recipient when test-mode rerouting applied.
type Receipt struct {
	DeliveryID string
	Recipient  string
}

// Sender owns environment-based recipient rerouting and signature appending;
// eligibility logic never sees either.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
