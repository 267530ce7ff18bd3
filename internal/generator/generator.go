// Package generator produces chase email prose through an external model.
package generator

import (
	"context"

	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
)

type Content struct {
	Subject string
	Body    string
}

// Generator returns subject/body for one chase email. The body must not carry
// a signature block; the mailer appends the configured one.
type Generator interface {
	Generate(ctx context.Context, inv *invoicedomain.Invoice, daysOverdue int) (Content, error)
}
