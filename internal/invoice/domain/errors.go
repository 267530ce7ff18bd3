package domain

import "errors"

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrInvalidInvoice  = errors.New("invoice_invalid")

	// ErrChaseConflict means the conditional commit found the invoice's
	// chase fields changed since the eligibility read. Treated as not
	// eligible this cycle, never retried within the cycle.
	ErrChaseConflict = errors.New("chase_conflict")

	ErrRecordNotFound   = errors.New("chase_record_not_found")
	ErrSettingsNotFound = errors.New("chase_settings_not_found")
)
