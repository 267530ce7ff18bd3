// Package domain defines the chase decision contracts.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
)

// ChaseState is the tagged classification computed once per evaluation from
// the raw invoice fields, so the eligibility chain is auditable in one place.
type ChaseState string

const (
	StateTerminal  ChaseState = "terminal"
	StateNotYetDue ChaseState = "not_yet_due"
	StatePaused    ChaseState = "paused"
	StateCapped    ChaseState = "capped"
	StateEligible  ChaseState = "eligible"
)

// Skip reasons attached to ineligible evaluations.
const (
	SkipTerminalStatus  = "terminal_status"
	SkipBelowThreshold  = "below_threshold"
	SkipChasingDisabled = "chasing_disabled"
	SkipPaused          = "paused"
	SkipCapped          = "capped"
	SkipIntervalGated   = "interval_not_elapsed"
	SkipWriteConflict   = "write_conflict"
)

// EvaluateOptions are only set by the operator expedite action; batch runs
// use the zero value. Neither flag ever bypasses the chase-count cap.
type EvaluateOptions struct {
	BypassPaused   bool
	BypassInterval bool
}

type Result struct {
	Sent   bool
	State  ChaseState
	Reason string
	Record *invoicedomain.ChaseRecord
}

type BatchResult struct {
	Candidates int
	Sent       int
	Failed     int
	Conflicts  int
	Skipped    int
}

type Service interface {
	Evaluate(ctx context.Context, inv *invoicedomain.Invoice, settings *invoicedomain.ChaseSettings, opts EvaluateOptions) (*Result, error)
	EvaluateByID(ctx context.Context, id snowflake.ID, opts EvaluateOptions) (*Result, error)
	Pause(ctx context.Context, id snowflake.ID, paused bool) error

	// NextEligibleAt is a display-only projection of the interval policy
	// against last_chase_at; decisions never read it.
	NextEligibleAt(inv *invoicedomain.Invoice, settings *invoicedomain.ChaseSettings, now time.Time) *time.Time
}
