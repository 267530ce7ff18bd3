// Package policy maps days overdue to the minimum re-chase interval.
package policy

import (
	"time"

	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
)

const (
	defaultTier10Hours = 24
	defaultTier7Hours  = 48
	defaultTier5Hours  = 72
)

// RequiredInterval is a step function over daysOverdue, evaluated highest
// tier first so ties resolve to the shorter interval. Below five days no
// chase is due and ok is false. Settings may override a tier's hours;
// zero means "use the default".
func RequiredInterval(daysOverdue int, settings *invoicedomain.ChaseSettings) (time.Duration, bool) {
	switch {
	case daysOverdue >= 10:
		return hours(tierHours(settings, 10)), true
	case daysOverdue >= 7:
		return hours(tierHours(settings, 7)), true
	case daysOverdue >= 5:
		return hours(tierHours(settings, 5)), true
	default:
		return 0, false
	}
}

func tierHours(settings *invoicedomain.ChaseSettings, tier int) int {
	var override, fallback int
	switch tier {
	case 10:
		fallback = defaultTier10Hours
		if settings != nil {
			override = settings.Tier10Hours
		}
	case 7:
		fallback = defaultTier7Hours
		if settings != nil {
			override = settings.Tier7Hours
		}
	case 5:
		fallback = defaultTier5Hours
		if settings != nil {
			override = settings.Tier5Hours
		}
	}
	if override > 0 {
		return override
	}
	return fallback
}

func hours(h int) time.Duration {
	return time.Duration(h) * time.Hour
}
