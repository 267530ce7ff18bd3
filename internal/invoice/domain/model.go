// Package domain contains the invoice chase data model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid    InvoiceStatus = "unpaid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Terminal reports whether the status permanently ends chasing.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Invoice tracks one payable obligation imported from the billing provider.
// ChaseCount and LastChaseAt are only mutated by the engine's commit step.
type Invoice struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	ExternalID  string            `gorm:"type:text;not null;uniqueIndex"`
	Recipient   string            `gorm:"type:text;not null"`
	AmountCents int64             `gorm:"not null"`
	Currency    string            `gorm:"type:text;not null"`
	DueDate     time.Time         `gorm:"not null;index"`
	Status      InvoiceStatus     `gorm:"type:text;not null;index"`
	LastChaseAt *time.Time        `gorm:"index"`
	ChaseCount  int               `gorm:"not null;default:0"`
	ChasePaused bool              `gorm:"not null;default:false"`
	OverdueDays *int              `gorm:""`
	Metadata    datatypes.JSONMap `gorm:"type:json"`
	CreatedAt   time.Time         `gorm:"not null"`
	UpdatedAt   time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// DaysOverdue prefers the provider-cached value and falls back to deriving
// from the due date, floored at zero.
func (i *Invoice) DaysOverdue(now time.Time) int {
	if i.OverdueDays != nil && *i.OverdueDays >= 0 {
		return *i.OverdueDays
	}
	days := int(now.Sub(i.DueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

type ChaseStatus string

const (
	ChaseStatusPending   ChaseStatus = "pending"
	ChaseStatusSent      ChaseStatus = "sent"
	ChaseStatusFailed    ChaseStatus = "failed"
	ChaseStatusCancelled ChaseStatus = "cancelled"
)

// ChaseRecord is one historical chase email event. Records are append-only:
// once SentAt is populated nothing mutates them, except the cancelled
// transition applied to still-pending records when payment lands.
type ChaseRecord struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	InvoiceID         snowflake.ID      `gorm:"not null;index"`
	OverdueDays       int               `gorm:"not null"`
	Subject           string            `gorm:"type:text"`
	Body              string            `gorm:"type:text"`
	Recipient         string            `gorm:"type:text;not null"`
	Status            ChaseStatus       `gorm:"type:text;not null;index"`
	ProviderMessageID string            `gorm:"type:text"`
	SentAt            *time.Time        `gorm:""`
	Metadata          datatypes.JSONMap `gorm:"type:json"`
	CreatedAt         time.Time         `gorm:"not null"`
	UpdatedAt         time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (ChaseRecord) TableName() string { return "chase_records" }

// ChaseSettings is the single-row operator configuration read once per
// evaluation cycle and treated as an immutable snapshot for its duration.
type ChaseSettings struct {
	ID            int64     `gorm:"primaryKey"`
	Enabled       bool      `gorm:"not null"`
	MaxChaseCount int       `gorm:"not null"`
	Tier10Hours   int       `gorm:"not null;default:0"`
	Tier7Hours    int       `gorm:"not null;default:0"`
	Tier5Hours    int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (ChaseSettings) TableName() string { return "chase_settings" }
