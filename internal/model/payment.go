package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment status enum constants
const (
	PaymentScheduled = "SCHEDULED"
	PaymentReleased  = "RELEASED"
)

// BenefitPayment records a benefit payment released by an approved
// RELEASE_PAYMENT request. Only the executor creates these rows.
type BenefitPayment struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PaymentNo     string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"payment_no"`
	RequestID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"request_id"`
	BeneficiaryID uuid.UUID       `gorm:"type:uuid;not null;index" json:"beneficiary_id"`
	BenefitType   string          `gorm:"type:varchar(50);not null" json:"benefit_type"`
	Amount        decimal.Decimal `gorm:"type:numeric(15,4);not null" json:"amount"`
	Status        string          `gorm:"type:varchar(20);not null;default:'SCHEDULED'" json:"status"`
	ReleasedBy    *uuid.UUID      `gorm:"type:uuid" json:"released_by,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	Note          string          `gorm:"type:text" json:"note"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
