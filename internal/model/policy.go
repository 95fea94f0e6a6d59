package model

import (
	"time"

	"github.com/google/uuid"
)

// Approval strategy enum constants
const (
	StrategySimple        = "SIMPLE"
	StrategyMajority      = "MAJORITY"
	StrategyCustomMinimum = "CUSTOM_MINIMUM"
	StrategyHierarchical  = "HIERARCHICAL_ESCALATION"
	StrategyAutoByRole    = "AUTO_APPROVAL_BY_ROLE"
)

// Critical action type enum constants
const (
	ActionTypeReleasePayment  = "RELEASE_PAYMENT"
	ActionTypeGrantBenefit    = "GRANT_BENEFIT"
	ActionTypeRevokeBenefit   = "REVOKE_BENEFIT"
	ActionTypeUpdateCitizen   = "UPDATE_CITIZEN_RECORD"
	ActionTypeDeleteDocument  = "DELETE_DOCUMENT"
	ActionTypeCloseCaseRecord = "CLOSE_CASE_RECORD"
)

// ActionPolicy configures how a critical action type must be approved.
// Administered externally; the engine only reads it.
type ActionPolicy struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActionType        string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"action_type"`
	Strategy          string    `gorm:"type:varchar(30);not null;default:'SIMPLE'" json:"strategy"`
	MinApprovers      int       `gorm:"not null;default:1" json:"min_approvers"`
	AutoApprovalRoles string    `gorm:"type:jsonb" json:"auto_approval_roles"` // JSON array of role names
	EscalationRole    string    `gorm:"type:varchar(50)" json:"escalation_role"`
	DeadlineHours     int       `gorm:"not null;default:0" json:"deadline_hours"` // 0 = no deadline
	Active            bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ApproverConfig maps an action type to one eligible approver with an order/tier.
// The set of active rows for an action type is the approver registry.
type ApproverConfig struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActionType string    `gorm:"type:varchar(50);not null;index:idx_approver_action_user,unique" json:"action_type"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_approver_action_user,unique" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Tier       int       `gorm:"not null;default:1" json:"tier"`
	Active     bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
