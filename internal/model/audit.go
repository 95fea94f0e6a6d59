package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreatePolicy = "CREATE_ACTION_POLICY"
	ActionUpdatePolicy = "UPDATE_ACTION_POLICY"
	ActionDeletePolicy = "DELETE_ACTION_POLICY"

	// Approval workflow actions forwarded from the engine's history
	ActionSubmitRequest   = "SUBMIT_APPROVAL_REQUEST"
	ActionApproveRequest  = "APPROVE_REQUEST"
	ActionRejectRequest   = "REJECT_REQUEST"
	ActionDelegateRequest = "DELEGATE_REQUEST"
	ActionEscalateRequest = "ESCALATE_REQUEST"
	ActionCancelRequest   = "CANCEL_REQUEST"
	ActionAutoApprove     = "AUTO_APPROVE_REQUEST"
	ActionExpireRequest   = "EXPIRE_REQUEST"
	ActionReleasePayment  = "RELEASE_BENEFIT_PAYMENT"
)

// AuditLog tracks Who, What, and When for critical system changes.
// The engine forwards every ApprovalHistory entry here; this store is
// authoritative and written in the same transaction as the change.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if scheduler-initiated
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
