package model

import (
	"time"

	"github.com/google/uuid"
)

// Approval request status enum constants. Transitions are one-way:
// PENDING -> APPROVED | REJECTED | CANCELLED | EXPIRED, never back.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// Execution status enum constants. Tracked separately from the approval
// status so an APPROVED-but-unexecuted request can still block duplicates.
const (
	ExecutionNone    = "NONE"
	ExecutionPending = "PENDING"
	ExecutionDone    = "EXECUTED"
	ExecutionFailed  = "FAILED"
)

// History action enum constants
const (
	HistoryCreate      = "CREATE"
	HistoryApprove     = "APPROVE"
	HistoryReject      = "REJECT"
	HistoryDelegate    = "DELEGATE"
	HistoryEscalate    = "ESCALATE"
	HistoryCancel      = "CANCEL"
	HistoryAutoApprove = "AUTO_APPROVE"
	HistoryExpire      = "EXPIRE"
)

// IsTerminalStatus reports whether a request status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return status == StatusApproved || status == StatusRejected ||
		status == StatusCancelled || status == StatusExpired
}

// ApprovalRequest is one workflow instance gating a critical action.
// Created on submission, mutated only through recorded decisions,
// escalation and cancellation; never physically deleted.
type ApprovalRequest struct {
	ID                uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code              string             `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	ActionType        string             `gorm:"type:varchar(50);not null;index" json:"action_type"`
	Status            string             `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RequesterID       uuid.UUID          `gorm:"type:uuid;not null;index:idx_request_dup" json:"requester_id"`
	Requester         *User              `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Justification     string             `gorm:"type:text" json:"justification"`
	Payload           string             `gorm:"type:jsonb;not null" json:"payload"` // opaque action parameters
	Attachments       string             `gorm:"type:jsonb" json:"attachments"`      // JSON array of document references
	Fingerprint       string             `gorm:"type:varchar(64);not null;index:idx_request_dup" json:"fingerprint"`
	RequiredApprovals int                `gorm:"not null;default:1" json:"required_approvals"`
	ExecutionStatus   string             `gorm:"type:varchar(20);not null;default:'NONE'" json:"execution_status"`
	ExecutionError    string             `gorm:"type:text" json:"execution_error,omitempty"`
	ExecutedAt        *time.Time         `json:"executed_at,omitempty"`
	Deadline          *time.Time         `gorm:"index" json:"deadline,omitempty"`
	EscalationLevel   int                `gorm:"not null;default:0" json:"escalation_level"`
	DeadlineWarned    bool               `gorm:"not null;default:false" json:"-"`
	ProcessedBy       *uuid.UUID         `gorm:"type:uuid" json:"processed_by,omitempty"`
	ProcessedAt       *time.Time         `json:"processed_at,omitempty"`
	Decisions         []ApproverDecision `gorm:"foreignKey:RequestID" json:"decisions,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// ApproverDecision is one decision slot on a request. Approved stays NULL
// until the approver (or their delegate) decides; at most one non-null
// decision per slot.
type ApproverDecision struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_decision_request_approver,unique" json:"request_id"`
	ApproverID uuid.UUID  `gorm:"type:uuid;not null;index:idx_decision_request_approver,unique" json:"approver_id"`
	Approver   *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	DelegateID *uuid.UUID `gorm:"type:uuid" json:"delegate_id,omitempty"` // set when the slot was delegated
	Tier       int        `gorm:"not null;default:1" json:"tier"`
	Approved   *bool      `json:"approved"` // nil = still pending
	Comment    string     `gorm:"type:text" json:"comment"`
	DecidedBy  *uuid.UUID `gorm:"type:uuid" json:"decided_by,omitempty"` // original approver or delegate
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EligibleDecider returns the identity currently allowed to decide this slot.
func (d ApproverDecision) EligibleDecider() uuid.UUID {
	if d.DelegateID != nil {
		return *d.DelegateID
	}
	return d.ApproverID
}

// DelegationRecord links a decision slot to a substitute approver.
// Re-delegation updates the row in place; the slot keeps its tier.
type DelegationRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DecisionID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"decision_id"`
	FromUserID uuid.UUID `gorm:"type:uuid;not null" json:"from_user_id"`
	ToUserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"to_user_id"`
	Tier       int       `gorm:"not null;default:1" json:"tier"`
	Reason     string    `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ApprovalHistory is the append-only trail of everything that happened to a
// request. Entries are never updated or deleted.
type ApprovalHistory struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID uuid.UUID  `gorm:"type:uuid;not null;index" json:"request_id"`
	Action    string     `gorm:"type:varchar(20);not null;index" json:"action"`
	ActorID   *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"` // nil for scheduler-initiated entries
	Metadata  string     `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}
