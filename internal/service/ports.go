package service

import (
	"context"

	"backend/internal/model"
)

// Executor invokes the gated action once a request reaches APPROVED.
// The engine guarantees at-most-once invocation per request; a failure is
// recorded on the request without reverting its approved status.
type Executor interface {
	Execute(ctx context.Context, req *model.ApprovalRequest) error
}

// Notifier is the fire-and-forget notification port. Implementations must
// never block workflow operations; failures are logged, not returned.
type Notifier interface {
	DecisionNeeded(req *model.ApprovalRequest, approverIDs []string)
	TerminalState(req *model.ApprovalRequest)
	Escalated(req *model.ApprovalRequest, targetRole string)
	DeadlineApproaching(req *model.ApprovalRequest)
}

// NopNotifier satisfies Notifier doing nothing. Used in tests and when the
// websocket hub is disabled.
type NopNotifier struct{}

func (NopNotifier) DecisionNeeded(*model.ApprovalRequest, []string) {}
func (NopNotifier) TerminalState(*model.ApprovalRequest)            {}
func (NopNotifier) Escalated(*model.ApprovalRequest, string)        {}
func (NopNotifier) DeadlineApproaching(*model.ApprovalRequest)      {}
