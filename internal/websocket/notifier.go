package websocket

import (
	"encoding/json"
	"log"

	"backend/internal/model"
)

// Notification event types pushed over the hub
const (
	EventDecisionNeeded      = "DECISION_NEEDED"
	EventTerminalState       = "REQUEST_FINISHED"
	EventEscalated           = "REQUEST_ESCALATED"
	EventDeadlineApproaching = "DEADLINE_APPROACHING"
)

// HubNotifier implements the engine's notification port on top of the hub.
// All methods are best-effort: a full hub or a marshal error is logged and
// never propagated to the workflow operation that triggered it.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

type event struct {
	Type        string   `json:"type"`
	RequestID   string   `json:"request_id"`
	RequestCode string   `json:"request_code"`
	ActionType  string   `json:"action_type"`
	Status      string   `json:"status"`
	Approvers   []string `json:"approvers,omitempty"`
	TargetRole  string   `json:"target_role,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
}

func (n *HubNotifier) DecisionNeeded(req *model.ApprovalRequest, approverIDs []string) {
	n.publish(event{
		Type:        EventDecisionNeeded,
		RequestID:   req.ID.String(),
		RequestCode: req.Code,
		ActionType:  req.ActionType,
		Status:      req.Status,
		Approvers:   approverIDs,
	})
}

func (n *HubNotifier) TerminalState(req *model.ApprovalRequest) {
	n.publish(event{
		Type:        EventTerminalState,
		RequestID:   req.ID.String(),
		RequestCode: req.Code,
		ActionType:  req.ActionType,
		Status:      req.Status,
	})
}

func (n *HubNotifier) Escalated(req *model.ApprovalRequest, targetRole string) {
	n.publish(event{
		Type:        EventEscalated,
		RequestID:   req.ID.String(),
		RequestCode: req.Code,
		ActionType:  req.ActionType,
		Status:      req.Status,
		TargetRole:  targetRole,
	})
}

func (n *HubNotifier) DeadlineApproaching(req *model.ApprovalRequest) {
	e := event{
		Type:        EventDeadlineApproaching,
		RequestID:   req.ID.String(),
		RequestCode: req.Code,
		ActionType:  req.ActionType,
		Status:      req.Status,
	}
	if req.Deadline != nil {
		e.Deadline = req.Deadline.Format("2006-01-02T15:04:05Z07:00")
	}
	n.publish(e)
}

func (n *HubNotifier) publish(e event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("failed to marshal %s notification: %v", e.Type, err)
		return
	}
	n.hub.Publish(payload)
}
