package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxWriteRetries bounds internal retries of the decision/cancel
// transactions on transient persistence conflicts before surfacing
// ErrConflict to the caller.
const maxWriteRetries = 3

// --- DTOs ---

type SubmitRequestDTO struct {
	ActionType        string   `json:"action_type" binding:"required"`
	Justification     string   `json:"justification" binding:"required"`
	Payload           string   `json:"payload" binding:"required"` // JSON parameters of the gated action
	Attachments       []string `json:"attachments"`                // supporting document references
	AutoApprovalRoles []string `json:"auto_approval_roles"`        // admin-only role list override
}

type DecisionDTO struct {
	Approved *bool  `json:"approved" binding:"required"`
	Comment  string `json:"comment"`
}

type DelegateDTO struct {
	ToUserID string `json:"to_user_id" binding:"required"`
	Reason   string `json:"reason"`
}

type CancelDTO struct {
	Reason string `json:"reason"`
}

type RequestFilter struct {
	Status     string
	ActionType string
	Page       int
	Limit      int
}

type DecisionResponse struct {
	ApproverID   string  `json:"approver_id"`
	ApproverName string  `json:"approver_name,omitempty"`
	DelegateID   *string `json:"delegate_id,omitempty"`
	Tier         int     `json:"tier"`
	Approved     *bool   `json:"approved"`
	Comment      string  `json:"comment,omitempty"`
	DecidedAt    *string `json:"decided_at,omitempty"`
}

type RequestResponse struct {
	ID                string             `json:"id"`
	Code              string             `json:"code"`
	ActionType        string             `json:"action_type"`
	Status            string             `json:"status"`
	RequesterID       string             `json:"requester_id"`
	RequesterName     string             `json:"requester_name,omitempty"`
	Justification     string             `json:"justification"`
	Payload           string             `json:"payload"`
	Attachments       []string           `json:"attachments,omitempty"`
	RequiredApprovals int                `json:"required_approvals"`
	ExecutionStatus   string             `json:"execution_status"`
	ExecutionError    string             `json:"execution_error,omitempty"`
	Deadline          *string            `json:"deadline,omitempty"`
	EscalationLevel   int                `json:"escalation_level"`
	ProcessedAt       *string            `json:"processed_at,omitempty"`
	Decisions         []DecisionResponse `json:"decisions,omitempty"`
	CreatedAt         string             `json:"created_at"`
}

type HistoryResponse struct {
	Action    string `json:"action"`
	ActorID   string `json:"actor_id,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"created_at"`
}

// --- Interface ---

// ApprovalService is the workflow engine: it creates requests, records
// approver decisions, aggregates them against the policy strategy and
// performs the single terminal transition.
type ApprovalService interface {
	SubmitRequest(ctx context.Context, requesterID string, req SubmitRequestDTO) (*RequestResponse, error)
	GetRequest(ctx context.Context, id string) (*RequestResponse, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]RequestResponse, int64, error)
	GetHistory(ctx context.Context, id string) ([]HistoryResponse, error)
	RecordDecision(ctx context.Context, id, deciderID string, req DecisionDTO) (*RequestResponse, error)
	CancelRequest(ctx context.Context, id, actorID string, req CancelDTO) (*RequestResponse, error)
	Delegate(ctx context.Context, id, fromUserID string, req DelegateDTO) (*RequestResponse, error)
}

type approvalService struct {
	txManager        repository.TransactionManager
	requestRepo      repository.RequestRepository
	policyRepo       repository.PolicyRepository
	approverRepo     repository.ApproverRepository
	userRepo         repository.UserRepository
	historyRepo      repository.HistoryRepository
	auditRepo        repository.AuditRepository
	executor         Executor
	notifier         Notifier
	defaultAutoRoles []string
}

// NewApprovalService wires the engine with its stores and ports.
// defaultAutoRoles is the fallback auto-approval role list used when neither
// the request nor the policy configures one.
func NewApprovalService(
	txManager repository.TransactionManager,
	requestRepo repository.RequestRepository,
	policyRepo repository.PolicyRepository,
	approverRepo repository.ApproverRepository,
	userRepo repository.UserRepository,
	historyRepo repository.HistoryRepository,
	auditRepo repository.AuditRepository,
	executor Executor,
	notifier Notifier,
	defaultAutoRoles []string,
) ApprovalService {
	return &approvalService{
		txManager:        txManager,
		requestRepo:      requestRepo,
		policyRepo:       policyRepo,
		approverRepo:     approverRepo,
		userRepo:         userRepo,
		historyRepo:      historyRepo,
		auditRepo:        auditRepo,
		executor:         executor,
		notifier:         notifier,
		defaultAutoRoles: defaultAutoRoles,
	}
}

// --- Submit ---

func (s *approvalService) SubmitRequest(ctx context.Context, requesterID string, req SubmitRequestDTO) (*RequestResponse, error) {
	requesterUUID, err := uuid.Parse(requesterID)
	if err != nil {
		return nil, fmt.Errorf("invalid requester id: %w", err)
	}

	policy, err := s.policyRepo.FindByActionType(ctx, req.ActionType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to load action policy: %w", err)
	}
	if !policy.Active {
		return nil, ErrPolicyInactive
	}

	requester, err := s.userRepo.GetByID(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("requester not found: %w", err)
	}

	// Fast-path duplicate read; the authoritative check runs again under
	// the advisory lock inside the create transaction.
	fingerprint := PayloadFingerprint(req.Payload)
	if existing, err := s.requestRepo.FindActiveDuplicate(ctx, requesterUUID, req.ActionType, fingerprint); err == nil {
		return nil, &DuplicateRequestError{ExistingCode: existing.Code, ExistingStatus: existing.Status}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	perms, permErr := s.userRepo.PermissionCodesForRole(ctx, requester.Role)
	adminAuto := permErr == nil && HasAdminAutoApproval(perms)

	// The per-request role override widens the policy's auto-approval list,
	// so only holders of the admin capability may supply one. Everything in
	// the request body is requester-controlled.
	if len(req.AutoApprovalRoles) > 0 && !adminAuto {
		return nil, ErrOverrideNotAllowed
	}

	// Auto-approval short-circuit: role match or the admin capability.
	autoSource := ""
	if EvaluateAutoApproval(policy, requester.Role, req.AutoApprovalRoles, s.defaultAutoRoles) {
		autoSource = AutoApproveByRole
	} else if adminAuto {
		autoSource = AutoApproveByAdmin
	}

	if autoSource != "" {
		return s.submitAutoApproved(ctx, requesterUUID, policy, req, fingerprint, autoSource)
	}

	approvers, err := s.approverRepo.ListActiveByActionType(ctx, req.ActionType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approvers: %w", err)
	}
	if err := ValidateStrategy(policy, len(approvers)); err != nil {
		return nil, err
	}

	var deadline *time.Time
	if policy.DeadlineHours > 0 {
		d := time.Now().Add(time.Duration(policy.DeadlineHours) * time.Hour)
		deadline = &d
	}

	request := &model.ApprovalRequest{
		ActionType:        req.ActionType,
		Status:            model.StatusPending,
		RequesterID:       requesterUUID,
		Justification:     req.Justification,
		Payload:           req.Payload,
		Attachments:       encodeAttachments(req.Attachments),
		Fingerprint:       fingerprint,
		RequiredApprovals: RequiredApprovals(policy, len(approvers)),
		ExecutionStatus:   model.ExecutionNone,
		Deadline:          deadline,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if dupErr := s.claimDuplicate(txCtx, requesterUUID, req.ActionType, fingerprint); dupErr != nil {
			return dupErr
		}

		code, codeErr := s.requestRepo.NextCode(txCtx)
		if codeErr != nil {
			return fmt.Errorf("failed to generate request code: %w", codeErr)
		}
		request.Code = code

		slots := make([]model.ApproverDecision, 0, len(approvers))
		for _, a := range approvers {
			slots = append(slots, model.ApproverDecision{
				ApproverID: a.UserID,
				Tier:       a.Tier,
			})
		}
		if createErr := s.requestRepo.Create(txCtx, request, slots); createErr != nil {
			return fmt.Errorf("failed to create approval request: %w", createErr)
		}

		return s.appendHistory(txCtx, request, model.HistoryCreate, &requesterUUID, map[string]interface{}{
			"action_type":        req.ActionType,
			"required_approvals": request.RequiredApprovals,
			"strategy":           policy.Strategy,
		})
	})
	if err != nil {
		return nil, err
	}

	approverIDs := make([]string, 0, len(approvers))
	for _, a := range approvers {
		approverIDs = append(approverIDs, a.UserID.String())
	}
	s.notifier.DecisionNeeded(request, approverIDs)

	return s.GetRequest(ctx, request.ID.String())
}

// submitAutoApproved creates the request directly in APPROVED with zero
// decision slots and invokes the executor after the transaction commits.
func (s *approvalService) submitAutoApproved(ctx context.Context, requesterUUID uuid.UUID, policy *model.ActionPolicy, req SubmitRequestDTO, fingerprint, source string) (*RequestResponse, error) {
	now := time.Now()
	request := &model.ApprovalRequest{
		ActionType:        req.ActionType,
		Status:            model.StatusApproved,
		RequesterID:       requesterUUID,
		Justification:     req.Justification,
		Payload:           req.Payload,
		Attachments:       encodeAttachments(req.Attachments),
		Fingerprint:       fingerprint,
		RequiredApprovals: 0,
		ExecutionStatus:   model.ExecutionPending,
		ProcessedBy:       &requesterUUID,
		ProcessedAt:       &now,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if dupErr := s.claimDuplicate(txCtx, requesterUUID, policy.ActionType, fingerprint); dupErr != nil {
			return dupErr
		}

		code, codeErr := s.requestRepo.NextCode(txCtx)
		if codeErr != nil {
			return fmt.Errorf("failed to generate request code: %w", codeErr)
		}
		request.Code = code

		if createErr := s.requestRepo.Create(txCtx, request, nil); createErr != nil {
			return fmt.Errorf("failed to create approval request: %w", createErr)
		}

		return s.appendHistory(txCtx, request, model.HistoryAutoApprove, &requesterUUID, map[string]interface{}{
			"action_type": req.ActionType,
			"strategy":    policy.Strategy,
			"source":      source,
		})
	})
	if err != nil {
		return nil, err
	}

	s.runExecutor(ctx, request)
	s.notifier.TerminalState(request)

	return s.GetRequest(ctx, request.ID.String())
}

// claimDuplicate is the transactional half of the duplicate guard. It holds
// the duplicate key until commit, so of two near-simultaneous submissions of
// the same payload exactly one creates a request and the other surfaces the
// winner's code.
func (s *approvalService) claimDuplicate(txCtx context.Context, requesterID uuid.UUID, actionType, fingerprint string) error {
	existing, err := s.requestRepo.ClaimDuplicateKey(txCtx, requesterID, actionType, fingerprint)
	if err == nil {
		return &DuplicateRequestError{ExistingCode: existing.Code, ExistingStatus: existing.Status}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("duplicate check failed: %w", err)
	}
	return nil
}

// --- Decisions ---

func (s *approvalService) RecordDecision(ctx context.Context, id, deciderID string, req DecisionDTO) (*RequestResponse, error) {
	requestUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRequestNotFound
	}
	deciderUUID, err := uuid.Parse(deciderID)
	if err != nil {
		return nil, fmt.Errorf("invalid decider id: %w", err)
	}
	if req.Approved == nil {
		return nil, fmt.Errorf("approved flag is required")
	}
	approved := *req.Approved

	var (
		request    *model.ApprovalRequest
		transition string
	)

	for attempt := 0; ; attempt++ {
		request, transition = nil, ""
		err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			current, findErr := s.requestRepo.FindByIDForUpdate(txCtx, requestUUID)
			if findErr != nil {
				if errors.Is(findErr, gorm.ErrRecordNotFound) {
					return ErrRequestNotFound
				}
				return findErr
			}
			if model.IsTerminalStatus(current.Status) {
				return &NotPendingError{Status: current.Status}
			}

			slot, slotErr := s.requestRepo.FindSlotForDecider(txCtx, requestUUID, deciderUUID)
			if slotErr != nil {
				if errors.Is(slotErr, gorm.ErrRecordNotFound) {
					return ErrNotEligible
				}
				return slotErr
			}
			if slot.Approved != nil {
				return ErrAlreadyDecided
			}

			now := time.Now()
			wrote, markErr := s.requestRepo.MarkDecided(txCtx, slot.ID, approved, req.Comment, deciderUUID, now)
			if markErr != nil {
				return markErr
			}
			if !wrote {
				return ErrAlreadyDecided
			}

			policy, policyErr := s.policyRepo.FindByActionType(txCtx, current.ActionType)
			if policyErr != nil {
				return fmt.Errorf("failed to load action policy: %w", policyErr)
			}

			approvedCount, rejectedCount, countErr := s.requestRepo.CountDecided(txCtx, requestUUID)
			if countErr != nil {
				return countErr
			}
			totalSlots, slotsErr := s.requestRepo.CountSlots(txCtx, requestUUID)
			if slotsErr != nil {
				return slotsErr
			}

			next := ""
			if rejectedCount >= RejectionQuorum(policy, totalSlots) {
				next = model.StatusRejected
			} else if approvedCount >= current.RequiredApprovals {
				next = model.StatusApproved
			}

			if next != "" {
				won, casErr := s.requestRepo.UpdateStatusIf(txCtx, requestUUID, model.StatusPending, next, &deciderUUID, now)
				if casErr != nil {
					return casErr
				}
				if won {
					transition = next
					current.Status = next
					current.ProcessedBy = &deciderUUID
					current.ProcessedAt = &now

					action := model.HistoryApprove
					if next == model.StatusRejected {
						action = model.HistoryReject
					}
					if histErr := s.appendHistory(txCtx, current, action, &deciderUUID, map[string]interface{}{
						"terminal": true,
						"comment":  req.Comment,
					}); histErr != nil {
						return histErr
					}
				}
			} else {
				action := model.HistoryApprove
				if !approved {
					action = model.HistoryReject
				}
				if histErr := s.appendHistory(txCtx, current, action, &deciderUUID, map[string]interface{}{
					"terminal": false,
					"comment":  req.Comment,
				}); histErr != nil {
					return histErr
				}
			}

			request = current
			return nil
		})

		if err == nil || !isTransientConflict(err) || attempt >= maxWriteRetries {
			break
		}
		log.Printf("recordDecision retry %d for request %s: %v", attempt+1, id, err)
	}
	if err != nil {
		if isTransientConflict(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	// Only the writer that observed the PENDING->terminal edge runs the
	// side effects, guaranteeing at-most-once execution per request.
	if transition == model.StatusApproved {
		s.runExecutor(ctx, request)
	}
	if transition != "" {
		s.notifier.TerminalState(request)
	}

	return s.GetRequest(ctx, id)
}

// --- Cancel ---

func (s *approvalService) CancelRequest(ctx context.Context, id, actorID string, req CancelDTO) (*RequestResponse, error) {
	requestUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRequestNotFound
	}
	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("invalid actor id: %w", err)
	}

	var request *model.ApprovalRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, findErr := s.requestRepo.FindByIDForUpdate(txCtx, requestUUID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return findErr
		}
		if current.Status != model.StatusPending {
			return &NotPendingError{Status: current.Status}
		}

		now := time.Now()
		won, casErr := s.requestRepo.UpdateStatusIf(txCtx, requestUUID, model.StatusPending, model.StatusCancelled, &actorUUID, now)
		if casErr != nil {
			return casErr
		}
		if !won {
			return &NotPendingError{Status: current.Status}
		}
		current.Status = model.StatusCancelled

		request = current
		return s.appendHistory(txCtx, current, model.HistoryCancel, &actorUUID, map[string]interface{}{
			"reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.TerminalState(request)
	return s.GetRequest(ctx, id)
}

// --- Delegation ---

func (s *approvalService) Delegate(ctx context.Context, id, fromUserID string, req DelegateDTO) (*RequestResponse, error) {
	requestUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRequestNotFound
	}
	fromUUID, err := uuid.Parse(fromUserID)
	if err != nil {
		return nil, fmt.Errorf("invalid approver id: %w", err)
	}
	toUUID, err := uuid.Parse(req.ToUserID)
	if err != nil {
		return nil, fmt.Errorf("invalid delegate id: %w", err)
	}
	if toUUID == fromUUID {
		return nil, fmt.Errorf("cannot delegate a decision to yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, req.ToUserID); err != nil {
		return nil, fmt.Errorf("delegate user not found: %w", err)
	}

	var request *model.ApprovalRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, findErr := s.requestRepo.FindByIDForUpdate(txCtx, requestUUID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return findErr
		}
		if current.Status != model.StatusPending {
			return &NotPendingError{Status: current.Status}
		}

		slot, slotErr := s.requestRepo.FindSlotForApprover(txCtx, requestUUID, fromUUID)
		if slotErr != nil {
			if errors.Is(slotErr, gorm.ErrRecordNotFound) {
				return ErrNotEligible
			}
			return slotErr
		}
		if slot.Approved != nil {
			return ErrAlreadyDecided
		}

		moved, moveErr := s.requestRepo.SetSlotDelegate(txCtx, slot.ID, toUUID)
		if moveErr != nil {
			return moveErr
		}
		if !moved {
			return ErrAlreadyDecided
		}

		rec := &model.DelegationRecord{
			DecisionID: slot.ID,
			FromUserID: fromUUID,
			ToUserID:   toUUID,
			Tier:       slot.Tier,
			Reason:     req.Reason,
		}
		if upsertErr := s.requestRepo.UpsertDelegation(txCtx, rec); upsertErr != nil {
			return upsertErr
		}

		request = current
		return s.appendHistory(txCtx, current, model.HistoryDelegate, &fromUUID, map[string]interface{}{
			"to_user_id": toUUID.String(),
			"reason":     req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.DecisionNeeded(request, []string{toUUID.String()})
	return s.GetRequest(ctx, id)
}

// --- Queries ---

func (s *approvalService) GetRequest(ctx context.Context, id string) (*RequestResponse, error) {
	requestUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRequestNotFound
	}
	request, err := s.requestRepo.FindByIDWithRelations(ctx, requestUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	resp := toRequestResponse(request)
	return &resp, nil
}

func (s *approvalService) ListRequests(ctx context.Context, filter RequestFilter) ([]RequestResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	requests, total, err := s.requestRepo.List(ctx, repository.RequestFilter{
		Status:     filter.Status,
		ActionType: filter.ActionType,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval requests: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toRequestResponse(&requests[i]))
	}
	return result, total, nil
}

func (s *approvalService) GetHistory(ctx context.Context, id string) ([]HistoryResponse, error) {
	requestUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRequestNotFound
	}
	if _, err := s.requestRepo.FindByID(ctx, requestUUID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	entries, err := s.historyRepo.ListByRequest(ctx, requestUUID)
	if err != nil {
		return nil, err
	}

	result := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		h := HistoryResponse{
			Action:    e.Action,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
		if e.ActorID != nil {
			h.ActorID = e.ActorID.String()
		}
		result = append(result, h)
	}
	return result, nil
}

// --- Internals ---

// appendHistory writes the authoritative history entry and forwards the
// same fact to the audit log, both inside the caller's transaction.
func (s *approvalService) appendHistory(ctx context.Context, request *model.ApprovalRequest, action string, actorID *uuid.UUID, metadata map[string]interface{}) error {
	encoded, _ := json.Marshal(metadata)
	entry := &model.ApprovalHistory{
		RequestID: request.ID,
		Action:    action,
		ActorID:   actorID,
		Metadata:  string(encoded),
	}
	if err := s.historyRepo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}

	audit := &model.AuditLog{
		UserID:     actorID,
		Action:     auditActionFor(action),
		EntityID:   request.ID.String(),
		EntityName: request.Code,
		Details:    string(encoded),
	}
	if err := s.auditRepo.Create(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// runExecutor invokes the external executor and records its outcome.
// An execution failure is a separate concern from approval: the request
// stays APPROVED with the error captured on it.
func (s *approvalService) runExecutor(ctx context.Context, request *model.ApprovalRequest) {
	now := time.Now()
	if execErr := s.executor.Execute(ctx, request); execErr != nil {
		log.Printf("executor failed for request %s: %v", request.Code, execErr)
		if saveErr := s.requestRepo.SetExecutionResult(ctx, request.ID, model.ExecutionFailed, execErr.Error(), now); saveErr != nil {
			log.Printf("failed to record execution error for request %s: %v", request.Code, saveErr)
		}
		return
	}
	if saveErr := s.requestRepo.SetExecutionResult(ctx, request.ID, model.ExecutionDone, "", now); saveErr != nil {
		log.Printf("failed to record execution result for request %s: %v", request.Code, saveErr)
	}
}

func auditActionFor(historyAction string) string {
	switch historyAction {
	case model.HistoryCreate:
		return model.ActionSubmitRequest
	case model.HistoryApprove:
		return model.ActionApproveRequest
	case model.HistoryReject:
		return model.ActionRejectRequest
	case model.HistoryDelegate:
		return model.ActionDelegateRequest
	case model.HistoryEscalate:
		return model.ActionEscalateRequest
	case model.HistoryCancel:
		return model.ActionCancelRequest
	case model.HistoryAutoApprove:
		return model.ActionAutoApprove
	case model.HistoryExpire:
		return model.ActionExpireRequest
	default:
		return historyAction
	}
}

// isTransientConflict matches serialization/deadlock failures that are safe
// to retry. Typed workflow errors never match.
func isTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "deadlock detected")
}

// encodeAttachments normalizes the attachment reference list into the jsonb
// column; nil maps to an empty array so the column is always valid JSON.
func encodeAttachments(refs []string) string {
	if refs == nil {
		refs = []string{}
	}
	encoded, _ := json.Marshal(refs)
	return string(encoded)
}

func decodeAttachments(raw string) []string {
	if raw == "" {
		return nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil || len(refs) == 0 {
		return nil
	}
	return refs
}

func toRequestResponse(r *model.ApprovalRequest) RequestResponse {
	resp := RequestResponse{
		ID:                r.ID.String(),
		Code:              r.Code,
		ActionType:        r.ActionType,
		Status:            r.Status,
		RequesterID:       r.RequesterID.String(),
		Justification:     r.Justification,
		Payload:           r.Payload,
		Attachments:       decodeAttachments(r.Attachments),
		RequiredApprovals: r.RequiredApprovals,
		ExecutionStatus:   r.ExecutionStatus,
		ExecutionError:    r.ExecutionError,
		EscalationLevel:   r.EscalationLevel,
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.Username
	}
	if r.Deadline != nil {
		d := r.Deadline.Format(time.RFC3339)
		resp.Deadline = &d
	}
	if r.ProcessedAt != nil {
		p := r.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &p
	}
	for _, d := range r.Decisions {
		dr := DecisionResponse{
			ApproverID: d.ApproverID.String(),
			Tier:       d.Tier,
			Approved:   d.Approved,
			Comment:    d.Comment,
		}
		if d.Approver != nil {
			dr.ApproverName = d.Approver.Username
		}
		if d.DelegateID != nil {
			delegate := d.DelegateID.String()
			dr.DelegateID = &delegate
		}
		if d.DecidedAt != nil {
			decided := d.DecidedAt.Format(time.RFC3339)
			dr.DecidedAt = &decided
		}
		resp.Decisions = append(resp.Decisions, dr)
	}
	return resp
}
