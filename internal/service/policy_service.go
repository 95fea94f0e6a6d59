package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreatePolicyRequest struct {
	ActionType        string   `json:"action_type" binding:"required"`
	Strategy          string   `json:"strategy" binding:"required,oneof=SIMPLE MAJORITY CUSTOM_MINIMUM HIERARCHICAL_ESCALATION AUTO_APPROVAL_BY_ROLE"`
	MinApprovers      int      `json:"min_approvers"`
	AutoApprovalRoles []string `json:"auto_approval_roles"`
	EscalationRole    string   `json:"escalation_role"`
	DeadlineHours     int      `json:"deadline_hours"`
}

type UpdatePolicyRequest struct {
	Strategy          string   `json:"strategy" binding:"omitempty,oneof=SIMPLE MAJORITY CUSTOM_MINIMUM HIERARCHICAL_ESCALATION AUTO_APPROVAL_BY_ROLE"`
	MinApprovers      *int     `json:"min_approvers"`
	AutoApprovalRoles []string `json:"auto_approval_roles"`
	EscalationRole    *string  `json:"escalation_role"`
	DeadlineHours     *int     `json:"deadline_hours"`
	Active            *bool    `json:"active"`
}

type AddApproverRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Tier   int    `json:"tier"`
}

type PolicyResponse struct {
	ID                string   `json:"id"`
	ActionType        string   `json:"action_type"`
	Strategy          string   `json:"strategy"`
	MinApprovers      int      `json:"min_approvers"`
	AutoApprovalRoles []string `json:"auto_approval_roles"`
	EscalationRole    string   `json:"escalation_role"`
	DeadlineHours     int      `json:"deadline_hours"`
	Active            bool     `json:"active"`
	CreatedAt         string   `json:"created_at"`
}

type ApproverResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Tier     int    `json:"tier"`
	Active   bool   `json:"active"`
}

// --- Interface ---

// PolicyService is the admin surface of the action-policy store and the
// approver registry. The engine never mutates these.
type PolicyService interface {
	CreatePolicy(ctx context.Context, actorID string, req CreatePolicyRequest) (*PolicyResponse, error)
	UpdatePolicy(ctx context.Context, id, actorID string, req UpdatePolicyRequest) (*PolicyResponse, error)
	ListPolicies(ctx context.Context, page, limit int) ([]PolicyResponse, int64, error)
	GetPolicy(ctx context.Context, id string) (*PolicyResponse, error)
	AddApprover(ctx context.Context, actionType, actorID string, req AddApproverRequest) (*ApproverResponse, error)
	ListApprovers(ctx context.Context, actionType string) ([]ApproverResponse, error)
	RemoveApprover(ctx context.Context, id string) error
}

type policyService struct {
	txManager    repository.TransactionManager
	policyRepo   repository.PolicyRepository
	approverRepo repository.ApproverRepository
	userRepo     repository.UserRepository
	auditRepo    repository.AuditRepository
}

func NewPolicyService(
	txManager repository.TransactionManager,
	policyRepo repository.PolicyRepository,
	approverRepo repository.ApproverRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
) PolicyService {
	return &policyService{
		txManager:    txManager,
		policyRepo:   policyRepo,
		approverRepo: approverRepo,
		userRepo:     userRepo,
		auditRepo:    auditRepo,
	}
}

// --- Implementation ---

func (s *policyService) CreatePolicy(ctx context.Context, actorID string, req CreatePolicyRequest) (*PolicyResponse, error) {
	if req.Strategy == model.StrategyCustomMinimum && req.MinApprovers < 1 {
		return nil, &InvalidStrategyError{Reason: "CUSTOM_MINIMUM requires min_approvers >= 1"}
	}
	if req.Strategy == model.StrategyHierarchical && req.EscalationRole == "" {
		return nil, &InvalidStrategyError{Reason: "HIERARCHICAL_ESCALATION requires an escalation_role"}
	}

	roles, _ := json.Marshal(req.AutoApprovalRoles)
	policy := &model.ActionPolicy{
		ActionType:        req.ActionType,
		Strategy:          req.Strategy,
		MinApprovers:      req.MinApprovers,
		AutoApprovalRoles: string(roles),
		EscalationRole:    req.EscalationRole,
		DeadlineHours:     req.DeadlineHours,
		Active:            true,
	}
	if policy.MinApprovers < 1 {
		policy.MinApprovers = 1
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.policyRepo.Create(txCtx, policy); createErr != nil {
			return fmt.Errorf("failed to create action policy: %w", createErr)
		}
		return s.auditPolicyChange(txCtx, actorID, model.ActionCreatePolicy, policy)
	})
	if err != nil {
		return nil, err
	}

	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *policyService) UpdatePolicy(ctx context.Context, id, actorID string, req UpdatePolicyRequest) (*PolicyResponse, error) {
	policyID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPolicyNotFound
	}

	policy, err := s.policyRepo.FindByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}

	if req.Strategy != "" {
		policy.Strategy = req.Strategy
	}
	if req.MinApprovers != nil {
		policy.MinApprovers = *req.MinApprovers
	}
	if req.AutoApprovalRoles != nil {
		roles, _ := json.Marshal(req.AutoApprovalRoles)
		policy.AutoApprovalRoles = string(roles)
	}
	if req.EscalationRole != nil {
		policy.EscalationRole = *req.EscalationRole
	}
	if req.DeadlineHours != nil {
		policy.DeadlineHours = *req.DeadlineHours
	}
	if req.Active != nil {
		policy.Active = *req.Active
	}

	if policy.Strategy == model.StrategyCustomMinimum && policy.MinApprovers < 1 {
		return nil, &InvalidStrategyError{Reason: "CUSTOM_MINIMUM requires min_approvers >= 1"}
	}
	if policy.Strategy == model.StrategyHierarchical && policy.EscalationRole == "" {
		return nil, &InvalidStrategyError{Reason: "HIERARCHICAL_ESCALATION requires an escalation_role"}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if updateErr := s.policyRepo.Update(txCtx, policy); updateErr != nil {
			return fmt.Errorf("failed to update action policy: %w", updateErr)
		}
		return s.auditPolicyChange(txCtx, actorID, model.ActionUpdatePolicy, policy)
	})
	if err != nil {
		return nil, err
	}

	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *policyService) ListPolicies(ctx context.Context, page, limit int) ([]PolicyResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	policies, total, err := s.policyRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch policies: %w", err)
	}

	result := make([]PolicyResponse, 0, len(policies))
	for i := range policies {
		result = append(result, toPolicyResponse(&policies[i]))
	}
	return result, total, nil
}

func (s *policyService) GetPolicy(ctx context.Context, id string) (*PolicyResponse, error) {
	policyID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrPolicyNotFound
	}
	policy, err := s.policyRepo.FindByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *policyService) AddApprover(ctx context.Context, actionType, actorID string, req AddApproverRequest) (*ApproverResponse, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("approver user not found: %w", err)
	}
	if _, err := s.policyRepo.FindByActionType(ctx, actionType); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}

	cfg := &model.ApproverConfig{
		ActionType: actionType,
		UserID:     userID,
		Tier:       req.Tier,
		Active:     true,
	}
	if cfg.Tier < 1 {
		cfg.Tier = 1
	}
	if err := s.approverRepo.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to add approver: %w", err)
	}

	return &ApproverResponse{
		ID:       cfg.ID.String(),
		UserID:   cfg.UserID.String(),
		Username: user.Username,
		Tier:     cfg.Tier,
		Active:   cfg.Active,
	}, nil
}

func (s *policyService) ListApprovers(ctx context.Context, actionType string) ([]ApproverResponse, error) {
	configs, err := s.approverRepo.ListByActionType(ctx, actionType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch approvers: %w", err)
	}

	result := make([]ApproverResponse, 0, len(configs))
	for _, cfg := range configs {
		resp := ApproverResponse{
			ID:     cfg.ID.String(),
			UserID: cfg.UserID.String(),
			Tier:   cfg.Tier,
			Active: cfg.Active,
		}
		if cfg.User != nil {
			resp.Username = cfg.User.Username
		}
		result = append(result, resp)
	}
	return result, nil
}

func (s *policyService) RemoveApprover(ctx context.Context, id string) error {
	cfgID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid approver config id: %w", err)
	}
	return s.approverRepo.Deactivate(ctx, cfgID)
}

// --- Helpers ---

func (s *policyService) auditPolicyChange(ctx context.Context, actorID, action string, policy *model.ActionPolicy) error {
	var userID *uuid.UUID
	if parsed, err := uuid.Parse(actorID); err == nil {
		userID = &parsed
	}

	details, _ := json.Marshal(map[string]interface{}{
		"action_type": policy.ActionType,
		"strategy":    policy.Strategy,
		"active":      policy.Active,
	})
	audit := &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   policy.ID.String(),
		EntityName: policy.ActionType,
		Details:    string(details),
	}
	if err := s.auditRepo.Create(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toPolicyResponse(p *model.ActionPolicy) PolicyResponse {
	return PolicyResponse{
		ID:                p.ID.String(),
		ActionType:        p.ActionType,
		Strategy:          p.Strategy,
		MinApprovers:      p.MinApprovers,
		AutoApprovalRoles: parseRoleList(p.AutoApprovalRoles),
		EscalationRole:    p.EscalationRole,
		DeadlineHours:     p.DeadlineHours,
		Active:            p.Active,
		CreatedAt:         p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
