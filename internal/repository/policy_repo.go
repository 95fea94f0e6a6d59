package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PolicyRepository is the read side of the action-policy store plus the
// admin CRUD. The engine itself only calls the Find methods.
type PolicyRepository interface {
	Create(ctx context.Context, policy *model.ActionPolicy) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ActionPolicy, error)
	FindByActionType(ctx context.Context, actionType string) (*model.ActionPolicy, error)
	List(ctx context.Context, page, limit int) ([]model.ActionPolicy, int64, error)
	Update(ctx context.Context, policy *model.ActionPolicy) error
}

type policyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) Create(ctx context.Context, policy *model.ActionPolicy) error {
	return GetDB(ctx, r.db).Create(policy).Error
}

func (r *policyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ActionPolicy, error) {
	var policy model.ActionPolicy
	if err := GetDB(ctx, r.db).First(&policy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) FindByActionType(ctx context.Context, actionType string) (*model.ActionPolicy, error) {
	var policy model.ActionPolicy
	if err := GetDB(ctx, r.db).First(&policy, "action_type = ?", actionType).Error; err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context, page, limit int) ([]model.ActionPolicy, int64, error) {
	var policies []model.ActionPolicy
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ActionPolicy{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("action_type ASC").Offset(offset).Limit(limit).Find(&policies).Error; err != nil {
		return nil, 0, err
	}

	return policies, total, nil
}

func (r *policyRepository) Update(ctx context.Context, policy *model.ActionPolicy) error {
	return GetDB(ctx, r.db).Save(policy).Error
}

// ApproverRepository resolves the ordered list of eligible approvers for an
// action type. Read-only from the engine's perspective during a workflow run.
type ApproverRepository interface {
	Create(ctx context.Context, cfg *model.ApproverConfig) error
	ListActiveByActionType(ctx context.Context, actionType string) ([]model.ApproverConfig, error)
	ListByActionType(ctx context.Context, actionType string) ([]model.ApproverConfig, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type approverRepository struct {
	db *gorm.DB
}

func NewApproverRepository(db *gorm.DB) ApproverRepository {
	return &approverRepository{db: db}
}

func (r *approverRepository) Create(ctx context.Context, cfg *model.ApproverConfig) error {
	return GetDB(ctx, r.db).Create(cfg).Error
}

func (r *approverRepository) ListActiveByActionType(ctx context.Context, actionType string) ([]model.ApproverConfig, error) {
	var configs []model.ApproverConfig
	err := GetDB(ctx, r.db).
		Preload("User").
		Where("action_type = ? AND active = ?", actionType, true).
		Order("tier ASC, created_at ASC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *approverRepository) ListByActionType(ctx context.Context, actionType string) ([]model.ApproverConfig, error) {
	var configs []model.ApproverConfig
	err := GetDB(ctx, r.db).
		Preload("User").
		Where("action_type = ?", actionType).
		Order("tier ASC, created_at ASC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *approverRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.ApproverConfig{}).
		Where("id = ?", id).
		Update("active", false).Error
}
