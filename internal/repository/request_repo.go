package repository

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows List queries.
type RequestFilter struct {
	Status     string
	ActionType string
	Page       int
	Limit      int
}

// RequestRepository owns ApprovalRequest and ApproverDecision rows — the only
// structures with concurrent writers. Every mutation that races another
// caller is a conditional update checked through RowsAffected.
type RequestRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest, slots []model.ApproverDecision) error
	NextCode(ctx context.Context) (string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]model.ApprovalRequest, int64, error)
	FindActiveDuplicate(ctx context.Context, requesterID uuid.UUID, actionType, fingerprint string) (*model.ApprovalRequest, error)

	// ClaimDuplicateKey serializes concurrent submissions of the same
	// (requester, action type, fingerprint) for the rest of the enclosing
	// transaction, then reports any active duplicate that already exists.
	ClaimDuplicateKey(ctx context.Context, requesterID uuid.UUID, actionType, fingerprint string) (*model.ApprovalRequest, error)

	// UpdateStatusIf is the terminal-transition compare-and-swap: it moves the
	// request from expected to next and reports whether this caller won.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next string, actorID *uuid.UUID, at time.Time) (bool, error)
	SetExecutionResult(ctx context.Context, id uuid.UUID, status, execErr string, at time.Time) error

	FindSlotForDecider(ctx context.Context, requestID, deciderID uuid.UUID) (*model.ApproverDecision, error)
	FindSlotForApprover(ctx context.Context, requestID, approverID uuid.UUID) (*model.ApproverDecision, error)
	MarkDecided(ctx context.Context, slotID uuid.UUID, approved bool, comment string, decidedBy uuid.UUID, at time.Time) (bool, error)
	CountDecided(ctx context.Context, requestID uuid.UUID) (approved int, rejected int, err error)
	CountSlots(ctx context.Context, requestID uuid.UUID) (int, error)

	SetSlotDelegate(ctx context.Context, slotID, delegateID uuid.UUID) (bool, error)
	UpsertDelegation(ctx context.Context, rec *model.DelegationRecord) error

	ListPastDeadline(ctx context.Context, now time.Time, limit int) ([]model.ApprovalRequest, error)
	ListApproachingDeadline(ctx context.Context, now time.Time, window time.Duration, limit int) ([]model.ApprovalRequest, error)
	MarkDeadlineWarned(ctx context.Context, id uuid.UUID) error
	ApplyEscalation(ctx context.Context, id uuid.UUID, fromLevel int, newDeadline time.Time) (bool, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.ApprovalRequest, slots []model.ApproverDecision) error {
	db := GetDB(ctx, r.db)
	if err := db.Create(req).Error; err != nil {
		return err
	}
	for i := range slots {
		slots[i].RequestID = req.ID
	}
	if len(slots) > 0 {
		if err := db.Create(&slots).Error; err != nil {
			return err
		}
	}
	return nil
}

// NextCode generates a sequential request code for the current day,
// serialized through an advisory lock so concurrent submissions cannot
// produce duplicates.
func (r *requestRepository) NextCode(ctx context.Context) (string, error) {
	db := GetDB(ctx, r.db)
	today := time.Now().Format("20060102")
	prefix := "APR-" + today + "-"

	db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix)

	var count int64
	if err := db.Model(&model.ApprovalRequest{}).
		Where("code LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByIDForUpdate locks the request row for the duration of the enclosing
// transaction, serializing concurrent decision writes on the same request.
func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Decisions", func(db *gorm.DB) *gorm.DB { return db.Order("tier ASC, created_at ASC") }).
		Preload("Decisions.Approver").
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.ApprovalRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ActionType != "" {
		query = query.Where("action_type = ?", filter.ActionType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	fetchQuery := db.Preload("Requester")
	if filter.Status != "" {
		fetchQuery = fetchQuery.Where("status = ?", filter.Status)
	}
	if filter.ActionType != "" {
		fetchQuery = fetchQuery.Where("action_type = ?", filter.ActionType)
	}
	if err := fetchQuery.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// FindActiveDuplicate matches a PENDING request, or an APPROVED one whose
// action has not executed yet, with the same requester/type/fingerprint.
func (r *requestRepository) FindActiveDuplicate(ctx context.Context, requesterID uuid.UUID, actionType, fingerprint string) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Where("requester_id = ? AND action_type = ? AND fingerprint = ?", requesterID, actionType, fingerprint).
		Where("status = ? OR (status = ? AND execution_status <> ?)",
			model.StatusPending, model.StatusApproved, model.ExecutionDone).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ClaimDuplicateKey takes an advisory lock on the duplicate key before
// re-reading, so two transactions submitting the same payload cannot both
// pass the check: the second waits on the first's commit and then sees its
// row. The lock releases with the transaction.
func (r *requestRepository) ClaimDuplicateKey(ctx context.Context, requesterID uuid.UUID, actionType, fingerprint string) (*model.ApprovalRequest, error) {
	key := fmt.Sprintf("apr-dup:%s:%s:%s", requesterID, actionType, fingerprint)
	if err := GetDB(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return nil, err
	}
	return r.FindActiveDuplicate(ctx, requesterID, actionType, fingerprint)
}

func (r *requestRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next string, actorID *uuid.UUID, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       next,
		"processed_at": at,
	}
	if actorID != nil {
		updates["processed_by"] = *actorID
	}
	if next == model.StatusApproved {
		updates["execution_status"] = model.ExecutionPending
	}

	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *requestRepository) SetExecutionResult(ctx context.Context, id uuid.UUID, status, execErr string, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"execution_status": status,
			"execution_error":  execErr,
			"executed_at":      at,
		}).Error
}

// FindSlotForDecider resolves the slot the given identity may currently
// decide: their own non-delegated slot, or a slot delegated to them.
func (r *requestRepository) FindSlotForDecider(ctx context.Context, requestID, deciderID uuid.UUID) (*model.ApproverDecision, error) {
	var slot model.ApproverDecision
	err := GetDB(ctx, r.db).
		Where("request_id = ?", requestID).
		Where("(approver_id = ? AND delegate_id IS NULL) OR delegate_id = ?", deciderID, deciderID).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *requestRepository) FindSlotForApprover(ctx context.Context, requestID, approverID uuid.UUID) (*model.ApproverDecision, error) {
	var slot model.ApproverDecision
	err := GetDB(ctx, r.db).
		Where("request_id = ? AND approver_id = ?", requestID, approverID).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// MarkDecided writes the decision only if the slot is still undecided.
// A false return means another write got there first.
func (r *requestRepository) MarkDecided(ctx context.Context, slotID uuid.UUID, approved bool, comment string, decidedBy uuid.UUID, at time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ApproverDecision{}).
		Where("id = ? AND approved IS NULL", slotID).
		Updates(map[string]interface{}{
			"approved":   approved,
			"comment":    comment,
			"decided_by": decidedBy,
			"decided_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *requestRepository) CountDecided(ctx context.Context, requestID uuid.UUID) (int, int, error) {
	type row struct {
		Approved *bool
		Total    int
	}
	var rows []row
	err := GetDB(ctx, r.db).Model(&model.ApproverDecision{}).
		Select("approved, count(*) as total").
		Where("request_id = ? AND approved IS NOT NULL", requestID).
		Group("approved").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}

	var approved, rejected int
	for _, r := range rows {
		if r.Approved != nil && *r.Approved {
			approved = r.Total
		} else {
			rejected = r.Total
		}
	}
	return approved, rejected, nil
}

func (r *requestRepository) CountSlots(ctx context.Context, requestID uuid.UUID) (int, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.ApproverDecision{}).
		Where("request_id = ?", requestID).
		Count(&total).Error
	return int(total), err
}

func (r *requestRepository) SetSlotDelegate(ctx context.Context, slotID, delegateID uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ApproverDecision{}).
		Where("id = ? AND approved IS NULL", slotID).
		Update("delegate_id", delegateID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertDelegation keeps one DelegationRecord per slot; re-delegation
// replaces the target and reason in place.
func (r *requestRepository) UpsertDelegation(ctx context.Context, rec *model.DelegationRecord) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "decision_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"to_user_id", "reason", "updated_at"}),
	}).Create(rec).Error
}

func (r *requestRepository) ListPastDeadline(ctx context.Context, now time.Time, limit int) ([]model.ApprovalRequest, error) {
	var requests []model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", model.StatusPending, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) ListApproachingDeadline(ctx context.Context, now time.Time, window time.Duration, limit int) ([]model.ApprovalRequest, error) {
	var requests []model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Where("status = ? AND deadline_warned = ? AND deadline IS NOT NULL", model.StatusPending, false).
		Where("deadline >= ? AND deadline < ?", now, now.Add(window)).
		Order("deadline ASC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) MarkDeadlineWarned(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ?", id).
		Update("deadline_warned", true).Error
}

// ApplyEscalation bumps the escalation level and extends the deadline, but
// only while the request is still PENDING at the level the scanner saw —
// a decision or a concurrent sweep racing this write makes it a no-op.
func (r *requestRepository) ApplyEscalation(ctx context.Context, id uuid.UUID, fromLevel int, newDeadline time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ? AND escalation_level = ?", id, model.StatusPending, fromLevel).
		Updates(map[string]interface{}{
			"escalation_level": fromLevel + 1,
			"deadline":         newDeadline,
			"deadline_warned":  false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
