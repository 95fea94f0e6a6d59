package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// actionExecutor dispatches an approved request to its concrete side effect
// by action type. Action types without a side effect here are assumed to be
// executed by the operator out of band and succeed immediately.
type actionExecutor struct {
	txManager   repository.TransactionManager
	paymentRepo repository.PaymentRepository
	auditRepo   repository.AuditRepository
}

func NewActionExecutor(txManager repository.TransactionManager, paymentRepo repository.PaymentRepository, auditRepo repository.AuditRepository) Executor {
	return &actionExecutor{txManager: txManager, paymentRepo: paymentRepo, auditRepo: auditRepo}
}

func (e *actionExecutor) Execute(ctx context.Context, req *model.ApprovalRequest) error {
	switch req.ActionType {
	case model.ActionTypeReleasePayment:
		return e.releasePayment(ctx, req)
	default:
		return nil
	}
}

// releasePayment creates the BenefitPayment an approved RELEASE_PAYMENT
// request authorizes. Payment and audit row commit in one transaction.
func (e *actionExecutor) releasePayment(ctx context.Context, req *model.ApprovalRequest) error {
	var payload struct {
		BeneficiaryID string `json:"beneficiary_id"`
		BenefitType   string `json:"benefit_type"`
		Amount        string `json:"amount"`
		Note          string `json:"note"`
	}
	if err := json.Unmarshal([]byte(req.Payload), &payload); err != nil {
		return fmt.Errorf("invalid payment payload: %w", err)
	}

	beneficiaryID, err := uuid.Parse(payload.BeneficiaryID)
	if err != nil {
		return fmt.Errorf("invalid beneficiary_id: %w", err)
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return fmt.Errorf("invalid payment amount: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("payment amount must be positive, got %s", amount)
	}

	return e.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		paymentNo, err := e.paymentRepo.NextPaymentNo(txCtx)
		if err != nil {
			return fmt.Errorf("failed to generate payment number: %w", err)
		}

		now := time.Now()
		payment := model.BenefitPayment{
			PaymentNo:     paymentNo,
			RequestID:     req.ID,
			BeneficiaryID: beneficiaryID,
			BenefitType:   payload.BenefitType,
			Amount:        amount,
			Status:        model.PaymentReleased,
			ReleasedBy:    req.ProcessedBy,
			ReleasedAt:    &now,
			Note:          payload.Note,
		}
		if err := e.paymentRepo.Create(txCtx, &payment); err != nil {
			return fmt.Errorf("failed to create benefit payment: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"payment_no":   paymentNo,
			"amount":       amount.StringFixed(4),
			"request_code": req.Code,
			"benefit_type": payload.BenefitType,
		})
		audit := model.AuditLog{
			UserID:     req.ProcessedBy,
			Action:     model.ActionReleasePayment,
			EntityID:   payment.ID.String(),
			EntityName: paymentNo,
			Details:    string(details),
		}
		if err := e.auditRepo.Create(txCtx, &audit); err != nil {
			return fmt.Errorf("failed to write payment audit log: %w", err)
		}

		return nil
	})
}
