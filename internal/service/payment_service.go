package service

import (
	"context"

	"backend/internal/repository"
)

type PaymentResponse struct {
	ID            string `json:"id"`
	PaymentNo     string `json:"payment_no"`
	RequestID     string `json:"request_id"`
	BeneficiaryID string `json:"beneficiary_id"`
	BenefitType   string `json:"benefit_type"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	ReleasedAt    string `json:"released_at,omitempty"`
	Note          string `json:"note,omitempty"`
}

// PaymentService is a read-only view over payments the executor released.
type PaymentService interface {
	ListPayments(ctx context.Context, page, limit int) ([]PaymentResponse, int64, error)
}

type paymentService struct {
	repo repository.PaymentRepository
}

func NewPaymentService(repo repository.PaymentRepository) PaymentService {
	return &paymentService{repo: repo}
}

func (s *paymentService) ListPayments(ctx context.Context, page, limit int) ([]PaymentResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	payments, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp := PaymentResponse{
			ID:            p.ID.String(),
			PaymentNo:     p.PaymentNo,
			RequestID:     p.RequestID.String(),
			BeneficiaryID: p.BeneficiaryID.String(),
			BenefitType:   p.BenefitType,
			Amount:        p.Amount.StringFixed(4),
			Status:        p.Status,
			Note:          p.Note,
		}
		if p.ReleasedAt != nil {
			resp.ReleasedAt = p.ReleasedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		res = append(res, resp)
	}
	return res, total, nil
}
