package repository

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.BenefitPayment) error
	NextPaymentNo(ctx context.Context) (string, error)
	List(ctx context.Context, page, limit int) ([]model.BenefitPayment, int64, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.BenefitPayment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

// NextPaymentNo generates a daily sequential payment number, serialized
// through an advisory lock against concurrent executors.
func (r *paymentRepository) NextPaymentNo(ctx context.Context) (string, error) {
	db := GetDB(ctx, r.db)
	today := time.Now().Format("20060102")
	prefix := "PAG-" + today + "-"

	db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix)

	var count int64
	if err := db.Model(&model.BenefitPayment{}).
		Where("payment_no LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

func (r *paymentRepository) List(ctx context.Context, page, limit int) ([]model.BenefitPayment, int64, error) {
	var payments []model.BenefitPayment
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.BenefitPayment{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&payments).Error; err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}
