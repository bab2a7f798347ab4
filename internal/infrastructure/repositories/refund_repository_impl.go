package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	domainRepos "blinkgate.backend/internal/domain/repositories"
)

// RefundRepositoryImpl implements RefundRepository using GORM.
type RefundRepositoryImpl struct {
	db *gorm.DB
}

// NewRefundRepository creates a new RefundRepository.
func NewRefundRepository(db *gorm.DB) domainRepos.RefundRepository {
	return &RefundRepositoryImpl{db: db}
}

func (r *RefundRepositoryImpl) Create(ctx context.Context, refund *entities.Refund) error {
	return GetDB(ctx, r.db).WithContext(ctx).Create(refund).Error
}

func (r *RefundRepositoryImpl) GetByRunID(ctx context.Context, runID uuid.UUID) (*entities.Refund, error) {
	var refund entities.Refund
	if err := GetDB(ctx, r.db).WithContext(ctx).First(&refund, "run_id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &refund, nil
}

func (r *RefundRepositoryImpl) MarkIssued(ctx context.Context, id uuid.UUID, signature string) error {
	now := time.Now()
	return GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Refund{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":    entities.RefundStatusIssued,
		"signature": signature,
		"issued_at": now,
	}).Error
}

func (r *RefundRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Refund{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         entities.RefundStatusFailed,
		"failure_reason": reason,
	}).Error
}

// DebtRepositoryImpl implements DebtRepository using GORM.
type DebtRepositoryImpl struct {
	db *gorm.DB
}

// NewDebtRepository creates a new DebtRepository.
func NewDebtRepository(db *gorm.DB) domainRepos.DebtRepository {
	return &DebtRepositoryImpl{db: db}
}

func (r *DebtRepositoryImpl) Create(ctx context.Context, debt *entities.CreatorDebt) error {
	return GetDB(ctx, r.db).WithContext(ctx).Create(debt).Error
}

func (r *DebtRepositoryImpl) ListByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]*entities.CreatorDebt, int64, error) {
	var debts []*entities.CreatorDebt
	var count int64

	db := GetDB(ctx, r.db).WithContext(ctx).Model(&entities.CreatorDebt{}).Where("creator_id = ?", creatorID)
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at desc").Limit(limit).Offset(offset).Find(&debts).Error; err != nil {
		return nil, 0, err
	}
	return debts, count, nil
}
