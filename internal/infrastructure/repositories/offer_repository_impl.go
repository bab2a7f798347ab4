package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	domainRepos "blinkgate.backend/internal/domain/repositories"
)

// OfferRepositoryImpl implements OfferRepository using GORM.
type OfferRepositoryImpl struct {
	db *gorm.DB
}

// NewOfferRepository creates a new OfferRepository.
func NewOfferRepository(db *gorm.DB) domainRepos.OfferRepository {
	return &OfferRepositoryImpl{db: db}
}

func (r *OfferRepositoryImpl) Create(ctx context.Context, offer *entities.Offer) error {
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(offer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *OfferRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.Offer, error) {
	var offer entities.Offer
	if err := GetDB(ctx, r.db).WithContext(ctx).First(&offer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &offer, nil
}

func (r *OfferRepositoryImpl) GetBySlug(ctx context.Context, slug string) (*entities.Offer, error) {
	var offer entities.Offer
	if err := GetDB(ctx, r.db).WithContext(ctx).First(&offer, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &offer, nil
}

func (r *OfferRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*entities.Offer, int64, error) {
	var offers []*entities.Offer
	var count int64

	db := GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Offer{})
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at desc").Limit(limit).Offset(offset).Find(&offers).Error; err != nil {
		return nil, 0, err
	}
	return offers, count, nil
}

func (r *OfferRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.OfferStatus) error {
	tx := GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Offer{}).Where("id = ?", id).Update("status", status)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *OfferRepositoryImpl) IncrementRunCount(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).WithContext(ctx).Model(&entities.Offer{}).
		Where("id = ?", id).
		Update("run_count", gorm.Expr("run_count + 1")).Error
}

// RecordDispatchOutcome updates the circuit-breaker counters and derives
// the offer's health signal. It never blocks the proxy path; the caller
// treats failures here as log-only.
func (r *OfferRepositoryImpl) RecordDispatchOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	db := GetDB(ctx, r.db).WithContext(ctx)

	column := "health_failure_count"
	if success {
		column = "health_success_count"
	}
	if err := db.Model(&entities.Offer{}).Where("id = ?", id).
		Update(column, gorm.Expr(column+" + 1")).Error; err != nil {
		return err
	}

	var offer entities.Offer
	if err := db.Select("health_success_count", "health_failure_count").First(&offer, "id = ?", id).Error; err != nil {
		return err
	}

	health := deriveHealth(offer.HealthSuccessCount, offer.HealthFailureCount)
	return db.Model(&entities.Offer{}).Where("id = ?", id).Update("health", health).Error
}

// deriveHealth applies a simple ratio threshold over the cumulative
// failure/success counters: >50% failures is unhealthy, >10% is degraded.
func deriveHealth(success, failure int64) entities.OfferHealth {
	total := success + failure
	if total == 0 {
		return entities.OfferHealthHealthy
	}
	ratio := float64(failure) / float64(total)
	switch {
	case ratio > 0.5:
		return entities.OfferHealthUnhealthy
	case ratio > 0.1:
		return entities.OfferHealthDegraded
	default:
		return entities.OfferHealthHealthy
	}
}
