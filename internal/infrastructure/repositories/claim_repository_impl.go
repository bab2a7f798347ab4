package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	domainRepos "blinkgate.backend/internal/domain/repositories"
)

// ClaimRepositoryImpl implements ClaimRepository using GORM.
type ClaimRepositoryImpl struct {
	db *gorm.DB
}

// NewClaimRepository creates a new ClaimRepository.
func NewClaimRepository(db *gorm.DB) domainRepos.ClaimRepository {
	return &ClaimRepositoryImpl{db: db}
}

func (r *ClaimRepositoryImpl) Create(ctx context.Context, claim *entities.RewardClaim) error {
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(claim).Error; err != nil {
		if gorm.ErrDuplicatedKey == err {
			return domainerrors.ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *ClaimRepositoryImpl) CountByOfferAndWallet(ctx context.Context, offerID uuid.UUID, wallet string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).WithContext(ctx).Model(&entities.RewardClaim{}).
		Where("offer_id = ? AND user_wallet = ?", offerID, wallet).
		Count(&count).Error
	return count, err
}
