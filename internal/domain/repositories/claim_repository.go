package repositories

import (
	"context"

	"github.com/google/uuid"
	"blinkgate.backend/internal/domain/entities"
)

// ClaimRepository persists reward claims and answers the
// max_claims_per_user check.
type ClaimRepository interface {
	Create(ctx context.Context, claim *entities.RewardClaim) error
	CountByOfferAndWallet(ctx context.Context, offerID uuid.UUID, wallet string) (int64, error)
}
