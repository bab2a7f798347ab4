package entities

import (
	"time"

	"github.com/google/uuid"
)

// RewardClaim records one successful reward disbursement. The
// (OfferID, UserWallet, Reference) triple is unique; the count of rows for
// (OfferID, UserWallet) enforces the offer's max_claims_per_user.
type RewardClaim struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	OfferID    uuid.UUID `json:"offerId" gorm:"type:uuid;column:offer_id;not null;uniqueIndex:idx_claims_unique"`
	UserWallet string    `json:"userWallet" gorm:"column:user_wallet;not null;uniqueIndex:idx_claims_unique"`
	Reference  string    `json:"reference" gorm:"not null;uniqueIndex:idx_claims_unique"`
	Signature  string    `json:"signature"`
	Amount     string    `json:"amount" gorm:"type:decimal(36,0)"`

	CreatedAt time.Time `json:"createdAt"`
}

func (RewardClaim) TableName() string { return "reward_claims" }
