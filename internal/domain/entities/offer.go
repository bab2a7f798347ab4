package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// OfferMode selects which side of the ledger a call moves value on.
type OfferMode string

const (
	OfferModeCharge OfferMode = "charge"
	OfferModeReward OfferMode = "reward"
)

// OfferStatus controls catalog visibility and whether the proxy will serve
// a priced call against the offer.
type OfferStatus string

const (
	OfferStatusActive   OfferStatus = "active"
	OfferStatusPaused   OfferStatus = "paused"
	OfferStatusArchived OfferStatus = "archived"
)

// OfferHealth is the per-offer circuit-breaker signal that feeds
// catalog filtering. It never short-circuits the proxy path itself.
type OfferHealth string

const (
	OfferHealthHealthy   OfferHealth = "healthy"
	OfferHealthDegraded  OfferHealth = "degraded"
	OfferHealthUnhealthy OfferHealth = "unhealthy"
)

// InputParamSpec describes one entry of an offer's optional user-supplied
// input schema, stored as a JSON array on the offer row.
type InputParamSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Pattern  string `json:"pattern,omitempty"`
}

// Offer is the durable, catalog-store record of a priced endpoint.
// It is immutable once created except for Status and the health/circuit
// counters.
type Offer struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	Slug        string      `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	UpstreamURL string      `json:"upstreamUrl" gorm:"column:upstream_url;not null"`
	Method      string      `json:"method" gorm:"not null;default:POST"`
	Price       string      `json:"price" gorm:"type:decimal(36,0);not null"` // smallest unit, charge mode
	Mode        OfferMode   `json:"mode" gorm:"not null"`
	Status      OfferStatus `json:"status" gorm:"not null;default:active"`

	PayoutRecipient string `json:"payoutRecipient" gorm:"column:payout_recipient"`
	PaymentToken    string `json:"paymentToken" gorm:"column:payment_token"` // mint/asset address, empty = native

	// Reward-mode-only fields; non-null together per the data-model invariant.
	RewardAmount     null.String `json:"rewardAmount,omitempty" gorm:"column:reward_amount;type:decimal(36,0)"`
	FundedWallet     null.String `json:"fundedWallet,omitempty" gorm:"column:funded_wallet"`
	MaxClaimsPerUser null.Int    `json:"maxClaimsPerUser,omitempty" gorm:"column:max_claims_per_user"`

	InputSchema []InputParamSpec `json:"inputSchema,omitempty" gorm:"type:jsonb;serializer:json"`

	CreatorID uuid.UUID `json:"creatorId" gorm:"type:uuid;column:creator_id"`

	RunCount int64 `json:"runCount" gorm:"column:run_count;default:0"`

	// Circuit breaker counters; updated on every dispatch attempt.
	HealthSuccessCount int64       `json:"-" gorm:"column:health_success_count;default:0"`
	HealthFailureCount int64       `json:"-" gorm:"column:health_failure_count;default:0"`
	Health             OfferHealth `json:"health" gorm:"column:health;default:healthy"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

func (Offer) TableName() string { return "offers" }

// IsReward reports whether the offer pays the caller instead of charging them.
func (o *Offer) IsReward() bool { return o.Mode == OfferModeReward }

// Active reports whether the proxy may serve a call against this offer.
func (o *Offer) Active() bool { return o.Status == OfferStatusActive }
