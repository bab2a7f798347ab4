package entities

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus tracks a refund attempt.
type RefundStatus string

const (
	RefundStatusPending RefundStatus = "pending"
	RefundStatusIssued  RefundStatus = "issued"
	RefundStatusFailed  RefundStatus = "failed"
)

// Refund is a side-table keyed by run id (not an in-memory pointer from
// Run), breaking the run<->refund reference cycle per the design notes:
// the run is the owner, and lookups in the refund direction go through
// this table's RunID index.
type Refund struct {
	ID        uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	RunID     uuid.UUID    `json:"runId" gorm:"type:uuid;column:run_id;not null;index"`
	OfferID   uuid.UUID    `json:"offerId" gorm:"type:uuid;column:offer_id;not null"`
	Payer     string       `json:"payer"`
	Amount    string       `json:"amount" gorm:"type:decimal(36,0)"`
	Status    RefundStatus `json:"status" gorm:"not null;default:pending"`
	Signature string       `json:"signature,omitempty"`
	FailureReason string   `json:"failureReason,omitempty" gorm:"column:failure_reason"`

	CreatedAt time.Time  `json:"createdAt"`
	IssuedAt  *time.Time `json:"issuedAt,omitempty" gorm:"column:issued_at"`
}

func (Refund) TableName() string { return "refunds" }

// CreatorDebt links a refund back to the offer's creator once a refund has
// been issued, forming the platform's receivable ledger against that creator.
type CreatorDebt struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	CreatorID uuid.UUID `json:"creatorId" gorm:"type:uuid;column:creator_id;not null;index"`
	OfferID   uuid.UUID `json:"offerId" gorm:"type:uuid;column:offer_id;not null"`
	RefundID  uuid.UUID `json:"refundId" gorm:"type:uuid;column:refund_id;not null"`
	Amount    string    `json:"amount" gorm:"type:decimal(36,0)"`
	Settled   bool      `json:"settled" gorm:"default:false"`

	CreatedAt time.Time `json:"createdAt"`
}

func (CreatorDebt) TableName() string { return "creator_debts" }
