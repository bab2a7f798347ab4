package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// RunStatus is the per-payment state machine. Status advances
// monotonically pending -> paid -> executed, except that a failed row whose
// payment was independently verified may be reverted to paid for retry.
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusPaid     RunStatus = "paid"
	RunStatusExecuted RunStatus = "executed"
	RunStatusFailed   RunStatus = "failed"
)

// RunExpiry is how long a pending run is honored before a read marks it
// failed automatically (create_run: expires_at = now + 15m).
const RunExpiry = 15 * time.Minute

// Run is one execution attempt against an offer: it owns the payment state
// machine and the captured input/response metadata. ID is internal;
// Reference is the client-chosen opaque identifier runs are looked up by.
type Run struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	OfferID   uuid.UUID `json:"offerId" gorm:"type:uuid;column:offer_id;not null;index"`
	Reference string    `json:"reference" gorm:"uniqueIndex;not null"`

	// Signature is the chain-assigned settlement identifier; unique when set.
	// A partial unique index (signature IS NOT NULL) is created in the
	// migration so multiple pending rows can share a null signature.
	Signature null.String `json:"signature,omitempty" gorm:"uniqueIndex:idx_runs_signature,where:signature IS NOT NULL"`
	Payer     null.String `json:"payer,omitempty"`

	Status RunStatus `json:"status" gorm:"not null;default:pending;index"`

	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt" gorm:"column:expires_at"`
	PaidAt     *time.Time `json:"paidAt,omitempty" gorm:"column:paid_at"`
	ExecutedAt *time.Time `json:"executedAt,omitempty" gorm:"column:executed_at"`

	DurationMs int64 `json:"durationMs" gorm:"column:duration_ms"`

	// Metadata holds the input parameters captured at creation time, merged
	// (without clobbering) with response_data on mark_run_executed.
	Metadata map[string]interface{} `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (Run) TableName() string { return "runs" }

// Expired reports whether a pending run is past its TTL and due to be
// read-failed on the next get_run_by_reference call.
func (r *Run) Expired(now time.Time) bool {
	return r.Status == RunStatusPending && now.After(r.ExpiresAt)
}

// PaymentVerified reports whether a (signature, payer) pair has been
// recorded, regardless of current status — used by the orchestrator to
// decide whether a failed run is retryable or refund-eligible.
func (r *Run) PaymentVerified() bool {
	return r.Signature.Valid && r.Signature.String != ""
}
