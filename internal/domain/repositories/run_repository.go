package repositories

import (
	"context"

	"blinkgate.backend/internal/domain/entities"
)

// RunRepository persists the per-payment state machine. Every method
// that crosses the run <-> offer boundary (CreateRun incrementing nothing,
// MarkExecuted incrementing the offer counter) is expected to be called
// from inside a UnitOfWork.Do transaction by the usecase layer.
type RunRepository interface {
	// CreateRun inserts a pending row with expires_at = now + RunExpiry.
	// Returns ErrDuplicateReference if the reference already exists.
	CreateRun(ctx context.Context, offerID string, reference string, metadata map[string]interface{}) (*entities.Run, error)

	// GetByReference returns the row. If it is pending and past expires_at,
	// it is atomically marked failed first and returned in that state.
	GetByReference(ctx context.Context, reference string) (*entities.Run, error)

	// GetBySignature is used for duplicate-signature detection.
	GetBySignature(ctx context.Context, signature string) (*entities.Run, error)

	// UpdateRunPaymentAtomic transitions pending -> paid under a row-level
	// lock. Fails with ErrInvalidInput-class error if status != pending, or
	// ErrDuplicateSignature if signature belongs to a different reference.
	UpdateRunPaymentAtomic(ctx context.Context, reference, signature, payer string) (*entities.Run, error)

	// MarkExecuted transitions paid -> executed, merges responseData into
	// metadata without clobbering input parameters, and must run alongside
	// an offer run-counter increment in the same transaction.
	MarkExecuted(ctx context.Context, reference string, durationMs int64, responseData map[string]interface{}) (*entities.Run, error)

	// MarkFailed transitions any status -> failed.
	MarkFailed(ctx context.Context, reference string) error

	// GetExpiredPending returns pending rows past expires_at, for the
	// background expiry sweep.
	GetExpiredPending(ctx context.Context, limit int) ([]*entities.Run, error)

	// ExpireRun marks one run failed as a result of TTL expiry (distinct
	// call from MarkFailed only to let callers log it distinctly).
	ExpireRun(ctx context.Context, id string) error
}
