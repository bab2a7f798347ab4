package repositories

import (
	"context"

	"github.com/google/uuid"
	"blinkgate.backend/internal/domain/entities"
)

// RefundRepository persists refund attempts and the creator-debt ledger.
type RefundRepository interface {
	Create(ctx context.Context, refund *entities.Refund) error
	GetByRunID(ctx context.Context, runID uuid.UUID) (*entities.Refund, error)
	MarkIssued(ctx context.Context, id uuid.UUID, signature string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// DebtRepository persists the creator-debt ledger rows produced when a
// refund is issued.
type DebtRepository interface {
	Create(ctx context.Context, debt *entities.CreatorDebt) error
	ListByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]*entities.CreatorDebt, int64, error)
}
