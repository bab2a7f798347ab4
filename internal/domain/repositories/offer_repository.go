package repositories

import (
	"context"

	"github.com/google/uuid"
	"blinkgate.backend/internal/domain/entities"
)

// OfferRepository persists the catalog store.
type OfferRepository interface {
	Create(ctx context.Context, offer *entities.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Offer, error)
	GetBySlug(ctx context.Context, slug string) (*entities.Offer, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Offer, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.OfferStatus) error
	IncrementRunCount(ctx context.Context, id uuid.UUID) error
	RecordDispatchOutcome(ctx context.Context, id uuid.UUID, success bool) error
}
