package usecases

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/internal/domain/repositories"
	"blinkgate.backend/internal/infrastructure/cache"
)

// OfferService is the admin CRUD surface the catalog's data model needs
// underneath the proxy orchestrator: an Offer has to exist, in active status, before the
// orchestrator can serve a call against it.
type OfferService struct {
	offers repositories.OfferRepository
	cache  *cache.OfferCache
}

// NewOfferService constructs an OfferService.
func NewOfferService(offers repositories.OfferRepository, offerCache *cache.OfferCache) *OfferService {
	return &OfferService{offers: offers, cache: offerCache}
}

// CreateInput is the caller-supplied subset of an Offer's immutable fields.
type CreateInput struct {
	Slug             string
	Title            string
	Description      string
	UpstreamURL      string
	Method           string
	Price            string
	Mode             entities.OfferMode
	PayoutRecipient  string
	PaymentToken     string
	RewardAmount     string
	FundedWallet     string
	MaxClaimsPerUser int
	InputSchema      []entities.InputParamSpec
	CreatorID        uuid.UUID
}

// Create validates the reward-mode field pairing invariant and inserts a
// new active offer.
func (s *OfferService) Create(ctx context.Context, in CreateInput) (*entities.Offer, error) {
	if in.Slug == "" || in.UpstreamURL == "" {
		return nil, domainerrors.BadRequest("slug and upstreamUrl are required")
	}
	if in.Mode != entities.OfferModeCharge && in.Mode != entities.OfferModeReward {
		return nil, domainerrors.BadRequest("mode must be charge or reward")
	}
	if in.Mode == entities.OfferModeReward && (in.RewardAmount == "" || in.FundedWallet == "") {
		return nil, domainerrors.BadRequest("reward offers require rewardAmount and fundedWallet")
	}
	if in.Method == "" {
		in.Method = "POST"
	}

	offer := &entities.Offer{
		ID:               uuid.New(),
		Slug:             in.Slug,
		Title:            in.Title,
		Description:      in.Description,
		UpstreamURL:      in.UpstreamURL,
		Method:           in.Method,
		Price:            in.Price,
		Mode:             in.Mode,
		Status:           entities.OfferStatusActive,
		PayoutRecipient:  in.PayoutRecipient,
		PaymentToken:     in.PaymentToken,
		InputSchema:      in.InputSchema,
		CreatorID:        in.CreatorID,
		Health:           entities.OfferHealthHealthy,
	}
	if in.Mode == entities.OfferModeReward {
		offer.RewardAmount.SetValid(in.RewardAmount)
		offer.FundedWallet.SetValid(in.FundedWallet)
		if in.MaxClaimsPerUser > 0 {
			offer.MaxClaimsPerUser.SetValid(in.MaxClaimsPerUser)
		}
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// Get fetches one offer by slug, read-through the offer cache.
func (s *OfferService) Get(ctx context.Context, slug string) (*entities.Offer, error) {
	var offer entities.Offer
	err := s.cache.GetOrFetch(ctx, slug, &offer, func() (interface{}, error) {
		return s.offers.GetBySlug(ctx, slug)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("offer not found")
		}
		return nil, err
	}
	return &offer, nil
}

// List paginates the catalog.
func (s *OfferService) List(ctx context.Context, limit, offset int) ([]*entities.Offer, int64, error) {
	return s.offers.List(ctx, limit, offset)
}

// Health reports the circuit-breaker-derived health of one offer, the
// supplemented admin endpoint GET /api/v1/admin/offers/:slug/health.
func (s *OfferService) Health(ctx context.Context, slug string) (entities.OfferHealth, error) {
	offer, err := s.offers.GetBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	return offer.Health, nil
}

// SetStatus transitions an offer between active/paused/archived and
// invalidates the read-through cache so the next lookup observes it.
func (s *OfferService) SetStatus(ctx context.Context, slug string, status entities.OfferStatus) error {
	offer, err := s.offers.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if err := s.offers.UpdateStatus(ctx, offer.ID, status); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, slug)
}
