package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"blinkgate.backend/internal/domain/entities"
	"blinkgate.backend/internal/domain/repositories"
)

// RefundService: when a charge-mode run's payment verified
// but the upstream call failed, the payer is made whole and the loss is
// booked against the offer's creator. Unlike the reward leg's
// fire-and-forget broadcast, this leg waits for confirmation before the
// refund is marked issued.
type RefundService struct {
	refunds      repositories.RefundRepository
	debts        repositories.DebtRepository
	disburser    Disburser
	confirmer    TransactionConfirmer
	refundSecret string
	confirmRetries int
	confirmDelay time.Duration
}

// TransactionConfirmer polls a broadcast signature for confirmation. Both
// chain clients the factory manages satisfy a narrower shape than this;
// callers adapt GetTransaction into this signature at wiring time.
type TransactionConfirmer interface {
	Confirmed(ctx context.Context, signature string) (bool, error)
}

// NewRefundService constructs a RefundService. refundSecret is the
// platform refund wallet's secret, distinct from the reward-mode funded
// wallet.
func NewRefundService(refunds repositories.RefundRepository, debts repositories.DebtRepository, disburser Disburser, confirmer TransactionConfirmer, refundSecret string) *RefundService {
	return &RefundService{
		refunds:        refunds,
		debts:          debts,
		disburser:      disburser,
		confirmer:      confirmer,
		refundSecret:   refundSecret,
		confirmRetries: 10,
		confirmDelay:   2 * time.Second,
	}
}

// Issue creates a pending refund row, broadcasts a platform -> payer
// transfer of the full price in the offer's payment token, waits for
// confirmation, and on success books a CreatorDebt row against the
// offer's creator. On any failure the refund is marked failed for manual
// intervention rather than retried automatically.
func (s *RefundService) Issue(ctx context.Context, run *entities.Run, offer *entities.Offer) (*entities.Refund, error) {
	refund := &entities.Refund{
		ID:      uuid.New(),
		RunID:   run.ID,
		OfferID: offer.ID,
		Payer:   run.Payer.String,
		Amount:  offer.Price,
		Status:  entities.RefundStatusPending,
	}
	if err := s.refunds.Create(ctx, refund); err != nil {
		return nil, err
	}

	memo := "refund: " + offer.Slug + " ref " + run.Reference
	signature, err := s.disburser.Transfer(ctx, s.refundSecret, run.Payer.String, offer.PaymentToken, offer.Price, memo)
	if err != nil {
		s.markFailed(ctx, refund, fmt.Sprintf("broadcast failed: %s", err.Error()))
		return refund, err
	}

	if err := s.awaitConfirmation(ctx, signature); err != nil {
		s.markFailed(ctx, refund, fmt.Sprintf("confirmation failed: %s", err.Error()))
		return refund, err
	}

	if err := s.refunds.MarkIssued(ctx, refund.ID, signature); err != nil {
		return refund, err
	}
	refund.Status = entities.RefundStatusIssued
	refund.Signature = signature

	debt := &entities.CreatorDebt{
		ID:        uuid.New(),
		CreatorID: offer.CreatorID,
		OfferID:   offer.ID,
		RefundID:  refund.ID,
		Amount:    offer.Price,
	}
	if err := s.debts.Create(ctx, debt); err != nil {
		return refund, err
	}

	return refund, nil
}

func (s *RefundService) markFailed(ctx context.Context, refund *entities.Refund, reason string) {
	refund.Status = entities.RefundStatusFailed
	refund.FailureReason = reason
	_ = s.refunds.MarkFailed(ctx, refund.ID, reason)
}

// awaitConfirmation polls the confirmer with bounded retry, unlike the
// reward leg which never waits at all.
func (s *RefundService) awaitConfirmation(ctx context.Context, signature string) error {
	for attempt := 0; attempt < s.confirmRetries; attempt++ {
		confirmed, err := s.confirmer.Confirmed(ctx, signature)
		if err == nil && confirmed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.confirmDelay):
		}
	}
	return fmt.Errorf("refund transaction %s not confirmed after retry", signature)
}
