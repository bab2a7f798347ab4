package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/internal/domain/repositories"
	"blinkgate.backend/internal/infrastructure/cache"
	pkgjwt "blinkgate.backend/pkg/jwt"
	"blinkgate.backend/pkg/walletsig"
)

// RewardService implements challenge issuance/verification and the
// disbursement half of reward payout, as opposed to a charge mode's
// refund which refund_usecase.go owns.
type RewardService struct {
	challenges         *cache.ChallengeStore
	claims             repositories.ClaimRepository
	disburser          Disburser
	fundedWalletSecret string
	receiptSigner      *pkgjwt.ClaimSigner
}

// NewRewardService constructs a RewardService. disburser and
// fundedWalletSecret are the single platform-funded keypair every reward
// offer's FundedWallet is checked against before a payout is attempted.
// receiptSigner mints the short-lived claim-receipt token returned
// alongside a successful disbursement; it may be nil, in which case Claim
// skips issuing a receipt.
func NewRewardService(challenges *cache.ChallengeStore, claims repositories.ClaimRepository, disburser Disburser, fundedWalletSecret string, receiptSigner *pkgjwt.ClaimSigner) *RewardService {
	return &RewardService{
		challenges:         challenges,
		claims:             claims,
		disburser:          disburser,
		fundedWalletSecret: fundedWalletSecret,
		receiptSigner:      receiptSigner,
	}
}

// IssueChallenge mints a nonce-keyed challenge for a wallet that wants to
// claim a reward offer.
func (s *RewardService) IssueChallenge(ctx context.Context, offer *entities.Offer, wallet string) (*entities.Challenge, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("generating challenge nonce: %w", err)
	}

	challenge := &entities.Challenge{
		Wallet:    wallet,
		OfferID:   offer.ID.String(),
		OfferSlug: offer.Slug,
		Nonce:     nonce,
		Timestamp: time.Now().UTC(),
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// ClaimInput is the caller-supplied portion of a reward call: the signed
// challenge plus whatever reference the orchestrator assigned the run.
type ClaimInput struct {
	Wallet             string
	Nonce              string
	Signature          string
	Reference          string
	UpstreamDynamicAmount string // set when the upstream validation call returned its own reward amount
}

// ClaimResult carries what the orchestrator needs to finish the run: the
// broadcast signature to store, the amount actually disbursed, and a
// signed JWT receipt the caller can present later without re-querying the
// claim store. Receipt is empty when the service was built without a
// signer.
type ClaimResult struct {
	Signature string
	Amount    string
	Receipt   string
}

// Claim verifies the signed challenge, enforces replay and per-wallet
// claim-limit checks, and broadcasts the payout. It does not wait for
// on-chain confirmation: the reward leg is fire-and-forget, unlike the
// refund leg.
func (s *RewardService) Claim(ctx context.Context, offer *entities.Offer, in ClaimInput) (*ClaimResult, error) {
	challenge, err := s.challenges.Get(ctx, in.Nonce)
	if err != nil {
		return nil, err
	}
	if challenge.Expired(time.Now()) {
		return nil, domainerrors.ErrChallengeInvalid
	}
	if !strings.EqualFold(challenge.Wallet, in.Wallet) || challenge.OfferSlug != offer.Slug {
		return nil, domainerrors.ErrChallengeInvalid
	}

	if err := verifyChallengeSignature(challenge, in.Wallet, in.Signature); err != nil {
		return nil, err
	}

	if err := s.challenges.MarkUsed(ctx, in.Nonce); err != nil {
		return nil, err
	}

	if offer.MaxClaimsPerUser.Valid {
		count, err := s.claims.CountByOfferAndWallet(ctx, offer.ID, in.Wallet)
		if err != nil {
			return nil, err
		}
		if count >= int64(offer.MaxClaimsPerUser.Int) {
			return nil, domainerrors.ErrClaimLimitExceeded
		}
	}

	amount := offer.RewardAmount.String
	if in.UpstreamDynamicAmount != "" {
		amount = in.UpstreamDynamicAmount
	}
	if amount == "" {
		return nil, domainerrors.NewError("offer carries no reward amount", domainerrors.ErrInvalidInput)
	}

	if offer.FundedWallet.Valid {
		fundedAddress, err := s.disburser.Address(s.fundedWalletSecret)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(fundedAddress, offer.FundedWallet.String) {
			return nil, domainerrors.InternalError(fmt.Errorf("configured funded wallet secret does not match offer funded_wallet"))
		}
	}

	memo := "reward: " + offer.Slug
	txSig, err := s.disburser.Transfer(ctx, s.fundedWalletSecret, in.Wallet, offer.PaymentToken, amount, memo)
	if err != nil {
		return nil, fmt.Errorf("%w: broadcasting reward transfer: %s", domainerrors.ErrUpstreamFailed, err.Error())
	}

	claim := &entities.RewardClaim{
		ID:         uuid.New(),
		OfferID:    offer.ID,
		UserWallet: in.Wallet,
		Reference:  in.Reference,
		Signature:  txSig,
		Amount:     amount,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, err
	}

	result := &ClaimResult{Signature: txSig, Amount: amount}
	if s.receiptSigner != nil {
		receipt, err := s.receiptSigner.IssueReceipt(offer.Slug, in.Reference, in.Wallet, txSig, amount)
		if err != nil {
			return nil, fmt.Errorf("issuing claim receipt: %w", err)
		}
		result.Receipt = receipt
	}

	return result, nil
}

// verifyChallengeSignature checks the wallet-signed canonical challenge
// string, dispatching to the EVM or Solana verifier by address shape.
func verifyChallengeSignature(challenge *entities.Challenge, wallet, signature string) error {
	message := challenge.CanonicalString()
	if strings.HasPrefix(wallet, "0x") {
		return walletsig.VerifyEVM(wallet, message, signature)
	}
	return walletsig.VerifySolana(wallet, message, signature)
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
