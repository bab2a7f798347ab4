package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/internal/domain/repositories"
	"blinkgate.backend/internal/infrastructure/cache"
	"blinkgate.backend/internal/infrastructure/dispatch"
	"blinkgate.backend/internal/infrastructure/ssrf"
	"blinkgate.backend/pkg/logger"
	"blinkgate.backend/pkg/walletsig"
)

// Mutex parameters for the per-payment lease: a bounded retry budget of
// roughly 1s at these defaults.
const (
	paymentMutexTTL        = 15 * time.Second
	paymentMutexMaxRetries = 5
	paymentMutexRetryDelay = 200 * time.Millisecond
)

// ProxyRequest carries everything POST /<slug> supplies, already pulled out
// of headers/query/body by the HTTP layer.
type ProxyRequest struct {
	Slug           string
	Body           map[string]interface{}
	Envelope       string // X-Payment
	TxHash         string // X-Payment-Tx
	IdempotencyKey string

	// Reward-mode-only fields, carried in Body by convention
	// (_challengeNonce/_challengeSignature) but broken out here once the
	// handler has parsed them.
	ChallengeNonce     string
	ChallengeSignature string
}

// ProxyResult is the fully formed response the HTTP handler serializes
// verbatim.
type ProxyResult struct {
	StatusCode int
	Body       map[string]interface{}
}

// ProxyOrchestrator is the single state machine every priced
// call passes through.
type ProxyOrchestrator struct {
	offers      repositories.OfferRepository
	offerCache  *cache.OfferCache
	runs        repositories.RunRepository
	mutex       *cache.MutexService
	idempotency *cache.IdempotencyCache
	rateLimiter *RateLimiter
	verifier    *Verifier
	ssrfGuard   *ssrf.Guard
	dispatcher  *dispatch.Dispatcher
	rewards     *RewardService
	refunds     *RefundService
	uow         repositories.UnitOfWork

	recipient string // PaymentConfig.TreasuryAddress; 402 requirements and verification use each offer's PayoutRecipient instead
	network   string
}

// NewProxyOrchestrator constructs a ProxyOrchestrator. uow wraps every
// write that crosses the run <-> offer boundary (payment settlement,
// execution) in one database transaction.
func NewProxyOrchestrator(
	offers repositories.OfferRepository,
	offerCache *cache.OfferCache,
	runs repositories.RunRepository,
	mutex *cache.MutexService,
	idempotency *cache.IdempotencyCache,
	rateLimiter *RateLimiter,
	verifier *Verifier,
	ssrfGuard *ssrf.Guard,
	dispatcher *dispatch.Dispatcher,
	rewards *RewardService,
	refunds *RefundService,
	uow repositories.UnitOfWork,
	recipient, network string,
) *ProxyOrchestrator {
	return &ProxyOrchestrator{
		offers:      offers,
		offerCache:  offerCache,
		runs:        runs,
		mutex:       mutex,
		idempotency: idempotency,
		rateLimiter: rateLimiter,
		verifier:    verifier,
		ssrfGuard:   ssrfGuard,
		dispatcher:  dispatcher,
		rewards:     rewards,
		refunds:     refunds,
		uow:         uow,
		recipient:   recipient,
		network:     network,
	}
}

// Execute runs the full request pipeline for one POST /<slug> call.
func (o *ProxyOrchestrator) Execute(ctx context.Context, req ProxyRequest) (*ProxyResult, error) {
	offer, err := o.lookupOffer(ctx, req.Slug)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return &ProxyResult{StatusCode: 404, Body: map[string]interface{}{"error": "Blink not found"}}, nil
	}
	if !offer.Active() {
		return &ProxyResult{StatusCode: 403, Body: map[string]interface{}{"error": "offer not active"}}, nil
	}

	wallet := identifyWallet(req)

	if offer.IsReward() {
		result := o.rateLimiter.CheckReward(ctx, wallet)
		if !result.Allowed {
			return rateLimitedResult(result), nil
		}
		return o.executeReward(ctx, offer, req, wallet)
	}

	result := o.rateLimiter.CheckCharge(ctx, wallet)
	if !result.Allowed {
		return rateLimitedResult(result), nil
	}

	return o.executeCharge(ctx, offer, req)
}

func (o *ProxyOrchestrator) lookupOffer(ctx context.Context, slug string) (*entities.Offer, error) {
	var offer entities.Offer
	err := o.offerCache.GetOrFetch(ctx, slug, &offer, func() (interface{}, error) {
		fetched, err := o.offers.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		return fetched, nil
	})
	if err != nil {
		if err == domainerrors.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}

// identifyWallet best-effort-extracts a wallet address for rate-limit
// accounting: the explicit "wallet" body field, else "payer", else
// empty (the limiter then meters an "" bucket, which is shared across
// anonymous callers — a deliberate degrade-to-shared-budget rather than
// skip-the-check, since skipping would let an attacker simply omit the
// field).
func identifyWallet(req ProxyRequest) string {
	if w, ok := req.Body["wallet"].(string); ok && w != "" {
		return w
	}
	if p, ok := req.Body["payer"].(string); ok && p != "" {
		return p
	}
	return ""
}

func rateLimitedResult(result cache.RateLimitResult) *ProxyResult {
	return &ProxyResult{
		StatusCode: 429,
		Body: map[string]interface{}{
			"error":       "rate limit exceeded",
			"retry_after": int(result.RetryAfter.Seconds()),
		},
	}
}

// executeCharge runs the payment-gate-and-dispatch path for charge-mode
// offers: require proof, verify, dispatch, settle.
func (o *ProxyOrchestrator) executeCharge(ctx context.Context, offer *entities.Offer, req ProxyRequest) (*ProxyResult, error) {
	reference, _ := req.Body["reference"].(string)

	if req.Envelope == "" && req.TxHash == "" && reference == "" {
		return o.paymentRequiredResult(offer), nil
	}

	identifier := req.TxHash
	if identifier == "" {
		identifier = reference
	}

	var result *ProxyResult
	var opErr error

	lockErr := o.mutex.WithLock(ctx, "payment:"+identifier, paymentMutexTTL, paymentMutexMaxRetries, paymentMutexRetryDelay, func(ctx context.Context) error {
		result, opErr = o.processUnderLock(ctx, offer, req, identifier, reference)
		return opErr
	})
	if lockErr == domainerrors.ErrContention {
		return &ProxyResult{StatusCode: 409, Body: map[string]interface{}{"error": "Payment processing in progress", "retryAfter": 5}}, nil
	}
	if lockErr != nil && opErr == nil {
		return nil, lockErr
	}
	if opErr != nil {
		return nil, opErr
	}
	return result, nil
}

func (o *ProxyOrchestrator) paymentRequiredResult(offer *entities.Offer) *ProxyResult {
	return &ProxyResult{
		StatusCode: 402,
		Body: map[string]interface{}{
			"status":  402,
			"message": "Payment Required",
			"payment": map[string]interface{}{
				"recipientWallet": offer.PayoutRecipient,
				"mint":            offer.PaymentToken,
				"amount":          offer.Price,
				"network":         o.network,
				"scheme":          "exact",
			},
			"description": offer.Description,
		},
	}
}

// processUnderLock is the idempotency check, run lookup/creation, status
// branch, dispatch, and settlement, all run while the payment:<identifier>
// mutex is held.
func (o *ProxyOrchestrator) processUnderLock(ctx context.Context, offer *entities.Offer, req ProxyRequest, identifier, reference string) (*ProxyResult, error) {
	if cached, ok := o.idempotentHit(ctx, identifier, req.IdempotencyKey); ok {
		return &ProxyResult{StatusCode: 200, Body: cached}, nil
	}

	run, err := o.loadOrCreateRun(ctx, offer, req, identifier, reference)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case entities.RunStatusExecuted:
		if cached, ok := o.idempotentHit(ctx, run.Reference, req.IdempotencyKey); ok {
			return &ProxyResult{StatusCode: 200, Body: cached}, nil
		}
		return &ProxyResult{StatusCode: 200, Body: map[string]interface{}{
			"success": true, "reference": run.Reference, "signature": run.Signature.String, "durationMs": run.DurationMs,
		}}, nil

	case entities.RunStatusFailed:
		if !run.PaymentVerified() {
			return &ProxyResult{StatusCode: 402, Body: map[string]interface{}{"error": "Payment verification failed"}}, nil
		}
		// treat as paid: execution, not payment, had previously failed

	case entities.RunStatusPending:
		proof, err := o.verifier.Verify(ctx, VerificationInput{
			Envelope:  req.Envelope,
			TxHash:    req.TxHash,
			Reference: run.Reference,
			Recipient: offer.PayoutRecipient,
			Mint:      offer.PaymentToken,
			Amount:    offer.Price,
			Network:   o.network,
		})
		if err != nil {
			_ = o.runs.MarkFailed(ctx, run.Reference)
			return &ProxyResult{StatusCode: 402, Body: map[string]interface{}{"error": "Payment verification failed", "details": err.Error()}}, nil
		}
		var updated *entities.Run
		txErr := o.uow.Do(ctx, func(txCtx context.Context) error {
			u, err := o.runs.UpdateRunPaymentAtomic(txCtx, run.Reference, proof.Signature, proof.Payer)
			if err != nil {
				return err
			}
			updated = u
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		run = updated

	case entities.RunStatusPaid:
		// already verified by a racing request; proceed to dispatch
	}

	fresh, err := o.offers.GetBySlug(ctx, offer.Slug)
	if err != nil {
		return nil, err
	}
	if !fresh.Active() {
		_ = o.runs.MarkFailed(ctx, run.Reference)
		return &ProxyResult{StatusCode: 403, Body: map[string]interface{}{"error": "offer not active"}}, nil
	}

	result, err := o.dispatchAndFinish(ctx, fresh, run)
	if err == nil && result.StatusCode == 200 {
		if identifier != run.Reference {
			_ = o.idempotency.SetIdempotent(ctx, identifier, result.Body, cache.IdempotencyTTL)
		}
		if req.IdempotencyKey != "" {
			_ = o.idempotency.SetIdempotent(ctx, req.IdempotencyKey, result.Body, cache.IdempotencyTTL)
		}
	}
	return result, err
}

func (o *ProxyOrchestrator) idempotentHit(ctx context.Context, key, idempotencyKey string) (map[string]interface{}, bool) {
	var cached map[string]interface{}
	if found, _ := o.idempotency.GetIdempotent(ctx, key, &cached); found {
		return cached, true
	}
	if idempotencyKey != "" {
		if found, _ := o.idempotency.GetIdempotent(ctx, idempotencyKey, &cached); found {
			return cached, true
		}
	}
	return nil, false
}

func (o *ProxyOrchestrator) loadOrCreateRun(ctx context.Context, offer *entities.Offer, req ProxyRequest, identifier, reference string) (*entities.Run, error) {
	lookupKey := reference
	if lookupKey == "" {
		lookupKey = identifier
	}

	run, err := o.runs.GetByReference(ctx, lookupKey)
	if err == nil {
		return run, nil
	}
	if err != domainerrors.ErrNotFound {
		return nil, err
	}

	metadata := map[string]interface{}{}
	for k, v := range req.Body {
		metadata[k] = v
	}
	if reference == "" {
		reference = identifier
	}
	if reference == "" {
		reference = uuid.NewString()
	}

	return o.runs.CreateRun(ctx, offer.ID.String(), reference, metadata)
}

// dispatchAndFinish implements the back half of step 6: SSRF-check the
// upstream URL, dispatch, and finish the run either executed or
// (non-fatally, via refund) failed.
func (o *ProxyOrchestrator) dispatchAndFinish(ctx context.Context, offer *entities.Offer, run *entities.Run) (*ProxyResult, error) {
	resolvedURL, err := o.ssrfGuard.Check(offer.UpstreamURL)
	if err != nil {
		_ = o.offers.RecordDispatchOutcome(ctx, offer.ID, false)
		_ = o.runs.MarkFailed(ctx, run.Reference)
		return &ProxyResult{StatusCode: 500, Body: map[string]interface{}{"error": "upstream address rejected", "details": err.Error()}}, nil
	}

	body := map[string]interface{}{}
	for k, v := range run.Metadata {
		body[k] = v
	}
	body["reference"] = run.Reference
	if run.Signature.Valid {
		body["signature"] = run.Signature.String
	}
	if run.Payer.Valid {
		body["payer"] = run.Payer.String
	}

	started := time.Now()
	dispatchResult, err := o.dispatcher.Dispatch(ctx, offer.Method, resolvedURL, body)

	if err != nil {
		_ = o.offers.RecordDispatchOutcome(ctx, offer.ID, false)

		statusCode := 500
		if err == domainerrors.ErrUpstreamTimeout {
			statusCode = 504
		}

		retryAllowed := run.PaymentVerified()
		respBody := map[string]interface{}{
			"error":        "upstream request failed",
			"details":      err.Error(),
			"retryAllowed": retryAllowed,
		}

		if retryAllowed {
			respBody["refund"] = o.attemptRefund(ctx, run, offer)
		} else {
			_ = o.runs.MarkFailed(ctx, run.Reference)
			respBody["refund"] = map[string]interface{}{"status": "not-applicable"}
		}

		return &ProxyResult{StatusCode: statusCode, Body: respBody}, nil
	}

	_ = o.offers.RecordDispatchOutcome(ctx, offer.ID, true)

	durationMs := time.Since(started).Milliseconds()
	responseData := map[string]interface{}{"response": dispatchResult.Data}

	var executed *entities.Run
	txErr := o.uow.Do(ctx, func(txCtx context.Context) error {
		e, err := o.runs.MarkExecuted(txCtx, run.Reference, durationMs, responseData)
		if err != nil {
			return err
		}
		executed = e
		return o.offers.IncrementRunCount(txCtx, offer.ID)
	})
	if txErr != nil {
		return nil, txErr
	}
	_ = o.offerCache.Invalidate(ctx, offer.Slug)

	respBody := map[string]interface{}{
		"success":    true,
		"data":       dispatchResult.Data,
		"reference":  executed.Reference,
		"signature":  executed.Signature.String,
		"durationMs": durationMs,
	}
	_ = o.idempotency.SetIdempotent(ctx, executed.Reference, respBody, cache.IdempotencyTTL)

	return &ProxyResult{StatusCode: 200, Body: respBody}, nil
}

// attemptRefund drives a refund when an upstream call fails after payment was
// verified, and shapes the refund-status block reported in the 500
// response.
func (o *ProxyOrchestrator) attemptRefund(ctx context.Context, run *entities.Run, offer *entities.Offer) map[string]interface{} {
	if !run.Payer.Valid || run.Payer.String == "" {
		return map[string]interface{}{"status": "not-applicable", "reason": "payer unknown"}
	}

	refund, err := o.refunds.Issue(ctx, run, offer)
	if err != nil {
		return map[string]interface{}{"status": "failed", "reason": err.Error()}
	}
	return map[string]interface{}{"status": "issued", "signature": refund.Signature}
}

// executeReward runs the reward-mode path end to end: the upstream
// validation call, then RewardService.Claim's challenge verification,
// claim-limit enforcement and disbursement. The upstream call is made
// before the challenge is checked, so a request carrying an invalid
// challenge still reaches the upstream.
func (o *ProxyOrchestrator) executeReward(ctx context.Context, offer *entities.Offer, req ProxyRequest, wallet string) (*ProxyResult, error) {
	if wallet == "" {
		return &ProxyResult{StatusCode: 403, Body: map[string]interface{}{"error": "wallet required for reward claim"}}, nil
	}
	if req.ChallengeNonce == "" || req.ChallengeSignature == "" {
		return &ProxyResult{StatusCode: 403, Body: map[string]interface{}{"error": "challenge required"}}, nil
	}

	reference, _ := req.Body["reference"].(string)
	if reference == "" {
		reference = uuid.NewString()
	}

	resolvedURL, err := o.ssrfGuard.Check(offer.UpstreamURL)
	if err != nil {
		return &ProxyResult{StatusCode: 500, Body: map[string]interface{}{"error": "upstream address rejected"}}, nil
	}

	validationBody := map[string]interface{}{}
	for k, v := range req.Body {
		validationBody[k] = v
	}
	validationBody["reference"] = reference
	validationBody["wallet"] = wallet

	dispatchResult, err := o.dispatcher.Dispatch(ctx, offer.Method, resolvedURL, validationBody)
	if err != nil {
		_ = o.offers.RecordDispatchOutcome(ctx, offer.ID, false)
		return &ProxyResult{StatusCode: 500, Body: map[string]interface{}{"error": "upstream validation failed", "details": err.Error()}}, nil
	}
	_ = o.offers.RecordDispatchOutcome(ctx, offer.ID, true)

	dynamicAmount := ""
	if data, ok := dispatchResult.Data.(map[string]interface{}); ok {
		if amt, ok := data["rewardAmount"].(string); ok {
			dynamicAmount = amt
		}
	}

	result, err := o.rewards.Claim(ctx, offer, ClaimInput{
		Wallet: wallet, Nonce: req.ChallengeNonce, Signature: req.ChallengeSignature,
		Reference: reference, UpstreamDynamicAmount: dynamicAmount,
	})
	if err != nil {
		switch {
		case errors.Is(err, domainerrors.ErrChallengeInvalid),
			errors.Is(err, domainerrors.ErrChallengeReplayed),
			errors.Is(err, domainerrors.ErrClaimLimitExceeded),
			errors.Is(err, walletsig.ErrInvalidSignature):
			return &ProxyResult{StatusCode: 403, Body: map[string]interface{}{"error": err.Error()}}, nil
		default:
			return &ProxyResult{StatusCode: 500, Body: map[string]interface{}{"error": "reward disbursement failed", "details": err.Error()}}, nil
		}
	}

	if err := o.offers.IncrementRunCount(ctx, offer.ID); err != nil {
		logger.Warn(ctx, "failed to increment offer run count", zap.String("offer_id", offer.ID.String()), zap.Error(err))
	}

	body := map[string]interface{}{
		"success": true, "reference": reference, "signature": result.Signature, "amount": result.Amount,
	}
	if result.Receipt != "" {
		body["receipt"] = result.Receipt
	}
	return &ProxyResult{StatusCode: 200, Body: body}, nil
}
