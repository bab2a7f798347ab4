package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/internal/infrastructure/cache"
	"blinkgate.backend/internal/infrastructure/dispatch"
	"blinkgate.backend/internal/infrastructure/ssrf"
	pkgredis "blinkgate.backend/pkg/redis"
	"blinkgate.backend/internal/usecases"
)

type fakeOfferRepo struct {
	bySlug map[string]*entities.Offer
}

func (r *fakeOfferRepo) Create(context.Context, *entities.Offer) error { return nil }
func (r *fakeOfferRepo) GetByID(context.Context, uuid.UUID) (*entities.Offer, error) {
	return nil, domainerrors.ErrNotFound
}
func (r *fakeOfferRepo) GetBySlug(_ context.Context, slug string) (*entities.Offer, error) {
	offer, ok := r.bySlug[slug]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return offer, nil
}
func (r *fakeOfferRepo) List(context.Context, int, int) ([]*entities.Offer, int64, error) {
	return nil, 0, nil
}
func (r *fakeOfferRepo) UpdateStatus(context.Context, uuid.UUID, entities.OfferStatus) error {
	return nil
}
func (r *fakeOfferRepo) IncrementRunCount(context.Context, uuid.UUID) error        { return nil }
func (r *fakeOfferRepo) RecordDispatchOutcome(context.Context, uuid.UUID, bool) error { return nil }

type fakeRunRepo struct{ byRef map[string]*entities.Run }

func (r *fakeRunRepo) CreateRun(_ context.Context, offerID, reference string, metadata map[string]interface{}) (*entities.Run, error) {
	id, _ := uuid.Parse(offerID)
	run := &entities.Run{ID: uuid.New(), OfferID: id, Reference: reference, Status: entities.RunStatusPending, Metadata: metadata}
	r.byRef[reference] = run
	return run, nil
}
func (r *fakeRunRepo) GetByReference(_ context.Context, reference string) (*entities.Run, error) {
	run, ok := r.byRef[reference]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return run, nil
}
func (r *fakeRunRepo) GetBySignature(context.Context, string) (*entities.Run, error) {
	return nil, domainerrors.ErrNotFound
}
func (r *fakeRunRepo) UpdateRunPaymentAtomic(context.Context, string, string, string) (*entities.Run, error) {
	return nil, domainerrors.ErrNotFound
}
func (r *fakeRunRepo) MarkExecuted(context.Context, string, int64, map[string]interface{}) (*entities.Run, error) {
	return nil, domainerrors.ErrNotFound
}
func (r *fakeRunRepo) MarkFailed(context.Context, string) error { return nil }
func (r *fakeRunRepo) GetExpiredPending(context.Context, int) ([]*entities.Run, error) {
	return nil, nil
}
func (r *fakeRunRepo) ExpireRun(context.Context, string) error { return nil }

// fakeUnitOfWork runs fn directly against the incoming context: the fake
// repositories above have no notion of a database transaction.
type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
func (fakeUnitOfWork) WithLock(ctx context.Context) context.Context                 { return ctx }

func newProxyHandlerTest(t *testing.T) (*gin.Engine, *fakeOfferRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	pkgredis.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	offers := &fakeOfferRepo{bySlug: map[string]*entities.Offer{}}
	runs := &fakeRunRepo{byRef: map[string]*entities.Run{}}
	limiter := usecases.NewRateLimiter(cache.NewRateLimitCounter(), time.Hour, 10, time.Hour, 5)
	orchestrator := usecases.NewProxyOrchestrator(
		offers, cache.NewOfferCache(), runs, cache.NewMutexService(), cache.NewIdempotencyCache(),
		limiter, nil, ssrf.NewGuard("https://api.internal.example.com"),
		dispatch.NewDispatcher(5*time.Second, 1<<20), nil, nil, fakeUnitOfWork{}, "treasury-wallet", "solana",
	)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewProxyHandler(orchestrator)
	r.POST("/:slug", handler.Execute)
	return r, offers
}

func TestProxyHandler_UnknownSlugReturns404(t *testing.T) {
	r, _ := newProxyHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/missing", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProxyHandler_NoPaymentProofReturns402(t *testing.T) {
	r, offers := newProxyHandlerTest(t)
	offers.bySlug["summarize"] = &entities.Offer{
		ID: uuid.New(), Slug: "summarize", Status: entities.OfferStatusActive,
		Mode: entities.OfferModeCharge, UpstreamURL: "https://api.example.com/x",
		PayoutRecipient: "treasury-wallet", Price: "5000",
	}

	req := httptest.NewRequest(http.MethodPost, "/summarize", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}
