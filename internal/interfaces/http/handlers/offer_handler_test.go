package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"blinkgate.backend/internal/domain/entities"
	"blinkgate.backend/internal/infrastructure/cache"
	"blinkgate.backend/internal/usecases"
	pkgredis "blinkgate.backend/pkg/redis"
)

func newOfferHandlerTest(t *testing.T) (*gin.Engine, *fakeOfferRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	pkgredis.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	repo := &fakeOfferRepo{bySlug: map[string]*entities.Offer{}}
	svc := usecases.NewOfferService(repo, cache.NewOfferCache())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewOfferHandler(svc)
	r.POST("/admin/offers", handler.Create)
	r.GET("/admin/offers/:slug", handler.Get)
	r.PUT("/admin/offers/:slug/status", handler.SetStatus)
	return r, repo
}

func TestOfferHandler_CreateChargeOffer(t *testing.T) {
	r, _ := newOfferHandlerTest(t)

	body := `{"slug":"summarize","upstreamUrl":"https://api.example.com/summarize","price":"10000","mode":"charge"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/offers", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestOfferHandler_CreateMissingFieldsRejected(t *testing.T) {
	r, _ := newOfferHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/offers", bytes.NewBufferString(`{"mode":"charge"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOfferHandler_GetUnknownSlugReturns404(t *testing.T) {
	r, _ := newOfferHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/offers/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOfferHandler_SetStatusPausesOffer(t *testing.T) {
	r, repo := newOfferHandlerTest(t)
	id := uuid.New()
	repo.bySlug["summarize"] = &entities.Offer{ID: id, Slug: "summarize", Status: entities.OfferStatusActive}

	req := httptest.NewRequest(http.MethodPut, "/admin/offers/summarize/status", bytes.NewBufferString(`{"status":"paused"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
