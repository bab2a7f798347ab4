package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"blinkgate.backend/internal/domain/entities"
	"blinkgate.backend/internal/interfaces/http/response"
	"blinkgate.backend/internal/usecases"
)

// OfferHandler is the admin CRUD surface the catalog data model requires:
// an offer has to exist, and be active, before the proxy orchestrator
// will serve a call against it.
type OfferHandler struct {
	offers *usecases.OfferService
}

// NewOfferHandler constructs an OfferHandler.
func NewOfferHandler(offers *usecases.OfferService) *OfferHandler {
	return &OfferHandler{offers: offers}
}

type createOfferRequest struct {
	Slug             string                    `json:"slug"`
	Title            string                    `json:"title"`
	Description      string                    `json:"description"`
	UpstreamURL      string                    `json:"upstreamUrl"`
	Method           string                    `json:"method"`
	Price            string                    `json:"price"`
	Mode             entities.OfferMode        `json:"mode"`
	PayoutRecipient  string                    `json:"payoutRecipient"`
	PaymentToken     string                    `json:"paymentToken"`
	RewardAmount     string                    `json:"rewardAmount"`
	FundedWallet     string                    `json:"fundedWallet"`
	MaxClaimsPerUser int                       `json:"maxClaimsPerUser"`
	InputSchema      []entities.InputParamSpec `json:"inputSchema"`
	CreatorID        uuid.UUID                 `json:"creatorId"`
}

// Create handles POST /api/v1/admin/offers.
func (h *OfferHandler) Create(c *gin.Context) {
	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	offer, err := h.offers.Create(c.Request.Context(), usecases.CreateInput{
		Slug:             req.Slug,
		Title:            req.Title,
		Description:      req.Description,
		UpstreamURL:      req.UpstreamURL,
		Method:           req.Method,
		Price:            req.Price,
		Mode:             req.Mode,
		PayoutRecipient:  req.PayoutRecipient,
		PaymentToken:     req.PaymentToken,
		RewardAmount:     req.RewardAmount,
		FundedWallet:     req.FundedWallet,
		MaxClaimsPerUser: req.MaxClaimsPerUser,
		InputSchema:      req.InputSchema,
		CreatorID:        req.CreatorID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, offer)
}

// Get handles GET /api/v1/admin/offers/:slug.
func (h *OfferHandler) Get(c *gin.Context) {
	offer, err := h.offers.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, offer)
}

// List handles GET /api/v1/admin/offers.
func (h *OfferHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	offers, total, err := h.offers.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"offers": offers, "total": total})
}

type setStatusRequest struct {
	Status entities.OfferStatus `json:"status"`
}

// SetStatus handles PUT /api/v1/admin/offers/:slug/status.
func (h *OfferHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if err := h.offers.SetStatus(c.Request.Context(), c.Param("slug"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": req.Status})
}

// Health handles GET /api/v1/admin/offers/:slug/health, the
// circuit-breaker-derived status endpoint.
func (h *OfferHandler) Health(c *gin.Context) {
	health, err := h.offers.Health(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"health": health})
}
