package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"blinkgate.backend/internal/domain/entities"
	"blinkgate.backend/internal/interfaces/http/response"
	"blinkgate.backend/internal/usecases"
)

// ChallengeHandler issues the nonce-keyed wallet challenge a reward-mode
// claimant must sign before calling POST /:slug.
type ChallengeHandler struct {
	offers  *usecases.OfferService
	rewards *usecases.RewardService
}

// NewChallengeHandler constructs a ChallengeHandler.
func NewChallengeHandler(offers *usecases.OfferService, rewards *usecases.RewardService) *ChallengeHandler {
	return &ChallengeHandler{offers: offers, rewards: rewards}
}

// Issue handles GET /:slug/challenge?wallet=W.
func (h *ChallengeHandler) Issue(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		response.ErrorWithDetails(c, http.StatusBadRequest, "wallet query parameter is required", nil)
		return
	}

	offer, err := h.offers.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !offer.IsReward() {
		response.ErrorWithDetails(c, http.StatusForbidden, "offer is not a reward offer", nil)
		return
	}

	challenge, err := h.rewards.IssueChallenge(c.Request.Context(), offer, wallet)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"nonce":     challenge.Nonce,
		"message":   challenge.CanonicalString(),
		"expiresAt": challenge.Timestamp.Add(entities.ChallengeTTL),
	})
}
