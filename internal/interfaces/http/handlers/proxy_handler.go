package handlers

import (
	"github.com/gin-gonic/gin"

	"blinkgate.backend/internal/interfaces/http/response"
	"blinkgate.backend/internal/usecases"
)

// ProxyHandler serves the single payment-gated call every Blink exposes:
// POST /:slug, the HTTP face of the proxy orchestrator.
type ProxyHandler struct {
	orchestrator *usecases.ProxyOrchestrator
}

// NewProxyHandler constructs a ProxyHandler.
func NewProxyHandler(orchestrator *usecases.ProxyOrchestrator) *ProxyHandler {
	return &ProxyHandler{orchestrator: orchestrator}
}

// Execute handles POST /:slug. Headers/body are translated into a
// usecases.ProxyRequest here so the orchestrator stays transport-agnostic.
func (h *ProxyHandler) Execute(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		body = map[string]interface{}{}
	}

	req := usecases.ProxyRequest{
		Slug:               c.Param("slug"),
		Body:               body,
		Envelope:           c.GetHeader("X-Payment"),
		TxHash:             c.GetHeader("X-Payment-Tx"),
		IdempotencyKey:     idempotencyKey(c),
		ChallengeNonce:     stringField(body, "_challengeNonce"),
		ChallengeSignature: stringField(body, "_challengeSignature"),
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(result.StatusCode, result.Body)
}

func idempotencyKey(c *gin.Context) string {
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		return key
	}
	return c.GetHeader("X-Idempotency-Key")
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}
