package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"blinkgate.backend/internal/domain/repositories"
	"blinkgate.backend/internal/interfaces/http/response"
)

// AdminHandler exposes the platform's receivable ledger: the CreatorDebt
// rows a refund books against an offer's creator. Wraps the repository
// directly rather than a dedicated usecase, since it is a read-only
// reporting surface with no business rule to enforce.
type AdminHandler struct {
	debts repositories.DebtRepository
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(debts repositories.DebtRepository) *AdminHandler {
	return &AdminHandler{debts: debts}
}

// ListCreatorDebts handles GET /api/v1/admin/creators/:id/debts.
func (h *AdminHandler) ListCreatorDebts(c *gin.Context) {
	creatorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "invalid creator id", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	debts, total, err := h.debts.ListByCreator(c.Request.Context(), creatorID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"debts": debts, "total": total})
}
