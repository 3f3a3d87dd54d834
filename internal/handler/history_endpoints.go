package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-tools-server/internal/middleware"
)

// ListHistory handles GET /api/history. Generations are returned newest
// first and scoped to the resolved owner.
func (h *Handler) ListHistory(c *gin.Context) {
	generations, err := h.generations.List(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Generations: generations})
}

// DeleteGeneration handles DELETE /api/history/:id. Deleting an id that does
// not exist, or that belongs to another owner, succeeds without effect.
func (h *Handler) DeleteGeneration(c *gin.Context) {
	if err := h.generations.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
