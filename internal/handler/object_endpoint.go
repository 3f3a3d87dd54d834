package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-tools-server/internal/middleware"
	"ai-tools-server/internal/models"
)

// ExtractObject handles POST /api/tools/object. The text is run through
// schema-constrained extraction and the structured result is returned with
// its history record.
func (h *Handler) ExtractObject(c *gin.Context) {
	var req ObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	result, generation, err := h.generations.ExtractObject(c.Request.Context(), middleware.OwnerID(c), req.Text)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ObjectResponse{Result: *result, Generation: *generation})
}
