package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-tools-server/internal/middleware"
	"ai-tools-server/internal/models"
)

// GenerateImage handles POST /api/tools/image. The generated image is stored
// and the record's content carries its URL.
func (h *Handler) GenerateImage(c *gin.Context) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	generation, err := h.generations.GenerateImage(c.Request.Context(), middleware.OwnerID(c), req.Prompt)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerationResponse{Generation: *generation})
}
