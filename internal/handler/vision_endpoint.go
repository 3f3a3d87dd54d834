package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ai-tools-server/internal/middleware"
	"ai-tools-server/internal/models"
	"ai-tools-server/internal/service"
)

// Uploads beyond this are rejected before touching storage.
const maxUploadSizeBytes = 10 << 20

// AnalyzeImage handles POST /api/tools/vision. The request is multipart form
// data with an "image" file and an optional "prompt" field.
func (h *Handler) AnalyzeImage(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		handleServiceError(c, fmt.Errorf("%w: image file is required: %v", models.ErrInvalidInput, err))
		return
	}
	if fileHeader.Size > maxUploadSizeBytes {
		handleServiceError(c, fmt.Errorf("%w: image exceeds the %d MB upload limit", models.ErrInvalidInput, maxUploadSizeBytes>>20))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		handleServiceError(c, fmt.Errorf("%w: failed to read uploaded image: %v", models.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	ownerID := middleware.OwnerID(c)
	var lastLogged, finalPercent int
	onProgress := service.ProgressFunc(func(percent int) {
		finalPercent = percent
		if percent-lastLogged >= 25 || percent == 100 {
			lastLogged = percent
			h.logger.Debug("Upload progress",
				zap.String("owner_id", ownerID),
				zap.Int("percent", percent),
			)
		}
	})

	generation, err := h.generations.AnalyzeImage(
		c.Request.Context(),
		ownerID,
		c.PostForm("prompt"),
		fileHeader.Filename,
		file,
		fileHeader.Size,
		onProgress,
	)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, VisionResponse{
		Generation:    *generation,
		UploadedBytes: fileHeader.Size,
		UploadPercent: finalPercent,
	})
}
