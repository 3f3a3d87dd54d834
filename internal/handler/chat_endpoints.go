package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ai-tools-server/internal/middleware"
	"ai-tools-server/internal/models"
)

// Chat handles POST /api/tools/chat. It returns the complete reply in one
// JSON response.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	generation, err := h.generations.Chat(c.Request.Context(), middleware.OwnerID(c), req.Prompt)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerationResponse{Generation: *generation})
}

// ChatStream handles POST /api/tools/chat/stream. The reply is written as
// chunked plain text, flushed fragment by fragment as the model produces it.
// The finished reply is recorded in history like the non-streaming variant.
func (h *Handler) ChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		handleServiceError(c, fmt.Errorf("%w: streaming is not supported by this connection", models.ErrInternalServer))
		return
	}

	ownerID := middleware.OwnerID(c)

	// Headers go out with the first chunk; errors after that point can only
	// terminate the stream.
	headersSent := false
	sendChunk := func(chunk string) error {
		if !headersSent {
			c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.WriteHeader(http.StatusOK)
			headersSent = true
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	generation, err := h.generations.ChatStream(c.Request.Context(), ownerID, req.Prompt, sendChunk)
	if err != nil {
		if !headersSent {
			handleServiceError(c, err)
			return
		}
		h.logger.Warn("Chat stream aborted mid-response",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		c.Abort()
		return
	}

	h.logger.Debug("Chat stream delivered",
		zap.String("owner_id", ownerID),
		zap.String("generation_id", generation.ID),
	)
}
