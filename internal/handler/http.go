package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ai-tools-server/internal/service"
)

// Handler wires the tool and history endpoints to the generation service.
type Handler struct {
	generations *service.GenerationService
	logger      *zap.Logger
}

func NewHandler(generations *service.GenerationService, logger *zap.Logger) *Handler {
	return &Handler{
		generations: generations,
		logger:      logger.Named("Handler"),
	}
}

// RegisterRoutes attaches all API routes under /api. extraMiddleware (rate
// limiting and similar) is applied to the whole group; pass nothing to
// disable.
func (h *Handler) RegisterRoutes(router *gin.Engine, extraMiddleware ...gin.HandlerFunc) {
	api := router.Group("/api")
	api.Use(extraMiddleware...)

	tools := api.Group("/tools")
	{
		tools.POST("/chat", h.Chat)
		tools.POST("/chat/stream", h.ChatStream)
		tools.POST("/image", h.GenerateImage)
		tools.POST("/vision", h.AnalyzeImage)
		tools.POST("/object", h.ExtractObject)
	}

	api.GET("/history", h.ListHistory)
	api.DELETE("/history/:id", h.DeleteGeneration)
}
