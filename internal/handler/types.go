package handler

import "ai-tools-server/internal/models"

// ChatRequest is the body for both chat endpoints.
type ChatRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// ImageRequest is the body for the image generation endpoint.
type ImageRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// ObjectRequest is the body for the structured extraction endpoint.
type ObjectRequest struct {
	Text string `json:"text" binding:"required"`
}

// GenerationResponse wraps a single recorded generation.
type GenerationResponse struct {
	Generation models.Generation `json:"generation"`
}

// VisionResponse returns the analysis record together with the outcome of
// the preceding upload.
type VisionResponse struct {
	Generation    models.Generation `json:"generation"`
	UploadedBytes int64             `json:"uploadedBytes"`
	UploadPercent int               `json:"uploadPercent"`
}

// ObjectResponse returns the structured extraction alongside its record.
type ObjectResponse struct {
	Result     models.ExtractedObject `json:"result"`
	Generation models.Generation      `json:"generation"`
}

// HistoryResponse lists the owner's generations, newest first.
type HistoryResponse struct {
	Generations []models.Generation `json:"generations"`
}
