package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ai-tools-server/internal/messaging"
	"ai-tools-server/internal/models"
	"ai-tools-server/internal/repository"
)

const (
	chatSystemPrompt = "You are a helpful assistant. Answer clearly and concisely."

	defaultVisionInstruction = "Describe what you see in this image in detail."

	objectPromptTemplate = "Extract the named entities, a one-sentence summary and the overall sentiment from the following text.\n\nText:\n%s"
)

// defaultExtractionSchema constrains structured extraction results: a list
// of typed entities, a summary and a sentiment classification.
var defaultExtractionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string", "description": "person, organization, location, date, etc."},
          "context": {"type": "string"}
        },
        "required": ["name", "type"],
        "additionalProperties": false
      }
    },
    "summary": {"type": "string", "description": "A one-sentence summary of the text"},
    "sentiment": {"type": "string", "enum": ["positive", "negative", "neutral"]}
  },
  "required": ["entities", "summary", "sentiment"],
  "additionalProperties": false
}`)

// GenerationService implements the tool operations and the generation
// history. Each owner may run at most one generation per tool kind at a
// time; results of cancelled requests are discarded instead of recorded.
type GenerationService struct {
	repo    repository.GenerationRepository
	ai      AIClient
	storage FileStorage
	events  messaging.GenerationEventPublisher
	flights *flightGuard
	logger  *zap.Logger
}

func NewGenerationService(
	repo repository.GenerationRepository,
	ai AIClient,
	storage FileStorage,
	events messaging.GenerationEventPublisher,
	logger *zap.Logger,
) *GenerationService {
	return &GenerationService{
		repo:    repo,
		ai:      ai,
		storage: storage,
		events:  events,
		flights: newFlightGuard(),
		logger:  logger.Named("GenerationService"),
	}
}

// Chat answers the prompt with a single completion and records the result.
func (s *GenerationService) Chat(ctx context.Context, ownerID, prompt string) (*models.Generation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
	}
	if err := s.flights.begin(ownerID, models.KindChat); err != nil {
		return nil, err
	}
	defer s.flights.end(ownerID, models.KindChat)

	content, usage, err := s.ai.GenerateText(ctx, chatSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Chat completion finished",
		zap.String("owner_id", ownerID),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	return s.record(ctx, ownerID, models.KindChat, prompt, content, nil)
}

// ChatStream answers the prompt while forwarding each text chunk to
// chunkHandler, then records the full concatenated reply.
func (s *GenerationService) ChatStream(ctx context.Context, ownerID, prompt string, chunkHandler func(string) error) (*models.Generation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
	}
	if err := s.flights.begin(ownerID, models.KindChat); err != nil {
		return nil, err
	}
	defer s.flights.end(ownerID, models.KindChat)

	content, usage, err := s.ai.GenerateTextStream(ctx, chatSystemPrompt, prompt, chunkHandler)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Chat stream finished",
		zap.String("owner_id", ownerID),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	return s.record(ctx, ownerID, models.KindChat, prompt, content, nil)
}

// GenerateImage produces an image for the prompt, stores it and records a
// generation whose content is the image URL.
func (s *GenerationService) GenerateImage(ctx context.Context, ownerID, prompt string) (*models.Generation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
	}
	if err := s.flights.begin(ownerID, models.KindImage); err != nil {
		return nil, err
	}
	defer s.flights.end(ownerID, models.KindImage)

	imageData, err := s.ai.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	destPath := fmt.Sprintf("generated/%s/%s.png", ownerID, uuid.NewString())
	imageURL, err := s.storage.Upload(ctx, bytes.NewReader(imageData), int64(len(imageData)), destPath, nil)
	if err != nil {
		return nil, err
	}

	return s.record(ctx, ownerID, models.KindImage, prompt, imageURL, nil)
}

// AnalyzeImage stores the uploaded image, reporting upload progress through
// onProgress, then runs the vision model over it and records the analysis.
// An empty instruction falls back to a generic description request.
func (s *GenerationService) AnalyzeImage(ctx context.Context, ownerID, instruction, filename string, file io.Reader, size int64, onProgress ProgressFunc) (*models.Generation, error) {
	if file == nil || size <= 0 {
		return nil, fmt.Errorf("%w: image file is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = defaultVisionInstruction
	}
	if err := s.flights.begin(ownerID, models.KindVision); err != nil {
		return nil, err
	}
	defer s.flights.end(ownerID, models.KindVision)

	ext := path.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	destPath := fmt.Sprintf("uploads/%s/%s%s", ownerID, uuid.NewString(), ext)

	imageURL, err := s.storage.Upload(ctx, file, size, destPath, onProgress)
	if err != nil {
		return nil, err
	}

	content, usage, err := s.ai.AnalyzeImage(ctx, instruction, imageURL)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Vision analysis finished",
		zap.String("owner_id", ownerID),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	return s.record(ctx, ownerID, models.KindVision, instruction, content, &models.GenerationAttributes{ImageURL: imageURL})
}

// ExtractObject runs schema-constrained extraction over the text and records
// the structured result as JSON.
func (s *GenerationService) ExtractObject(ctx context.Context, ownerID, text string) (*models.ExtractedObject, *models.Generation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("%w: text is required", models.ErrInvalidInput)
	}
	if err := s.flights.begin(ownerID, models.KindObject); err != nil {
		return nil, nil, err
	}
	defer s.flights.end(ownerID, models.KindObject)

	var extracted models.ExtractedObject
	prompt := fmt.Sprintf(objectPromptTemplate, text)
	if err := s.ai.GenerateObject(ctx, prompt, defaultExtractionSchema, &extracted); err != nil {
		return nil, nil, err
	}

	content, err := json.Marshal(extracted)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to encode extraction result: %v", models.ErrInternalServer, err)
	}

	// Long inputs are abbreviated in history; the structured result is the
	// part worth keeping. Cut on rune boundaries so multibyte text stays
	// valid UTF-8.
	recordedPrompt := strings.TrimSpace(text)
	if runes := []rune(recordedPrompt); len(runes) > 100 {
		recordedPrompt = string(runes[:100])
	}
	recordedPrompt += "..."

	generation, err := s.record(ctx, ownerID, models.KindObject, recordedPrompt, string(content), nil)
	if err != nil {
		return nil, nil, err
	}
	return &extracted, generation, nil
}

// List returns the owner's generations, newest first.
func (s *GenerationService) List(ctx context.Context, ownerID string) ([]models.Generation, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Delete removes the owner's generation. Deleting an unknown id is not an
// error.
func (s *GenerationService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.events.PublishDeleted(ctx, ownerID, id); err != nil {
		s.logger.Warn("Failed to publish deletion event", zap.String("generation_id", id), zap.Error(err))
	}
	return nil
}

// record persists a finished generation. If the request context was
// cancelled while the AI call was running, the result is dropped so that
// abandoned requests never appear in history.
func (s *GenerationService) record(ctx context.Context, ownerID string, kind models.GenerationKind, prompt, content string, attrs *models.GenerationAttributes) (*models.Generation, error) {
	if err := ctx.Err(); err != nil {
		s.logger.Debug("Discarding result of cancelled request",
			zap.String("owner_id", ownerID),
			zap.String("kind", string(kind)),
		)
		return nil, err
	}

	generation := &models.Generation{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Kind:       kind,
		Prompt:     prompt,
		Content:    content,
		Attributes: attrs,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Save(ctx, generation); err != nil {
		return nil, err
	}
	generationsTotal.WithLabelValues(string(kind)).Inc()

	if err := s.events.PublishCreated(ctx, generation); err != nil {
		s.logger.Warn("Failed to publish creation event", zap.String("generation_id", generation.ID), zap.Error(err))
	}
	return generation, nil
}
