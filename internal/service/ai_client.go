package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ai-tools-server/internal/models"
)

// UsageInfo holds token accounting for one AI request. Stream responses may
// carry estimated values when the provider omits a final usage block.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIClient is the external AI provider consumed by the tool operations.
// Every method is a single remote call; no retries or backoff are performed
// here.
type AIClient interface {
	// GenerateText runs a plain chat completion and returns the full text.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error)
	// GenerateTextStream streams the completion, calling chunkHandler for
	// each received fragment, and returns the concatenated full text.
	GenerateTextStream(ctx context.Context, systemPrompt, userPrompt string, chunkHandler func(string) error) (string, UsageInfo, error)
	// GenerateImage produces raw image bytes for the prompt.
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	// AnalyzeImage runs a multimodal completion over the image at imageURL.
	AnalyzeImage(ctx context.Context, instruction, imageURL string) (string, UsageInfo, error)
	// GenerateObject runs a completion constrained by the given JSON schema
	// and unmarshals the result into out.
	GenerateObject(ctx context.Context, prompt string, schema json.RawMessage, out any) error
}

// AIClientConfig carries the provider settings shared by both client
// implementations.
type AIClientConfig struct {
	ClientType  string // "openai" or "ollama"
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string // falls back to Model when empty
	ImageModel  string
	Timeout     time.Duration
}

// NewAIClient builds an AI client implementation from the configuration.
func NewAIClient(cfg AIClientConfig, logger *zap.Logger) (AIClient, error) {
	switch strings.ToLower(cfg.ClientType) {
	case "openai":
		openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiConfig.BaseURL = cfg.BaseURL
		}
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		client := openaigo.NewClientWithConfig(openaiConfig)
		logger.Info("OpenAI client created",
			zap.String("base_url", openaiConfig.BaseURL),
			zap.String("model", cfg.Model),
			zap.Duration("timeout", cfg.Timeout),
		)
		return &openAIClient{
			client:      client,
			model:       cfg.Model,
			visionModel: cfg.VisionModel,
			imageModel:  cfg.ImageModel,
			logger:      logger.Named("OpenAIClient"),
		}, nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI client type: '%s'", cfg.ClientType)
	}
}

// --- OpenAI Client Implementation ---

type openAIClient struct {
	client      *openaigo.Client
	model       string
	visionModel string
	imageModel  string
	logger      *zap.Logger
}

func (c *openAIClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(userPrompt) == "" {
		return "", usageInfo, fmt.Errorf("%w: user prompt is empty", models.ErrAIGenerationFailed)
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:    c.model,
		Messages: buildChatMessages(systemPrompt, userPrompt),
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Chat completion failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return "", usageInfo, fmt.Errorf("%w: empty response received", models.ErrAIGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())
	usageInfo = usageFromOpenAI(resp.Usage)
	observeTokens(c.model, usageInfo)

	return resp.Choices[0].Message.Content, usageInfo, nil
}

func (c *openAIClient) GenerateTextStream(ctx context.Context, systemPrompt, userPrompt string, chunkHandler func(string) error) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(userPrompt) == "" {
		return "", usageInfo, fmt.Errorf("%w: user prompt is empty", models.ErrAIGenerationFailed)
	}

	request := openaigo.ChatCompletionRequest{
		Model:    c.model,
		Messages: buildChatMessages(systemPrompt, userPrompt),
		Stream:   true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		aiRequestsTotal.WithLabelValues(c.model, "error_stream_init").Inc()
		return "", usageInfo, fmt.Errorf("%w: failed to open stream: %v", models.ErrAIGenerationFailed, err)
	}
	defer stream.Close()

	startTime := time.Now()
	var finalUsage openaigo.Usage
	var responseTextBuilder strings.Builder

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			aiRequestsTotal.WithLabelValues(c.model, "error_stream_read").Inc()
			return responseTextBuilder.String(), usageInfo, fmt.Errorf("%w: stream read failed: %v", models.ErrAIGenerationFailed, err)
		}

		// Some providers send the usage block in the final stream event.
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = *response.Usage
		}

		if len(response.Choices) > 0 {
			chunk := response.Choices[0].Delta.Content
			if chunk == "" {
				continue
			}
			responseTextBuilder.WriteString(chunk)
			if chunkHandler != nil {
				if err := chunkHandler(chunk); err != nil {
					aiRequestsTotal.WithLabelValues(c.model, "error_chunk_handler").Inc()
					return responseTextBuilder.String(), usageInfo, fmt.Errorf("%w: chunk handler failed: %v", models.ErrAIGenerationFailed, err)
				}
			}
		}
	}

	duration := time.Since(startTime)
	fullText := responseTextBuilder.String()

	if finalUsage.TotalTokens > 0 {
		usageInfo = usageFromOpenAI(finalUsage)
	} else {
		// Estimate with the tokenizer when the provider omits usage.
		usageInfo = estimateUsage(c.model, systemPrompt+userPrompt, fullText)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success_stream").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())
	observeTokens(c.model, usageInfo)

	c.logger.Debug("Stream completed",
		zap.Duration("duration", duration),
		zap.Int("response_chars", len(fullText)),
		zap.Int("total_tokens", usageInfo.TotalTokens),
	)

	return fullText, usageInfo, nil
}

func (c *openAIClient) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: image prompt is empty", models.ErrAIGenerationFailed)
	}

	startTime := time.Now()
	resp, err := c.client.CreateImage(ctx, openaigo.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           openaigo.CreateImageSize1024x1024,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Image generation failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.imageModel, "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		aiRequestsTotal.WithLabelValues(c.imageModel, "error_empty_response").Inc()
		return nil, fmt.Errorf("%w: API returned no image data", models.ErrAIGenerationFailed)
	}

	imageData, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image payload: %v", models.ErrAIGenerationFailed, err)
	}

	aiRequestsTotal.WithLabelValues(c.imageModel, "success").Inc()
	aiRequestDuration.WithLabelValues(c.imageModel).Observe(duration.Seconds())
	c.logger.Info("Image generated", zap.Int("size_bytes", len(imageData)), zap.Duration("duration", duration))
	return imageData, nil
}

func (c *openAIClient) AnalyzeImage(ctx context.Context, instruction, imageURL string) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}
	model := c.visionModel
	if model == "" {
		model = c.model
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: model,
		Messages: []openaigo.ChatCompletionMessage{
			{
				Role: openaigo.ChatMessageRoleUser,
				MultiContent: []openaigo.ChatMessagePart{
					{
						Type: openaigo.ChatMessagePartTypeText,
						Text: instruction,
					},
					{
						Type: openaigo.ChatMessagePartTypeImageURL,
						ImageURL: &openaigo.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openaigo.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Vision analysis failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.WithLabelValues(model, "error_empty_response").Inc()
		return "", usageInfo, fmt.Errorf("%w: empty response received", models.ErrAIGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(model, "success").Inc()
	aiRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	usageInfo = usageFromOpenAI(resp.Usage)
	observeTokens(model, usageInfo)

	return resp.Choices[0].Message.Content, usageInfo, nil
}

func (c *openAIClient) GenerateObject(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: extraction prompt is empty", models.ErrAIGenerationFailed)
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: c.model,
		Messages: []openaigo.ChatCompletionMessage{
			{
				Role:    openaigo.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   "extraction",
				Schema: schema,
				Strict: true,
			},
		},
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Object generation failed", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return fmt.Errorf("%w: empty response received", models.ErrAIGenerationFailed)
	}

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		aiRequestsTotal.WithLabelValues(c.model, "error_invalid_json").Inc()
		return fmt.Errorf("%w: response is not valid JSON for the schema: %v", models.ErrAIGenerationFailed, err)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())
	observeTokens(c.model, usageFromOpenAI(resp.Usage))
	return nil
}

// --- Ollama Client Implementation ---

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func newOllamaClient(cfg AIClientConfig, logger *zap.Logger) (AIClient, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	// api.NewClient expects the base URL without the /v1 suffix.
	ollamaBaseURL := strings.TrimSuffix(cfg.BaseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama base URL '%s': %w", ollamaBaseURL, err)
	}

	client := api.NewClient(parsedURL, httpClient)
	logger.Info("Ollama client created",
		zap.String("base_url", ollamaBaseURL),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &ollamaClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(userPrompt) == "" {
		return "", usageInfo, fmt.Errorf("%w: user prompt is empty", models.ErrAIGenerationFailed)
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: buildOllamaMessages(systemPrompt, userPrompt),
		Stream:   boolPtr(false),
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return "", usageInfo, fmt.Errorf("%w: empty response received", models.ErrAIGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	usageInfo = UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeTokens(c.model, usageInfo)
	return resp.Message.Content, usageInfo, nil
}

func (c *ollamaClient) GenerateTextStream(ctx context.Context, systemPrompt, userPrompt string, chunkHandler func(string) error) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(userPrompt) == "" {
		return "", usageInfo, fmt.Errorf("%w: user prompt is empty", models.ErrAIGenerationFailed)
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: buildOllamaMessages(systemPrompt, userPrompt),
		Stream:   boolPtr(true),
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var responseTextBuilder strings.Builder
	var promptTokens, completionTokens int

	err := c.client.Chat(requestCtx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			responseTextBuilder.WriteString(resp.Message.Content)
			if chunkHandler != nil {
				if err := chunkHandler(resp.Message.Content); err != nil {
					return fmt.Errorf("chunk handler failed: %w", err)
				}
			}
		}
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		aiRequestsTotal.WithLabelValues(c.model, "error_stream").Inc()
		return responseTextBuilder.String(), usageInfo, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success_stream").Inc()
	usageInfo = UsageInfo{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	observeTokens(c.model, usageInfo)
	return responseTextBuilder.String(), usageInfo, nil
}

// GenerateImage is not available through the Ollama API.
func (c *ollamaClient) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	return nil, fmt.Errorf("%w: image generation is not supported by the ollama client", models.ErrAIGenerationFailed)
}

// AnalyzeImage is not available through the Ollama API: the client receives
// a public URL, while Ollama expects inline image bytes.
func (c *ollamaClient) AnalyzeImage(_ context.Context, _, _ string) (string, UsageInfo, error) {
	return "", UsageInfo{}, fmt.Errorf("%w: vision analysis is not supported by the ollama client", models.ErrAIGenerationFailed)
}

func (c *ollamaClient) GenerateObject(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: extraction prompt is empty", models.ErrAIGenerationFailed)
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: buildOllamaMessages("", prompt),
		Stream:   boolPtr(false),
		// Ollama accepts a JSON schema directly as the format constraint.
		Format: schema,
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return fmt.Errorf("%w: empty response received", models.ErrAIGenerationFailed)
	}

	if err := json.Unmarshal([]byte(resp.Message.Content), out); err != nil {
		aiRequestsTotal.WithLabelValues(c.model, "error_invalid_json").Inc()
		return fmt.Errorf("%w: response is not valid JSON for the schema: %v", models.ErrAIGenerationFailed, err)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return nil
}

// --- Helpers ---

func buildChatMessages(systemPrompt, userPrompt string) []openaigo.ChatCompletionMessage {
	messages := make([]openaigo.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleUser,
		Content: userPrompt,
	})
	return messages
}

func buildOllamaMessages(systemPrompt, userPrompt string) []api.Message {
	messages := make([]api.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: userPrompt})
	return messages
}

func usageFromOpenAI(usage openaigo.Usage) UsageInfo {
	return UsageInfo{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
}

// estimateUsage approximates token counts with the tokenizer for providers
// that do not return a usage block on streams.
func estimateUsage(model, promptText, completionText string) UsageInfo {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model for the tokenizer; leave counts at zero.
		return UsageInfo{}
	}
	promptTokens := len(tke.Encode(promptText, nil, nil))
	completionTokens := len(tke.Encode(completionText, nil, nil))
	return UsageInfo{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

func boolPtr(b bool) *bool { return &b }
