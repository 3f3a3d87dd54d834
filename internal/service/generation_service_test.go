package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ai-tools-server/internal/messaging"
	"ai-tools-server/internal/models"
	"ai-tools-server/internal/repository"
)

// fakeAIClient returns scripted responses without touching the network.
type fakeAIClient struct {
	text        string
	chunks      []string
	imageData   []byte
	objectJSON  string
	err         error
	lastPrompt  string
	lastSchema  json.RawMessage
	streamCalls int
}

func (f *fakeAIClient) GenerateText(_ context.Context, _, userPrompt string) (string, UsageInfo, error) {
	f.lastPrompt = userPrompt
	if f.err != nil {
		return "", UsageInfo{}, f.err
	}
	return f.text, UsageInfo{TotalTokens: 10}, nil
}

func (f *fakeAIClient) GenerateTextStream(_ context.Context, _, userPrompt string, chunkHandler func(string) error) (string, UsageInfo, error) {
	f.lastPrompt = userPrompt
	f.streamCalls++
	if f.err != nil {
		return "", UsageInfo{}, f.err
	}
	var full strings.Builder
	for _, chunk := range f.chunks {
		full.WriteString(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				return full.String(), UsageInfo{}, err
			}
		}
	}
	return full.String(), UsageInfo{TotalTokens: 10}, nil
}

func (f *fakeAIClient) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.imageData, nil
}

func (f *fakeAIClient) AnalyzeImage(_ context.Context, instruction, _ string) (string, UsageInfo, error) {
	f.lastPrompt = instruction
	if f.err != nil {
		return "", UsageInfo{}, f.err
	}
	return f.text, UsageInfo{TotalTokens: 10}, nil
}

func (f *fakeAIClient) GenerateObject(_ context.Context, prompt string, schema json.RawMessage, out any) error {
	f.lastPrompt = prompt
	f.lastSchema = schema
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.objectJSON), out)
}

func newTestService(t *testing.T, ai AIClient) (*GenerationService, repository.GenerationRepository) {
	t.Helper()
	logger := zap.NewNop()
	repo := repository.NewMemoryGenerationRepository(logger)
	storage := NewLocalFileStorage(t.TempDir(), "http://localhost:8080/files", logger)
	return NewGenerationService(repo, ai, storage, messaging.NoopPublisher{}, logger), repo
}

func TestChatRecordsGeneration(t *testing.T) {
	ai := &fakeAIClient{text: "Hello there"}
	svc, repo := newTestService(t, ai)

	generation, err := svc.Chat(context.Background(), "guest_abc", "Say hello")
	require.NoError(t, err)

	assert.Equal(t, models.KindChat, generation.Kind)
	assert.Equal(t, "Say hello", generation.Prompt)
	assert.Equal(t, "Hello there", generation.Content)
	assert.NotEmpty(t, generation.ID)
	assert.Nil(t, generation.Attributes)

	history, err := repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, generation.ID, history[0].ID)
}

func TestChatRejectsEmptyPrompt(t *testing.T) {
	svc, repo := newTestService(t, &fakeAIClient{})

	_, err := svc.Chat(context.Background(), "guest_abc", "   ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	history, err := repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatStreamConcatenatesChunks(t *testing.T) {
	ai := &fakeAIClient{chunks: []string{"Hi", " there", "!"}}
	svc, _ := newTestService(t, ai)

	var received []string
	generation, err := svc.ChatStream(context.Background(), "guest_abc", "Greet me", func(chunk string) error {
		received = append(received, chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there", "!"}, received)
	assert.Equal(t, "Hi there!", generation.Content)
	assert.Equal(t, 1, ai.streamCalls)
}

func TestFailedGenerationLeavesNoRecord(t *testing.T) {
	ai := &fakeAIClient{err: models.ErrAIGenerationFailed}
	svc, repo := newTestService(t, ai)

	_, err := svc.Chat(context.Background(), "guest_abc", "Say hello")
	assert.ErrorIs(t, err, models.ErrAIGenerationFailed)

	history, err := repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCancelledRequestIsNotRecorded(t *testing.T) {
	ai := &fakeAIClient{text: "too late"}
	svc, repo := newTestService(t, ai)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Chat(ctx, "guest_abc", "Say hello")
	assert.ErrorIs(t, err, context.Canceled)

	history, err := repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGenerateImageStoresFileAndURL(t *testing.T) {
	ai := &fakeAIClient{imageData: []byte("png-bytes")}
	svc, _ := newTestService(t, ai)

	generation, err := svc.GenerateImage(context.Background(), "guest_abc", "A red fox")
	require.NoError(t, err)

	assert.Equal(t, models.KindImage, generation.Kind)
	assert.True(t, strings.HasPrefix(generation.Content, "http://localhost:8080/files/generated/guest_abc/"))
	assert.True(t, strings.HasSuffix(generation.Content, ".png"))
}

func TestAnalyzeImageRecordsAttributes(t *testing.T) {
	ai := &fakeAIClient{text: "A sunny beach."}
	svc, _ := newTestService(t, ai)

	var progress []int
	generation, err := svc.AnalyzeImage(
		context.Background(),
		"guest_abc",
		"",
		"photo.jpg",
		strings.NewReader("jpeg-bytes"),
		int64(len("jpeg-bytes")),
		func(percent int) { progress = append(progress, percent) },
	)
	require.NoError(t, err)

	assert.Equal(t, models.KindVision, generation.Kind)
	assert.Equal(t, defaultVisionInstruction, generation.Prompt)
	assert.Equal(t, "A sunny beach.", generation.Content)
	require.NotNil(t, generation.Attributes)
	assert.Contains(t, generation.Attributes.ImageURL, "uploads/guest_abc/")
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestAnalyzeImageRequiresFile(t *testing.T) {
	svc, _ := newTestService(t, &fakeAIClient{})

	_, err := svc.AnalyzeImage(context.Background(), "guest_abc", "Describe", "photo.jpg", nil, 0, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestExtractObjectReturnsStructuredResult(t *testing.T) {
	ai := &fakeAIClient{objectJSON: `{
		"entities": [{"name": "Berlin", "type": "location", "context": "capital of Germany"}],
		"summary": "A note about Berlin.",
		"sentiment": "neutral"
	}`}
	svc, repo := newTestService(t, ai)

	extracted, generation, err := svc.ExtractObject(context.Background(), "guest_abc", "Berlin is the capital of Germany.")
	require.NoError(t, err)

	require.Len(t, extracted.Entities, 1)
	assert.Equal(t, "Berlin", extracted.Entities[0].Name)
	assert.Equal(t, "neutral", extracted.Sentiment)
	assert.NotNil(t, ai.lastSchema)

	assert.Equal(t, models.KindObject, generation.Kind)
	var roundTripped models.ExtractedObject
	require.NoError(t, json.Unmarshal([]byte(generation.Content), &roundTripped))
	assert.Equal(t, *extracted, roundTripped)

	history, err := repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestExtractObjectAbbreviatesRecordedPrompt(t *testing.T) {
	ai := &fakeAIClient{objectJSON: `{"entities": [], "summary": "s", "sentiment": "neutral"}`}
	svc, _ := newTestService(t, ai)

	// Short inputs are recorded whole, with the trailing ellipsis.
	_, generation, err := svc.ExtractObject(context.Background(), "guest_abc", "A short note.")
	require.NoError(t, err)
	assert.Equal(t, "A short note....", generation.Prompt)

	// Multibyte text past the cut must be truncated on a rune boundary.
	text := strings.Repeat("a", 99) + strings.Repeat("€", 8)
	_, generation, err = svc.ExtractObject(context.Background(), "guest_abc", text)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(generation.Prompt))
	assert.Equal(t, strings.Repeat("a", 99)+"€...", generation.Prompt)
	assert.Equal(t, 100, utf8.RuneCountInString(strings.TrimSuffix(generation.Prompt, "...")))
}

func TestConcurrentSameKindGenerationConflicts(t *testing.T) {
	ai := &fakeAIClient{text: "ok"}
	svc, _ := newTestService(t, ai)

	require.NoError(t, svc.flights.begin("guest_abc", models.KindChat))
	defer svc.flights.end("guest_abc", models.KindChat)

	_, err := svc.Chat(context.Background(), "guest_abc", "Say hello")
	assert.ErrorIs(t, err, models.ErrGenerationInFlight)

	_, err = svc.GenerateImage(context.Background(), "guest_abc", "A red fox")
	assert.NoError(t, err)
}

func TestDeleteIsOwnerScopedNoOpOnMissing(t *testing.T) {
	ai := &fakeAIClient{text: "Hello"}
	svc, repo := newTestService(t, ai)

	generation, err := svc.Chat(context.Background(), "guest_abc", "Say hello")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "guest_other", generation.ID))
	history, err := repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, svc.Delete(context.Background(), "guest_abc", generation.ID))
	history, err = repo.ListByOwner(context.Background(), "guest_abc")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, svc.Delete(context.Background(), "guest_abc", "missing-id"))
}
