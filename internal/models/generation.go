package models

import (
	"time"
)

// GenerationKind identifies which tool produced a generation.
type GenerationKind string

const (
	KindChat   GenerationKind = "chat"
	KindImage  GenerationKind = "image"
	KindVision GenerationKind = "vision"
	KindObject GenerationKind = "object"
)

// Valid reports whether k is one of the known generation kinds.
func (k GenerationKind) Valid() bool {
	switch k {
	case KindChat, KindImage, KindVision, KindObject:
		return true
	}
	return false
}

// GenerationAttributes carries the kind-specific auxiliary data of a
// generation. Only vision results set ImageURL; the pointer stays nil for
// every other kind.
type GenerationAttributes struct {
	ImageURL string `json:"imageUrl,omitempty"`
}

// Generation is one persisted result of a single successful tool invocation.
// Records are immutable after creation; the only mutation is deletion.
type Generation struct {
	ID         string                `json:"id"`
	OwnerID    string                `json:"ownerId"`
	Kind       GenerationKind        `json:"kind"`
	Prompt     string                `json:"prompt"`
	Content    string                `json:"content"`
	Attributes *GenerationAttributes `json:"attributes,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// ExtractedEntity is one named entity found by the object-extraction tool.
type ExtractedEntity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`
}

// ExtractedObject is the structured result of the object-extraction tool.
// Sentiment is one of "positive", "negative" or "neutral".
type ExtractedObject struct {
	Entities  []ExtractedEntity `json:"entities"`
	Summary   string            `json:"summary"`
	Sentiment string            `json:"sentiment"`
}
