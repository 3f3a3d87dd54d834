package models

import "errors"

// Domain errors. Handlers map these to HTTP statuses in one place.
var (
	// Not found / ownership
	ErrNotFound = errors.New("resource not found")

	// Input validation
	ErrInvalidInput = errors.New("invalid input data")
	ErrInvalidKind  = errors.New("unknown generation kind")

	// External collaborators
	ErrAIGenerationFailed = errors.New("ai generation failed")
	ErrStorageFailed      = errors.New("file storage operation failed")

	// Submission guard: one in-flight generation per owner per tool.
	ErrGenerationInFlight = errors.New("generation is already in progress for this tool")

	// Auth
	ErrTokenInvalid = errors.New("token is invalid")

	ErrInternalServer = errors.New("internal server error")
)

// Error codes returned in JSON error bodies.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeValidation   = "validation_error"
	ErrCodeNotFound     = "not_found"
	ErrCodeInFlight     = "generation_in_flight"
	ErrCodeAIProvider   = "ai_provider_error"
	ErrCodeStorage      = "storage_error"
	ErrCodeTokenInvalid = "token_invalid"
	ErrCodeInternal     = "internal_error"
)
