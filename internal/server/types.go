// Package server provides the HTTP server for the Veo relay API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateOperationRequest is the HTTP request body for starting a generation.
type CreateOperationRequest struct {
	// Prompt is the text describing the video to generate.
	Prompt string `json:"prompt" validate:"required"`
	// AudioPrompt is the optional secondary prompt for the audio track.
	AudioPrompt string `json:"audio_prompt,omitempty" validate:"omitempty,max=2048"`
	// DurationSeconds is the requested video duration.
	DurationSeconds int `json:"duration_seconds,omitempty" validate:"omitempty,min=1,max=60"`
	// AspectRatio is the requested aspect ratio.
	AspectRatio string `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=16:9 9:16 1:1"`
}

// CreateOperationResponse is the HTTP response after starting a generation.
type CreateOperationResponse struct {
	// ID is the unique identifier for the created operation.
	ID string `json:"id"`
	// Status is the initial operation status.
	Status string `json:"status"`
}

// OperationResponse is the HTTP response for reading an operation.
type OperationResponse struct {
	// ID is the unique identifier for the operation.
	ID string `json:"id"`
	// Status is the current operation status.
	Status string `json:"status"`
	// VideoURL is where the finished video can be fetched (if completed).
	VideoURL string `json:"video_url,omitempty"`
	// Error contains the failure reason if the operation failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the operation was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the operation reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OperationListResponse is the HTTP response for listing operations.
type OperationListResponse struct {
	// Operations is the list of known operations.
	Operations []OperationResponse `json:"operations"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Configured reports whether an upstream credential is available.
	Configured bool `json:"configured"`
}
