// Package veo provides an HTTP client for a Veo-style long-running video
// generation API (Google generative language API wire format).
package veo

import (
	"encoding/json"
	"io"
)

// SubmitRequest contains the generation parameters for a new job.
type SubmitRequest struct {
	Prompt          string // Prompt text describing the video
	AudioPrompt     string // Optional secondary prompt for the audio track
	DurationSeconds int    // Target video duration in seconds
	AspectRatio     string // Aspect ratio string, e.g. "16:9"
}

// DefaultSubmitRequest returns a request with the upstream defaults applied.
func DefaultSubmitRequest() SubmitRequest {
	return SubmitRequest{
		DurationSeconds: 8,
		AspectRatio:     "16:9",
	}
}

// PollResult contains the result of polling a long-running operation.
type PollResult struct {
	// Done reports whether the remote operation has finished. A false value
	// is a normal in-progress result, not an error.
	Done bool
	// Raw is the full operation payload as returned by the upstream.
	// Retained for result extraction and diagnostics.
	Raw json.RawMessage
	// Err is the upstream operation error message (only set when the
	// operation finished with an error field).
	Err string
}

// Artifact is a finished video opened for streaming. The caller owns Body
// and must close it.
type Artifact struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when the upstream does not report a length
}

// predictRequest is the request body for the :predictLongRunning endpoint.
type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

// predictInstance is a single generation instance in a predict request.
type predictInstance struct {
	Prompt      string `json:"prompt"`
	AudioPrompt string `json:"audioPrompt,omitempty"`
}

// predictParameters holds the generation parameters in a predict request.
type predictParameters struct {
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
}

// operationResponse is the upstream long-running operation envelope.
// Response is kept raw: its shape varies across upstream API versions and
// is interpreted by the result extractor, not here.
type operationResponse struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *operationError `json:"error,omitempty"`
}

// operationError is the upstream error detail inside an operation.
type operationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
