// Package operation provides the Operation aggregate for tracking
// long-running remote video generation jobs. It includes the state machine,
// the in-memory store, the result extractor and the tracking service that
// polls the upstream until an operation reaches a terminal state.
package operation

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/example/veo-relay/internal/operation/id"
)

// Status represents the current state of an Operation.
type Status string

const (
	// StatusProcessing indicates the remote job is still running.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the remote job finished with a video.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the remote job finished without a usable video.
	StatusFailed Status = "failed"
	// StatusTimedOut indicates polling exhausted the attempt cap.
	StatusTimedOut Status = "timeout"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// All terminal states are absorbing.
var validTransitions = map[Status][]Status{
	StatusProcessing: {StatusCompleted, StatusFailed, StatusTimedOut},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusTimedOut:   {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Params holds the original generation request parameters.
// Immutable once the operation is created.
type Params struct {
	// Prompt is the text describing the video to generate.
	Prompt string
	// AudioPrompt is the optional secondary prompt for the audio track.
	AudioPrompt string
	// DurationSeconds is the requested video duration.
	DurationSeconds int
	// AspectRatio is the requested aspect ratio, e.g. "16:9".
	AspectRatio string
}

// Operation represents one tracked long-running generation job.
// The id is generated locally and is the only handle clients ever see;
// the remote operation name stays server-side in RemoteRef.
type Operation struct {
	mu sync.RWMutex

	// ID is the unique client-facing identifier for this operation.
	ID string
	// Status is the current operation state.
	Status Status
	// RemoteRef is the upstream operation name this record tracks.
	RemoteRef string
	// Params are the original generation parameters.
	Params Params
	// ArtifactRef locates the finished video at the upstream.
	// Set only when Status is completed.
	ArtifactRef string
	// ArchiveURL is the archived copy's URL, if the artifact was archived.
	ArchiveURL string
	// ResultMeta is the raw upstream payload from the final poll,
	// retained for diagnostics.
	ResultMeta json.RawMessage
	// Error contains the failure reason if the operation failed.
	Error string
	// CreatedAt is when the operation was created.
	CreatedAt time.Time
	// UpdatedAt is when the operation was last updated.
	UpdatedAt time.Time
	// CompletedAt is when the operation reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Operation in processing state tracking the given
// remote operation name.
func New(remoteRef string, params Params) *Operation {
	now := time.Now()
	return &Operation{
		ID:        id.Generate(),
		Status:    StatusProcessing,
		RemoteRef: remoteRef,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the operation status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed; in
// particular, terminal states never change again.
func (o *Operation) TransitionTo(status Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transitionLocked(status)
}

func (o *Operation) transitionLocked(status Status) error {
	if !canTransition(o.Status, status) {
		return ErrInvalidTransition
	}

	o.Status = status
	o.UpdatedAt = time.Now()
	if status.IsTerminal() {
		o.CompletedAt = o.UpdatedAt
	}

	return nil
}

// Complete transitions the operation to completed state, recording the
// artifact reference and the raw upstream payload.
func (o *Operation) Complete(artifactRef string, meta json.RawMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	o.ArtifactRef = artifactRef
	o.ResultMeta = meta
	return nil
}

// Fail transitions the operation to failed state with a reason, keeping the
// raw upstream payload for diagnostics.
func (o *Operation) Fail(reason string, meta json.RawMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.transitionLocked(StatusFailed); err != nil {
		return err
	}
	o.Error = reason
	o.ResultMeta = meta
	return nil
}

// Timeout transitions the operation to timeout state.
func (o *Operation) Timeout() error {
	return o.TransitionTo(StatusTimedOut)
}

// SetArchiveURL records the archived copy's URL.
func (o *Operation) SetArchiveURL(url string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ArchiveURL = url
	o.UpdatedAt = time.Now()
}

// GetStatus returns the current operation status (thread-safe).
func (o *Operation) GetStatus() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Status
}

// IsTerminal returns true if the operation is in a terminal state.
func (o *Operation) IsTerminal() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Status.IsTerminal()
}

// Clone creates a deep copy of the operation for safe reads.
func (o *Operation) Clone() *Operation {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var meta json.RawMessage
	if o.ResultMeta != nil {
		meta = make(json.RawMessage, len(o.ResultMeta))
		copy(meta, o.ResultMeta)
	}

	return &Operation{
		ID:          o.ID,
		Status:      o.Status,
		RemoteRef:   o.RemoteRef,
		Params:      o.Params,
		ArtifactRef: o.ArtifactRef,
		ArchiveURL:  o.ArchiveURL,
		ResultMeta:  meta,
		Error:       o.Error,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		CompletedAt: o.CompletedAt,
	}
}
