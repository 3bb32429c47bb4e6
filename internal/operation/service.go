package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/veo-relay/internal/storage"
	"github.com/example/veo-relay/internal/veo"
)

// Static errors for the tracking service.
var (
	// ErrNotConfigured is returned when no upstream credential is available.
	ErrNotConfigured = errors.New("operation: video generation is not configured, set GEMINI_API_KEY")
	// ErrNotReady is returned when streaming is requested before completion.
	ErrNotReady = errors.New("operation: video is not ready yet")
	// ErrNoArtifact is returned when streaming is requested for an operation
	// that finished without a video.
	ErrNoArtifact = errors.New("operation: operation finished without a video")
)

// Service tracks long-running generation operations. It submits jobs to the
// upstream, spawns one cancelable background poller per operation, applies
// the state machine on poll results and serves status reads from the store.
type Service struct {
	store    Store
	client   veo.Client // nil when the upstream credential is missing
	archiver storage.Archiver
	logger   *slog.Logger

	pollInterval time.Duration
	maxAttempts  int

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	watchers map[string]context.CancelFunc
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithPollInterval sets the background polling cadence.
func WithPollInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxPollAttempts sets the bounded attempt cap per operation.
func WithMaxPollAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithArchiver sets an archiver that receives a copy of each completed video.
func WithArchiver(a storage.Archiver) ServiceOption {
	return func(s *Service) {
		s.archiver = a
	}
}

// NewService creates a new tracking Service. The client may be nil when the
// upstream credential is missing; creation requests then fail with
// ErrNotConfigured while reads keep working.
func NewService(store Store, client veo.Client, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		store:        store,
		client:       client,
		logger:       logger,
		pollInterval: 1 * time.Second,
		maxAttempts:  300,
		rootCtx:      ctx,
		cancel:       cancel,
		watchers:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured returns true if the service can accept generation requests.
func (s *Service) Configured() bool {
	return s.client != nil
}

// Create submits a generation job to the upstream, registers a new
// operation in processing state and starts its background poller.
func (s *Service) Create(ctx context.Context, params Params) (*Operation, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	name, err := s.client.Submit(ctx, veo.SubmitRequest{
		Prompt:          params.Prompt,
		AudioPrompt:     params.AudioPrompt,
		DurationSeconds: params.DurationSeconds,
		AspectRatio:     params.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("submit generation job: %w", err)
	}

	op := New(name, params)
	if err := s.store.Save(ctx, op); err != nil {
		return nil, fmt.Errorf("save operation: %w", err)
	}

	s.logger.Info("operation created",
		slog.String("operation_id", op.ID),
		slog.String("remote_ref", name),
	)

	s.startWatcher(op.ID)

	return op.Clone(), nil
}

// Get returns the current state of an operation. Terminal operations are
// served from the store without any remote call. For a processing
// operation, one opportunistic poll is performed first so the caller sees
// the freshest state; transient poll errors fall back to the stored state.
func (s *Service) Get(ctx context.Context, id string) (*Operation, error) {
	op, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if op.Status.IsTerminal() {
		return op, nil
	}

	if _, err := s.pollOnce(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("opportunistic poll failed",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
	}

	return s.store.FindByID(ctx, id)
}

// List returns all known operations.
func (s *Service) List(ctx context.Context) ([]*Operation, error) {
	return s.store.List(ctx)
}

// Delete removes an operation and cancels its background poller.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.stopWatcher(id)
	return nil
}

// Stream opens the finished video of a completed operation for relaying.
// The caller owns the returned artifact body and must close it.
func (s *Service) Stream(ctx context.Context, id string) (*veo.Artifact, error) {
	op, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch op.Status {
	case StatusProcessing:
		return nil, ErrNotReady
	case StatusCompleted:
		if s.client == nil {
			return nil, ErrNotConfigured
		}
		artifact, err := s.client.Download(ctx, op.ArtifactRef)
		if err != nil {
			return nil, fmt.Errorf("download artifact: %w", err)
		}
		return artifact, nil
	default:
		return nil, ErrNoArtifact
	}
}

// StartJanitor periodically evicts terminal operations older than ttl.
func (s *Service) StartJanitor(ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = 1 * time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.rootCtx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.CleanupExpired(s.rootCtx, ttl)
				if err != nil {
					s.logger.Warn("operation cleanup failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if removed > 0 {
					s.logger.Info("expired operations evicted",
						slog.Int("count", removed),
					)
				}
			}
		}
	}()
}

// Close cancels all background pollers and the janitor and waits for them
// to stop.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// startWatcher spawns the background polling goroutine for an operation.
// There is never more than one watcher per operation id.
func (s *Service) startWatcher(id string) {
	ctx, cancel := context.WithCancel(s.rootCtx)

	s.mu.Lock()
	if _, exists := s.watchers[id]; exists {
		s.mu.Unlock()
		cancel()
		return
	}
	s.watchers[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.stopWatcher(id)
		s.watch(ctx, id)
	}()
}

// stopWatcher cancels and forgets the watcher for an operation, if any.
func (s *Service) stopWatcher(id string) {
	s.mu.Lock()
	cancel, ok := s.watchers[id]
	if ok {
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// watch is the background polling loop for one operation. It halts on a
// terminal state, on store eviction, on context cancellation, or when the
// attempt cap is exhausted (transitioning the operation to timeout).
func (s *Service) watch(ctx context.Context, id string) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		terminal, err := s.pollOnce(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Operation was evicted; nothing left to track.
				return
			}
			// Transient: log and retry on the next tick.
			s.logger.Warn("background poll failed",
				slog.String("operation_id", id),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		if terminal {
			return
		}

		if attempt >= s.maxAttempts {
			s.timeout(ctx, id, attempt)
			return
		}
	}
}

// timeout transitions a still-processing operation to the timeout state.
func (s *Service) timeout(ctx context.Context, id string, attempts int) {
	_, err := s.store.Update(ctx, id, func(op *Operation) error {
		if op.GetStatus().IsTerminal() {
			return nil
		}
		return op.Timeout()
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("timeout transition failed",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("operation timed out",
		slog.String("operation_id", id),
		slog.Int("attempts", attempts),
	)
}

// pollOnce performs a single remote poll for an operation and applies the
// state transition rule. It reports whether the operation is terminal
// afterwards. Remote errors are returned for the caller to treat as
// transient; they never fail the operation.
func (s *Service) pollOnce(ctx context.Context, id string) (bool, error) {
	op, err := s.store.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if op.Status.IsTerminal() {
		return true, nil
	}
	if s.client == nil {
		return false, ErrNotConfigured
	}

	res, err := s.client.Poll(ctx, op.RemoteRef)
	if err != nil {
		return false, fmt.Errorf("poll remote operation: %w", err)
	}
	if !res.Done {
		return false, nil
	}

	uri, extractErr := ExtractVideoURI(res.Raw)

	// transitioned records whether this call performed the terminal
	// transition; a concurrent poller may have won the race, in which case
	// the stored terminal state stands untouched.
	var transitioned bool
	updated, err := s.store.Update(ctx, id, func(cur *Operation) error {
		if cur.GetStatus().IsTerminal() {
			return nil
		}
		transitioned = true
		switch {
		case res.Err != "":
			return cur.Fail(res.Err, res.Raw)
		case extractErr != nil:
			return cur.Fail("no video URI in completed operation", res.Raw)
		default:
			return cur.Complete(uri, res.Raw)
		}
	})
	if err != nil {
		return false, err
	}

	if transitioned {
		s.logger.Info("operation finished",
			slog.String("operation_id", id),
			slog.String("status", string(updated.Status)),
		)
		if updated.Status == StatusCompleted && s.archiver != nil {
			s.archiveAsync(id, updated.ArtifactRef)
		}
	}

	return updated.Status.IsTerminal(), nil
}

// archiveAsync copies a completed video to the configured archiver in the
// background and records the archive URL on the operation.
func (s *Service) archiveAsync(id, artifactRef string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		artifact, err := s.client.Download(s.rootCtx, artifactRef)
		if err != nil {
			s.logger.Error("archive download failed",
				slog.String("operation_id", id),
				slog.String("error", err.Error()),
			)
			return
		}
		defer func() { _ = artifact.Body.Close() }()

		key := fmt.Sprintf("operations/%s.mp4", id)
		url, err := s.archiver.Archive(s.rootCtx, key, artifact.ContentType, artifact.Body)
		if err != nil {
			s.logger.Error("archive upload failed",
				slog.String("operation_id", id),
				slog.String("error", err.Error()),
			)
			return
		}

		if url != "" {
			if _, err := s.store.Update(s.rootCtx, id, func(op *Operation) error {
				op.SetArchiveURL(url)
				return nil
			}); err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Error("archive URL update failed",
					slog.String("operation_id", id),
					slog.String("error", err.Error()),
				)
				return
			}
		}

		s.logger.Info("artifact archived",
			slog.String("operation_id", id),
			slog.String("key", key),
		)
	}()
}
