package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Static errors for Veo client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is provided.
	ErrAPIKeyNotSet = errors.New("veo: API key is required")
	// ErrModelRequired is returned when the model name is not provided.
	ErrModelRequired = errors.New("veo: model is required")
	// ErrOperationNameRequired is returned when the operation name is not provided.
	ErrOperationNameRequired = errors.New("veo: operation name is required")
	// ErrNoOperationName is returned when the submit response contains no operation name.
	ErrNoOperationName = errors.New("veo: submit failed: no operation name returned")
	// ErrArtifactURIRequired is returned when the artifact URI is not provided.
	ErrArtifactURIRequired = errors.New("veo: artifact URI is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("veo: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("veo: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("veo: request failed")
)

// Client defines the interface for interacting with the upstream video
// generation API.
type Client interface {
	// Submit starts a generation job and returns the remote operation name.
	Submit(ctx context.Context, req SubmitRequest) (name string, err error)

	// Poll checks the status of a remote operation. An unfinished operation
	// is a normal Done=false result, not an error.
	Poll(ctx context.Context, name string) (PollResult, error)

	// Download opens the finished video for streaming.
	Download(ctx context.Context, uri string) (*Artifact, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the upstream API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new Veo HTTP client for the given model.
// The API key can be set via the WithAPIKey option. If not provided, it is
// resolved from GEMINI_API_KEY, GOOGLE_API_KEY or VEO_API_KEY.
func NewClient(model string, opts ...ClientOption) (*HTTPClient, error) {
	if model == "" {
		return nil, ErrModelRequired
	}

	c := &HTTPClient{
		model:       model,
		baseURL:     "https://generativelanguage.googleapis.com/v1beta",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	// Apply options first to allow WithAPIKey to set the API key
	for _, opt := range opts {
		opt(c)
	}

	// If API key was not set via option, try the environment fallback chain
	if c.apiKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "VEO_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				c.apiKey = v
				break
			}
		}
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Submit starts a generation job and returns the remote operation name.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	// Apply defaults if not set
	if req.DurationSeconds == 0 {
		req.DurationSeconds = 8
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}

	reqBody := predictRequest{
		Instances: []predictInstance{
			{
				Prompt:      req.Prompt,
				AudioPrompt: req.AudioPrompt,
			},
		},
		Parameters: predictParameters{
			DurationSeconds: req.DurationSeconds,
			AspectRatio:     req.AspectRatio,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("veo: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.model)

	var resp operationResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.Name == "" {
		return "", ErrNoOperationName
	}

	return resp.Name, nil
}

// Poll checks the status of a remote operation.
func (c *HTTPClient) Poll(ctx context.Context, name string) (PollResult, error) {
	if name == "" {
		return PollResult{}, ErrOperationNameRequired
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimPrefix(name, "/"))

	raw, err := c.doRawWithRetry(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PollResult{}, err
	}

	var resp operationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PollResult{}, fmt.Errorf("veo: unmarshal operation: %w", err)
	}

	result := PollResult{
		Done: resp.Done,
		Raw:  raw,
	}
	if resp.Error != nil {
		result.Err = resp.Error.Message
	}

	return result, nil
}

// Download opens the finished video for streaming. The artifact URI may be
// absolute or a path relative to the API base (e.g. "files/abc:download").
func (c *HTTPClient) Download(ctx context.Context, uri string) (*Artifact, error) {
	if uri == "" {
		return nil, ErrArtifactURIRequired
	}

	url := c.resolveArtifactURL(uri)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("veo: create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("veo: download request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	return &Artifact{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}

// resolveArtifactURL makes the artifact URI absolute and ensures the media
// download query parameter is present.
func (c *HTTPClient) resolveArtifactURL(uri string) string {
	url := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		url = fmt.Sprintf("%s/%s", c.baseURL, strings.TrimPrefix(uri, "/"))
	}
	if !strings.Contains(url, "alt=media") {
		if strings.Contains(url, "?") {
			url += "&alt=media"
		} else {
			url += "?alt=media"
		}
	}
	return url
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry
// and decodes the JSON response into result.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	raw, err := c.doRawWithRetry(ctx, method, url, body)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("veo: unmarshal response: %w", err)
		}
	}
	return nil
}

// doRawWithRetry performs an HTTP request with exponential backoff retry and
// returns the raw response body.
func (c *HTTPClient) doRawWithRetry(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("veo: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		raw, err := c.doRequest(ctx, method, url, body)
		if err == nil {
			return raw, nil
		}

		// Check if error is retryable
		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("veo: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("veo: create request: %w", err)
	}

	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("veo: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("veo: read response: %w", err)}
	}

	// Handle non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == 429 {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		// Other errors are not retryable
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
