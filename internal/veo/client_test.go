package veo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// clearKeyEnv unsets every credential variable the client reads.
func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "VEO_API_KEY"} {
		_ = os.Unsetenv(name)
	}
}

func setTestEnv(t *testing.T) {
	t.Helper()
	clearKeyEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestNewClient_MissingModel(t *testing.T) {
	setTestEnv(t)

	_, err := NewClient("")
	if !errors.Is(err, ErrModelRequired) {
		t.Errorf("expected ErrModelRequired, got %v", err)
	}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	clearKeyEnv(t)

	_, err := NewClient("veo-3.0-generate-preview")
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClient_EnvFallbackChain(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("VEO_API_KEY", "veo-key")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	client, err := NewClient("veo-3.0-generate-preview")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.apiKey != "google-key" {
		t.Errorf("expected GOOGLE_API_KEY to win over VEO_API_KEY, got %q", client.apiKey)
	}
}

func TestNewClient_WithAPIKeyOptionOverridesEnv(t *testing.T) {
	setTestEnv(t)

	client, err := NewClient("veo-3.0-generate-preview", WithAPIKey("explicit-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.apiKey != "explicit-key" {
		t.Errorf("expected apiKey to be 'explicit-key', got %q", client.apiKey)
	}
}

func newServerClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient("veo-3.0-generate-preview",
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithBaseBackoff(1*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestSubmit_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody predictRequest

	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "models/veo-3.0-generate-preview/operations/abc123",
		})
	})

	name, err := client.Submit(context.Background(), SubmitRequest{
		Prompt:          "a cat",
		AudioPrompt:     "purring",
		DurationSeconds: 8,
		AspectRatio:     "16:9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name != "models/veo-3.0-generate-preview/operations/abc123" {
		t.Errorf("unexpected operation name %q", name)
	}
	if gotPath != "/models/veo-3.0-generate-preview:predictLongRunning" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("expected API key header, got %q", gotKey)
	}
	if len(gotBody.Instances) != 1 || gotBody.Instances[0].Prompt != "a cat" {
		t.Errorf("unexpected instances %+v", gotBody.Instances)
	}
	if gotBody.Instances[0].AudioPrompt != "purring" {
		t.Errorf("unexpected audio prompt %q", gotBody.Instances[0].AudioPrompt)
	}
	if gotBody.Parameters.DurationSeconds != 8 || gotBody.Parameters.AspectRatio != "16:9" {
		t.Errorf("unexpected parameters %+v", gotBody.Parameters)
	}
}

func TestSubmit_AppliesDefaults(t *testing.T) {
	var gotBody predictRequest
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/abc"})
	})

	if _, err := client.Submit(context.Background(), SubmitRequest{Prompt: "a cat"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.Parameters.DurationSeconds != 8 {
		t.Errorf("expected default duration 8, got %d", gotBody.Parameters.DurationSeconds)
	}
	if gotBody.Parameters.AspectRatio != "16:9" {
		t.Errorf("expected default aspect ratio 16:9, got %q", gotBody.Parameters.AspectRatio)
	}
}

func TestSubmit_NoOperationName(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "a cat"})
	if !errors.Is(err, ErrNoOperationName) {
		t.Errorf("expected ErrNoOperationName, got %v", err)
	}
}

func TestSubmit_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "a cat"})
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls.Load())
	}
}

func TestSubmit_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/abc"})
	})

	name, err := client.Submit(context.Background(), SubmitRequest{Prompt: "a cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "operations/abc" {
		t.Errorf("unexpected name %q", name)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestSubmit_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	})

	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "a cat"})
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected wrapped ErrServerError, got %v", err)
	}
	// Initial attempt plus three retries
	if calls.Load() != 4 {
		t.Errorf("expected 4 calls, got %d", calls.Load())
	}
}

func TestPoll_InProgress(t *testing.T) {
	var gotPath string
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "models/veo/operations/abc",
			"done": false,
		})
	})

	res, err := client.Poll(context.Background(), "models/veo/operations/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Done {
		t.Error("expected done=false")
	}
	if gotPath != "/models/veo/operations/abc" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestPoll_DoneKeepsRawPayload(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"op","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"files/abc:download"}}]}}}`))
	})

	res, err := client.Poll(context.Background(), "op")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Done {
		t.Error("expected done=true")
	}

	var decoded map[string]any
	if err := json.Unmarshal(res.Raw, &decoded); err != nil {
		t.Fatalf("raw payload not valid JSON: %v", err)
	}
	if _, ok := decoded["response"]; !ok {
		t.Error("expected raw payload to carry the response field")
	}
}

func TestPoll_UpstreamOperationError(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"op","done":true,"error":{"code":8,"message":"quota exceeded"}}`))
	})

	res, err := client.Poll(context.Background(), "op")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Err != "quota exceeded" {
		t.Errorf("expected operation error message, got %q", res.Err)
	}
}

func TestPoll_MissingName(t *testing.T) {
	setTestEnv(t)
	client, err := NewClient("veo-3.0-generate-preview")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Poll(context.Background(), "")
	if !errors.Is(err, ErrOperationNameRequired) {
		t.Errorf("expected ErrOperationNameRequired, got %v", err)
	}
}

func TestDownload_Success(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("MP4DATA"))
	})

	artifact, err := client.Download(context.Background(), "files/abc:download")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer artifact.Body.Close()

	data, _ := io.ReadAll(artifact.Body)
	if string(data) != "MP4DATA" {
		t.Errorf("unexpected payload %q", data)
	}
	if artifact.ContentType != "video/mp4" {
		t.Errorf("unexpected content type %q", artifact.ContentType)
	}
	if artifact.ContentLength != int64(len("MP4DATA")) {
		t.Errorf("unexpected content length %d", artifact.ContentLength)
	}
	if gotPath != "/files/abc:download" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "alt=media" {
		t.Errorf("expected alt=media query, got %q", gotQuery)
	}
	if gotKey != "test-key" {
		t.Errorf("expected API key header, got %q", gotKey)
	}
}

func TestDownload_AbsoluteURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(srv.Close)

	// Base URL points elsewhere; the absolute artifact URI must win.
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wrong host", http.StatusNotFound)
	})

	artifact, err := client.Download(context.Background(), srv.URL+"/files/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer artifact.Body.Close()

	data, _ := io.ReadAll(artifact.Body)
	if string(data) != "payload" {
		t.Errorf("unexpected payload %q", data)
	}
}

func TestDownload_NotFound(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := client.Download(context.Background(), "files/abc:download")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed, got %v", err)
	}
}

func TestDownload_MissingURI(t *testing.T) {
	setTestEnv(t)
	client, err := NewClient("veo-3.0-generate-preview")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Download(context.Background(), "")
	if !errors.Is(err, ErrArtifactURIRequired) {
		t.Errorf("expected ErrArtifactURIRequired, got %v", err)
	}
}
