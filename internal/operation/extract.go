package operation

import (
	"encoding/json"
	"errors"
)

// ErrNoVideoURI is returned when no known response shape yields a video URI.
var ErrNoVideoURI = errors.New("operation: no video URI in response")

// videoURIPaths lists the known locations of the video URI inside a raw
// operation payload, tried in order. The upstream API has changed its
// response schema across versions; adding support for a new shape means
// appending a path here.
var videoURIPaths = [][]any{
	// Current shape, with and without the LRO "response" envelope.
	{"response", "generateVideoResponse", "generatedSamples", 0, "video", "uri"},
	{"generateVideoResponse", "generatedSamples", 0, "video", "uri"},
	// Older shapes seen under "response" or "result".
	{"response", "generatedVideos", 0, "video", "uri"},
	{"response", "generatedVideos", 0, "uri"},
	{"result", "generatedVideos", 0, "video", "uri"},
	{"result", "generatedVideos", 0, "uri"},
}

// ExtractVideoURI locates the video URI inside a raw operation payload.
// Returns ErrNoVideoURI if none of the known shapes match; the caller
// decides whether that is terminal.
func ExtractVideoURI(raw json.RawMessage) (string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", ErrNoVideoURI
	}

	for _, path := range videoURIPaths {
		if uri, ok := lookupString(doc, path); ok && uri != "" {
			return uri, nil
		}
	}

	return "", ErrNoVideoURI
}

// lookupString walks a decoded JSON document along a path of string keys
// and integer indexes.
func lookupString(doc any, path []any) (string, bool) {
	cur := doc
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur, ok = m[key]
			if !ok {
				return "", false
			}
		case int:
			a, ok := cur.([]any)
			if !ok || key < 0 || key >= len(a) {
				return "", false
			}
			cur = a[key]
		default:
			return "", false
		}
	}

	s, ok := cur.(string)
	return s, ok
}
