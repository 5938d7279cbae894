// Package llm holds thin HTTP clients for the hosted language models the
// digest pipeline talks to.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Request is a single-turn completion request.
type Request struct {
	// System carries standing instructions. Backends without a system slot
	// prepend it to the prompt.
	System string
	Prompt string
	Images []Image
	// MaxTokens overrides the client's default when positive.
	MaxTokens int
}

// Completer sends one request to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a non-success answer from a model API.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d): %s - %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// HTTPStatus returns the status code the API answered with.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// Image is a decoded screenshot.
type Image struct {
	MediaType string
	Data      []byte
}

// Base64 returns the image bytes in standard base64.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Base64()
}

// ParseImage decodes a screenshot given either as a data: URL
// ("data:image/png;base64,....") or as bare base64. When no media type is
// declared it is sniffed from the bytes, falling back to image/jpeg.
func ParseImage(s string) (Image, error) {
	s = strings.TrimSpace(s)
	var mediaType string
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return Image{}, fmt.Errorf("llm: malformed data url")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return Image{}, fmt.Errorf("llm: data url is not base64 encoded")
		}
		mediaType = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}
	if s == "" {
		return Image{}, fmt.Errorf("llm: empty image")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return Image{}, fmt.Errorf("llm: invalid base64 image: %w", err)
		}
	}

	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
		if !strings.HasPrefix(mediaType, "image/") {
			mediaType = "image/jpeg"
		}
	}

	return Image{MediaType: mediaType, Data: data}, nil
}
