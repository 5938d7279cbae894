package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIURL is the Chat Completions endpoint. Any OpenAI compatible
// server can be used by pointing BaseURL at it.
const DefaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Timeout   time.Duration
}

// OpenAIClient calls an OpenAI style chat completions API.
type OpenAIClient struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &OpenAIClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		baseURL:   cfg.BaseURL,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Either a plain string or a list of content parts.
	Content any `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends req as an optional system message followed by one user message.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}

	var content any = req.Prompt
	if len(req.Images) > 0 {
		parts := make([]chatPart, 0, len(req.Images)+1)
		parts = append(parts, chatPart{Type: "text", Text: req.Prompt})
		for _, img := range req.Images {
			parts = append(parts, chatPart{Type: "image_url", ImageURL: &chatImageURL{URL: img.DataURL()}})
		}
		content = parts
	}
	messages = append(messages, chatMessage{Role: "user", Content: content})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{Provider: "openai", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return "", fmt.Errorf("openai: failed to parse response: %w", err)
	}

	if chatResp.Error != nil || resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Provider: "openai", StatusCode: resp.StatusCode}
		if chatResp.Error != nil {
			apiErr.Type = chatResp.Error.Type
			apiErr.Message = chatResp.Error.Message
		}
		return "", apiErr
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	return text, nil
}
