package summarizer

import (
	"context"
	"fmt"

	"github.com/ryosukesatoh/group-digest/internal/llm"
)

// AnthropicSummarizer uses the Anthropic Messages API, with instructions and
// posts sent together in the user turn.
type AnthropicSummarizer struct {
	client llm.Completer
}

func NewAnthropicSummarizer(client llm.Completer) *AnthropicSummarizer {
	return &AnthropicSummarizer{client: client}
}

func (s *AnthropicSummarizer) Name() Provider {
	return ProviderAnthropic
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, postsText string, style Style) (string, error) {
	out, err := s.client.Complete(ctx, llm.Request{Prompt: userPrompt(style, postsText)})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w: %w", ErrSummarization, err)
	}
	return out, nil
}
