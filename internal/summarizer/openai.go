package summarizer

import (
	"context"
	"fmt"

	"github.com/ryosukesatoh/group-digest/internal/llm"
)

// OpenAISummarizer uses a chat completions API, with the instructions as the
// system message and the posts as the user message.
type OpenAISummarizer struct {
	client llm.Completer
}

func NewOpenAISummarizer(client llm.Completer) *OpenAISummarizer {
	return &OpenAISummarizer{client: client}
}

func (s *OpenAISummarizer) Name() Provider {
	return ProviderOpenAI
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, postsText string, style Style) (string, error) {
	out, err := s.client.Complete(ctx, llm.Request{
		System: instructions(style),
		Prompt: postsText,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w: %w", ErrSummarization, err)
	}
	return out, nil
}
