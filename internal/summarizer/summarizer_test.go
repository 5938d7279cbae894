package summarizer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/group-digest/internal/config"
	"github.com/ryosukesatoh/group-digest/internal/llm"
	"github.com/ryosukesatoh/group-digest/internal/post"
)

type fakeCompleter struct {
	reply string
	err   error
	got   llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.got = req
	return f.reply, f.err
}

func samplePostsText() string {
	return post.FormatBlock([]post.Post{
		{Author: "A", Text: "Meeting moved to Friday", Timestamp: "2h"},
		{Author: "Jane", Text: "Anyone have a spare ladder?", Timestamp: "Yesterday"},
	})
}

func TestAnthropicSummarizer_Prompt(t *testing.T) {
	f := &fakeCompleter{reply: "- **A** (2h) - The meeting moved."}
	s := NewAnthropicSummarizer(f)

	out, err := s.Summarize(context.Background(), samplePostsText(), StyleList)

	require.NoError(t, err)
	assert.Equal(t, "- **A** (2h) - The meeting moved.", out)
	assert.Empty(t, f.got.System)
	assert.Contains(t, f.got.Prompt, "**Author** (Time) - One sentence summary")
	assert.Contains(t, f.got.Prompt, samplePostsText())
}

func TestOpenAISummarizer_Prompt(t *testing.T) {
	f := &fakeCompleter{reply: "## Announcements\n- Meeting moved"}
	s := NewOpenAISummarizer(f)

	_, err := s.Summarize(context.Background(), samplePostsText(), StyleOverview)

	require.NoError(t, err)
	assert.Equal(t, overviewInstructions, f.got.System)
	assert.Equal(t, samplePostsText(), f.got.Prompt)
}

func TestStylesUseDifferentInstructions(t *testing.T) {
	assert.NotEqual(t, instructions(StyleList), instructions(StyleOverview))
	assert.Equal(t, listInstructions, instructions(""))
}

func TestSummarize_ErrorsWrapped(t *testing.T) {
	backendErr := &llm.APIError{Provider: "x", StatusCode: 401, Message: "bad key"}

	for _, s := range []Summarizer{
		NewAnthropicSummarizer(&fakeCompleter{err: backendErr}),
		NewOpenAISummarizer(&fakeCompleter{err: backendErr}),
	} {
		t.Run(string(s.Name()), func(t *testing.T) {
			_, err := s.Summarize(context.Background(), "x", StyleList)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSummarization))

			var apiErr *llm.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, 401, apiErr.StatusCode)
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	a := NewAnthropicSummarizer(&fakeCompleter{})
	o := NewOpenAISummarizer(&fakeCompleter{})

	r, err := NewRegistry(ProviderAnthropic, a, o)
	require.NoError(t, err)

	tests := []struct {
		choice string
		want   Provider
	}{
		{"", ProviderAnthropic},
		{"anthropic", ProviderAnthropic},
		{"claude", ProviderAnthropic},
		{"openai", ProviderOpenAI},
		{" OpenAI ", ProviderOpenAI},
		{"gemini", ProviderAnthropic},
	}
	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.choice).Name())
		})
	}
}

func TestRegistry_UnconfiguredChoiceFallsBack(t *testing.T) {
	r, err := NewRegistry(ProviderAnthropic, NewAnthropicSummarizer(&fakeCompleter{}))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, r.Resolve("openai").Name())
}

func TestNewRegistry_PrimaryRequired(t *testing.T) {
	_, err := NewRegistry(ProviderOpenAI, NewAnthropicSummarizer(&fakeCompleter{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedSummarizerType))
}

// Both backends, driven through the registry against fake HTTP APIs, return
// markdown for the same input without the caller knowing which one ran.
func TestProvidersInterchangeable(t *testing.T) {
	anthropicSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"- **A** (2h) - Meeting moved to Friday."}]}`))
	}))
	defer anthropicSrv.Close()

	openaiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"## Announcements\n- Meeting moved to Friday"}}]}`))
	}))
	defer openaiSrv.Close()

	cfg := &config.Config{
		Summarizer: config.SummarizerConfig{
			Provider:  "anthropic",
			Anthropic: config.ProviderConfig{APIKey: "k", Model: "m", BaseURL: anthropicSrv.URL},
			OpenAI:    config.ProviderConfig{APIKey: "k", Model: "m", BaseURL: openaiSrv.URL},
		},
	}
	r, err := New(cfg)
	require.NoError(t, err)

	text := samplePostsText()
	for _, choice := range []string{"anthropic", "openai"} {
		for _, style := range []Style{StyleList, StyleOverview} {
			out, err := r.Resolve(choice).Summarize(context.Background(), text, style)
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(out))
		}
	}
}

func TestNew_OnlyConfiguredBackends(t *testing.T) {
	cfg := &config.Config{
		Summarizer: config.SummarizerConfig{
			Provider: "openai",
			OpenAI:   config.ProviderConfig{APIKey: "k"},
		},
	}
	r, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, r.Primary())
	assert.Equal(t, ProviderOpenAI, r.Resolve("anthropic").Name())

	_, err = New(&config.Config{})
	require.Error(t, err)
}

func TestParseStyle(t *testing.T) {
	s, ok := ParseStyle("Overview")
	assert.True(t, ok)
	assert.Equal(t, StyleOverview, s)

	_, ok = ParseStyle("haiku")
	assert.False(t, ok)
}
