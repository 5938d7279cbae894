package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Provider names a summarization backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ParseProvider maps a configuration value to a Provider. "claude" is
// accepted as an alias for anthropic.
func ParseProvider(s string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anthropic", "claude":
		return ProviderAnthropic, true
	case "openai":
		return ProviderOpenAI, true
	}
	return "", false
}

// Style selects the shape of the digest.
type Style string

const (
	// StyleList produces one annotated line per post.
	StyleList Style = "list"
	// StyleOverview produces a thematic markdown overview with sections.
	StyleOverview Style = "overview"
)

// ParseStyle maps a configuration value to a Style.
func ParseStyle(s string) (Style, bool) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleList:
		return StyleList, true
	case StyleOverview:
		return StyleOverview, true
	}
	return "", false
}

// ErrSummarization is wrapped by every backend failure.
var ErrSummarization = errors.New("summarization failed")

// Summarizer turns a formatted block of posts into a markdown digest.
type Summarizer interface {
	Summarize(ctx context.Context, postsText string, style Style) (string, error)
	Name() Provider
}

// Digest is a produced summary together with what a sink needs to deliver it.
type Digest struct {
	GroupName string    `json:"group_name"`
	Date      time.Time `json:"date"`
	Markdown  string    `json:"markdown"`
	Style     Style     `json:"style"`
	Provider  Provider  `json:"provider"`
	PostCount int       `json:"post_count"`
}
