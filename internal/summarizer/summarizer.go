package summarizer

import (
	"fmt"

	"github.com/ryosukesatoh/group-digest/internal/config"
	"github.com/ryosukesatoh/group-digest/internal/llm"
)

// Registry holds the configured backends and picks one per request.
type Registry struct {
	primary  Provider
	variants map[Provider]Summarizer
}

// NewRegistry builds a registry from the given backends. primary must be
// among them.
func NewRegistry(primary Provider, variants ...Summarizer) (*Registry, error) {
	r := &Registry{primary: primary, variants: make(map[Provider]Summarizer, len(variants))}
	for _, v := range variants {
		r.variants[v.Name()] = v
	}
	if _, ok := r.variants[primary]; !ok {
		return nil, fmt.Errorf("%w: primary provider %q is not configured", ErrUnsupportedSummarizerType, primary)
	}
	return r, nil
}

// Primary returns the default backend name.
func (r *Registry) Primary() Provider {
	return r.primary
}

// Resolve returns the backend named by choice, or the primary backend when
// choice is empty, unknown, or not configured.
func (r *Registry) Resolve(choice string) Summarizer {
	if p, ok := ParseProvider(choice); ok {
		if s, ok := r.variants[p]; ok {
			return s
		}
	}
	return r.variants[r.primary]
}

// New creates the summarizer registry from the configuration. Every backend
// with credentials (or a custom endpoint) is built; the primary one is
// required.
func New(cfg *config.Config) (*Registry, error) {
	primary, _ := ParseProvider(cfg.PrimaryProvider())

	var variants []Summarizer
	if a := cfg.Summarizer.Anthropic; a.Configured() {
		variants = append(variants, NewAnthropicSummarizer(llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:    a.APIKey,
			Model:     a.Model,
			MaxTokens: a.MaxTokens,
			BaseURL:   a.BaseURL,
		})))
	}
	if o := cfg.Summarizer.OpenAI; o.Configured() {
		variants = append(variants, NewOpenAISummarizer(llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:    o.APIKey,
			Model:     o.Model,
			MaxTokens: o.MaxTokens,
			BaseURL:   o.BaseURL,
		})))
	}

	return NewRegistry(primary, variants...)
}

// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
var ErrUnsupportedSummarizerType = fmt.Errorf("unsupported summarizer type")
