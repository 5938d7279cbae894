package main

import (
	"fmt"
	"log/slog"

	"github.com/ryosukesatoh/group-digest/internal/config"
	"github.com/ryosukesatoh/group-digest/internal/extractor"
	"github.com/ryosukesatoh/group-digest/internal/llm"
	"github.com/ryosukesatoh/group-digest/internal/novelty"
	"github.com/ryosukesatoh/group-digest/internal/publisher"
	"github.com/ryosukesatoh/group-digest/internal/runner"
	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

// app is the wired pipeline shared by every command.
type app struct {
	store  *novelty.Store
	runner *runner.Runner
	// web is set when digests are published to the web page.
	web *publisher.WebPublisher
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := novelty.New(cfg.Redis.URL,
		novelty.WithMode(novelty.Mode(cfg.Redis.Mode)),
		novelty.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	sums, err := summarizer.New(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	pub, web, err := buildPublisher(cfg.Publisher, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	style, _ := summarizer.ParseStyle(cfg.Summarizer.Style)

	attrs := []any{
		slog.String("novelty_mode", string(store.Mode())),
		slog.String("provider", string(sums.Primary())),
		slog.String("publisher", cfg.Publisher.Type),
	}

	var ex runner.Extractor
	if vision := buildVision(cfg); vision != nil {
		ex = extractor.New(vision,
			extractor.WithConcurrency(cfg.Vision.Concurrency),
			extractor.WithMaxTokens(cfg.Vision.MaxTokens),
			extractor.WithLogger(logger))
		if m, ok := vision.(interface{ Model() string }); ok {
			attrs = append(attrs, slog.String("vision_model", m.Model()))
		}
	} else {
		logger.Warn("no vision backend configured, screenshot captures will fail",
			slog.String("provider", cfg.Vision.Provider))
	}

	logger.Info("pipeline ready", attrs...)

	r := runner.New(store, ex, sums, pub,
		runner.WithStyle(style),
		runner.WithLogger(logger))

	return &app{store: store, runner: r, web: web}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildVision returns the model used to read screenshots. It reuses the
// credentials of the summarizer backend with the same name; nil means that
// backend is not configured.
func buildVision(cfg *config.Config) llm.Completer {
	p, _ := summarizer.ParseProvider(cfg.Vision.Provider)
	backend := cfg.Backend(string(p))
	if !backend.Configured() {
		return nil
	}

	model := cfg.Vision.Model
	if model == "" {
		model = backend.Model
	}

	if p == summarizer.ProviderOpenAI {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:    backend.APIKey,
			Model:     model,
			MaxTokens: cfg.Vision.MaxTokens,
			BaseURL:   backend.BaseURL,
		})
	}
	return llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:    backend.APIKey,
		Model:     model,
		MaxTokens: cfg.Vision.MaxTokens,
		BaseURL:   backend.BaseURL,
	})
}

func buildPublisher(cfg config.PublisherConfig, logger *slog.Logger) (publisher.Publisher, *publisher.WebPublisher, error) {
	switch cfg.Type {
	case "stdout":
		return publisher.NewStdoutPublisher(), nil, nil
	case "email":
		return publisher.NewEmailPublisher(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.Username,
			cfg.Email.Password,
			cfg.Email.From,
			cfg.Email.To,
		), nil, nil
	case "web":
		web := publisher.NewWebPublisher(cfg.Web.Addr, logger)
		return web, web, nil
	case "discord":
		return publisher.NewDiscordPublisher(cfg.Discord.WebhookURL), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown publisher type: %s", cfg.Type)
	}
}
