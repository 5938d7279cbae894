package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	path := writeTempConfig(t, `
schedule: "30 7 * * *"
inbox:
  dir: /var/lib/group-digest/inbox
server:
  shared_secret: s3cret
  allowed_origins: ["chrome-extension://abc"]
  request_timeout: 45s
redis:
  url: redis://cache:6379/2
  mode: atomic
summarizer:
  provider: openai
  style: overview
  openai:
    api_key: test_api_key
publisher:
  type: stdout
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Schedule != "30 7 * * *" {
		t.Errorf("Expected schedule '30 7 * * *', got '%s'", cfg.Schedule)
	}
	if cfg.Inbox.Dir != "/var/lib/group-digest/inbox" {
		t.Errorf("Unexpected inbox dir '%s'", cfg.Inbox.Dir)
	}
	if cfg.Server.SharedSecret != "s3cret" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Unexpected server section: %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 45*time.Second {
		t.Errorf("Expected request timeout 45s, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Redis.URL != "redis://cache:6379/2" || cfg.Redis.Mode != "atomic" {
		t.Errorf("Unexpected redis section: %+v", cfg.Redis)
	}
	if cfg.PrimaryProvider() != "openai" {
		t.Errorf("Expected primary provider 'openai', got '%s'", cfg.PrimaryProvider())
	}
	if cfg.Summarizer.Style != "overview" {
		t.Errorf("Expected style 'overview', got '%s'", cfg.Summarizer.Style)
	}
	if cfg.Backend("openai").APIKey != "test_api_key" {
		t.Errorf("Expected openai api key, got '%s'", cfg.Backend("openai").APIKey)
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	path := writeTempConfig(t, `
summarizer:
  anthropic:
    api_key: test_api_key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"schedule", cfg.Schedule, "0 8 * * *"},
		{"log level", cfg.Log.Level, "info"},
		{"log format", cfg.Log.Format, "json"},
		{"server addr", cfg.Server.Addr, ":8080"},
		{"rate limit", cfg.Server.RateLimit, 5.0},
		{"request timeout", cfg.Server.RequestTimeout, 2 * time.Minute},
		{"max body", cfg.Server.MaxBodyBytes, "20M"},
		{"redis url", cfg.Redis.URL, "redis://localhost:6379/0"},
		{"redis mode", cfg.Redis.Mode, "check_then_mark"},
		{"provider", cfg.Summarizer.Provider, "anthropic"},
		{"style", cfg.Summarizer.Style, "list"},
		{"anthropic model", cfg.Summarizer.Anthropic.Model, "claude-sonnet-4-20250514"},
		{"anthropic max tokens", cfg.Summarizer.Anthropic.MaxTokens, 2048},
		{"openai model", cfg.Summarizer.OpenAI.Model, "gpt-4o"},
		{"vision provider", cfg.Vision.Provider, "anthropic"},
		{"vision concurrency", cfg.Vision.Concurrency, 4},
		{"publisher", cfg.Publisher.Type, "stdout"},
		{"web addr", cfg.Publisher.Web.Addr, ":8081"},
		{"smtp port", cfg.Publisher.Email.SMTPPort, 587},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Expected allowed origins [*], got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.RunOnStart {
		t.Error("Expected run_on_start to default to false")
	}
}

func TestPublisherDefaultsToEmailWhenSMTPConfigured(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	path := writeTempConfig(t, `
summarizer:
  anthropic:
    api_key: test_api_key
publisher:
  email:
    smtp_host: smtp.example.com
    from: digest@example.com
    to: ["me@example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Publisher.Type != "email" {
		t.Errorf("Expected publisher type email, got %q", cfg.Publisher.Type)
	}
}

func TestProviderEnvOverride(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	path := writeTempConfig(t, `
summarizer:
  provider: anthropic
  anthropic:
    api_key: a
  openai:
    api_key: o
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.PrimaryProvider() != "openai" {
		t.Errorf("Expected LLM_PROVIDER to win, got '%s'", cfg.PrimaryProvider())
	}
}

func TestPrimaryProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "openai"},
		{"OpenAI", "openai"},
		{"anthropic", "anthropic"},
		{"claude", "anthropic"},
		{"gemini", "anthropic"},
		{"", "anthropic"},
	}
	for _, tt := range tests {
		cfg := &Config{Summarizer: SummarizerConfig{Provider: tt.provider}}
		if got := cfg.PrimaryProvider(); got != tt.want {
			t.Errorf("PrimaryProvider(%q) = %q, expected %q", tt.provider, got, tt.want)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "missing primary api key",
			config: `
summarizer:
  provider: openai
  anthropic:
    api_key: a
`,
			wantErr: "summarizer.openai.api_key is required",
		},
		{
			name: "unresolved api key",
			config: `
summarizer:
  anthropic:
    api_key: ${GROUP_DIGEST_UNSET_KEY_12345}
`,
			wantErr: "summarizer.anthropic.api_key is required",
		},
		{
			name: "unsupported style",
			config: `
summarizer:
  style: haiku
  anthropic:
    api_key: a
`,
			wantErr: "unsupported summarizer style",
		},
		{
			name: "unsupported redis mode",
			config: `
redis:
  mode: eventual
summarizer:
  anthropic:
    api_key: a
`,
			wantErr: "unsupported redis mode",
		},
		{
			name: "unsupported vision provider",
			config: `
vision:
  provider: gemini
summarizer:
  anthropic:
    api_key: a
`,
			wantErr: "unsupported vision provider",
		},
		{
			name: "negative concurrency",
			config: `
vision:
  concurrency: -1
summarizer:
  anthropic:
    api_key: a
`,
			wantErr: "vision.concurrency",
		},
		{
			name: "unsupported log format",
			config: `
log:
  format: xml
summarizer:
  anthropic:
    api_key: a
`,
			wantErr: "unsupported log format",
		},
		{
			name: "unsupported publisher",
			config: `
publisher:
  type: fax
summarizer:
  anthropic:
    api_key: a
`,
			wantErr: "unsupported publisher type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.config))
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestBaseURLWithoutKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	path := writeTempConfig(t, `
summarizer:
  anthropic:
    base_url: http://localhost:9999/v1/messages
`)

	if _, err := Load(path); err != nil {
		t.Fatalf("Expected a custom endpoint to stand in for an api key, got: %v", err)
	}
}

func TestDiscordValidation(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	path := writeTempConfig(t, `
publisher:
  type: discord
summarizer:
  anthropic:
    api_key: a
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "webhook_url is required") {
		t.Errorf("Expected webhook_url error, got: %v", err)
	}
}

func TestEmailValidation(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	tests := []struct {
		name    string
		email   string
		wantErr string
	}{
		{
			name:    "missing smtp_host",
			email:   "    to: [\"me@example.com\"]\n    from: digest@example.com\n",
			wantErr: "smtp_host is required",
		},
		{
			name:    "missing to",
			email:   "    smtp_host: smtp.example.com\n    from: digest@example.com\n",
			wantErr: "email.to is required",
		},
		{
			name:    "missing from",
			email:   "    smtp_host: smtp.example.com\n    to: [\"me@example.com\"]\n",
			wantErr: "email.from is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := "publisher:\n  type: email\n  email:\n" + tt.email +
				"summarizer:\n  anthropic:\n    api_key: a\n"
			_, err := Load(writeTempConfig(t, config))
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("Expected 'failed to read' error, got: %v", err)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded_value")

	input := "value: ${TEST_VAR}"
	expanded := expandEnvVars(input)
	expected := "value: expanded_value"

	if expanded != expected {
		t.Errorf("Expected '%s', got '%s'", expected, expanded)
	}
}

func TestEnvVarExpansionUnset(t *testing.T) {
	os.Unsetenv("UNSET_VAR_12345")

	input := "value: ${UNSET_VAR_12345}"
	expanded := expandEnvVars(input)

	if expanded != input {
		t.Errorf("Expected unset var to remain as-is, got '%s'", expanded)
	}
	if !unresolved(expanded) {
		t.Error("Expected the reference to be reported as unresolved")
	}
}
