package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Schedule   string           `yaml:"schedule"`
	RunOnStart bool             `yaml:"run_on_start"`
	Inbox      InboxConfig      `yaml:"inbox"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Vision     VisionConfig     `yaml:"vision"`
	Publisher  PublisherConfig  `yaml:"publisher"`
}

type InboxConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	SharedSecret   string        `yaml:"shared_secret"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   string        `yaml:"max_body"`
}

type RedisConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

type SummarizerConfig struct {
	Provider  string         `yaml:"provider"`
	Style     string         `yaml:"style"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

// Configured reports whether the backend has credentials or a custom endpoint.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" || p.BaseURL != ""
}

type VisionConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	MaxTokens   int    `yaml:"max_tokens"`
	Concurrency int    `yaml:"concurrency"`
}

type PublisherConfig struct {
	Type    string        `yaml:"type"`
	Email   EmailConfig   `yaml:"email"`
	Web     WebConfig     `yaml:"web"`
	Discord DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// unresolved reports a value still holding a ${VAR} reference after expansion.
func unresolved(s string) bool {
	return envVarRegex.MatchString(s)
}

func setDefaults(cfg *Config) {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 5
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Server.MaxBodyBytes == "" {
		cfg.Server.MaxBodyBytes = "20M"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = "check_then_mark"
	}
	if cfg.Summarizer.Provider == "" {
		cfg.Summarizer.Provider = "anthropic"
	}
	if cfg.Summarizer.Style == "" {
		cfg.Summarizer.Style = "list"
	}
	if cfg.Summarizer.Anthropic.Model == "" {
		cfg.Summarizer.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Summarizer.Anthropic.MaxTokens == 0 {
		cfg.Summarizer.Anthropic.MaxTokens = 2048
	}
	if cfg.Summarizer.OpenAI.Model == "" {
		cfg.Summarizer.OpenAI.Model = "gpt-4o"
	}
	if cfg.Summarizer.OpenAI.MaxTokens == 0 {
		cfg.Summarizer.OpenAI.MaxTokens = 1024
	}
	if cfg.Vision.Provider == "" {
		cfg.Vision.Provider = "anthropic"
	}
	if cfg.Vision.MaxTokens == 0 {
		cfg.Vision.MaxTokens = 4096
	}
	if cfg.Vision.Concurrency == 0 {
		cfg.Vision.Concurrency = 4
	}
	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = "stdout"
		if cfg.Publisher.Email.SMTPHost != "" {
			cfg.Publisher.Type = "email"
		}
	}
	if cfg.Publisher.Web.Addr == "" {
		cfg.Publisher.Web.Addr = ":8081"
	}
	if cfg.Publisher.Email.SMTPPort == 0 {
		cfg.Publisher.Email.SMTPPort = 587
	}
}

// PrimaryProvider returns the summarizer backend used when a request does not
// name a known one. Unknown configured values fall back to anthropic.
func (c *Config) PrimaryProvider() string {
	switch strings.ToLower(c.Summarizer.Provider) {
	case "openai":
		return "openai"
	default:
		return "anthropic"
	}
}

// Backend returns the settings of a summarizer backend by name.
func (c *Config) Backend(name string) ProviderConfig {
	if strings.ToLower(name) == "openai" {
		return c.Summarizer.OpenAI
	}
	return c.Summarizer.Anthropic
}

func validate(cfg *Config) error {
	primary := cfg.PrimaryProvider()
	if p := cfg.Backend(primary); p.APIKey == "" || unresolved(p.APIKey) {
		if p.BaseURL == "" {
			return fmt.Errorf("config: summarizer.%s.api_key is required for the primary provider", primary)
		}
	}
	switch strings.ToLower(cfg.Summarizer.Style) {
	case "list", "overview":
	default:
		return fmt.Errorf("config: unsupported summarizer style %q (supported: list, overview)", cfg.Summarizer.Style)
	}
	switch cfg.Redis.Mode {
	case "check_then_mark", "atomic":
	default:
		return fmt.Errorf("config: unsupported redis mode %q (supported: check_then_mark, atomic)", cfg.Redis.Mode)
	}
	switch strings.ToLower(cfg.Vision.Provider) {
	case "anthropic", "claude", "openai":
	default:
		return fmt.Errorf("config: unsupported vision provider %q (supported: anthropic, openai)", cfg.Vision.Provider)
	}
	if cfg.Vision.Concurrency < 0 {
		return fmt.Errorf("config: vision.concurrency must not be negative")
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unsupported log format %q (supported: json, text)", cfg.Log.Format)
	}
	switch cfg.Publisher.Type {
	case "stdout", "email", "web", "discord":
	default:
		return fmt.Errorf("config: unsupported publisher type %q (supported: stdout, email, web, discord)", cfg.Publisher.Type)
	}
	if cfg.Publisher.Type == "discord" {
		if cfg.Publisher.Discord.WebhookURL == "" {
			return fmt.Errorf("config: publisher.discord.webhook_url is required for discord publisher")
		}
	}
	if cfg.Publisher.Type == "email" {
		if cfg.Publisher.Email.SMTPHost == "" {
			return fmt.Errorf("config: publisher.email.smtp_host is required for email publisher")
		}
		if len(cfg.Publisher.Email.To) == 0 {
			return fmt.Errorf("config: publisher.email.to is required for email publisher")
		}
		if cfg.Publisher.Email.From == "" {
			return fmt.Errorf("config: publisher.email.from is required for email publisher")
		}
	}
	return nil
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration. LLM_PROVIDER, when set, overrides
// summarizer.provider.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if p, ok := os.LookupEnv("LLM_PROVIDER"); ok && p != "" {
		cfg.Summarizer.Provider = p
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
