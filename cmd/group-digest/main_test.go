package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/group-digest/internal/config"
	"github.com/ryosukesatoh/group-digest/internal/llm"
	"github.com/ryosukesatoh/group-digest/internal/publisher"
)

// fakeAnthropic answers every Messages API call with the same text.
func fakeAnthropic(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"content": []map[string]string{{"type": "text", "text": reply}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func baseConfig(redisAddr, llmURL string) string {
	return `
log:
  level: "error"
  format: "text"
redis:
  url: "redis://` + redisAddr + `/0"
summarizer:
  provider: "anthropic"
  anthropic:
    api_key: "test_key"
    base_url: "` + llmURL + `"
publisher:
  type: "stdout"
`
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	llmSrv := fakeAnthropic(t, "- **A** (2h) - Meeting moved to Friday.")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, baseConfig(mr.Addr(), llmSrv.URL))

	capture := filepath.Join(dir, "capture.json")
	require.NoError(t, os.WriteFile(capture, []byte(
		`{"groupName":"Book Club","posts":[{"author":"A","text":"Meeting moved to Friday","timestamp":"2h"}]}`), 0o644))

	out, err := execute(t, "--config", cfgPath, "run", "--file", capture)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"success": true`)
	assert.Contains(t, out, `"postCount": 1`)

	members, err := mr.Members("seen:book_club")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	out, err = execute(t, "--config", cfgPath, "run", "--file", capture)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"postCount": 0`)
	assert.Contains(t, out, "No new posts since last summary")
}

func TestRunCommandFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	llmSrv := fakeAnthropic(t, "unused")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, baseConfig(mr.Addr(), llmSrv.URL))

	capture := filepath.Join(dir, "capture.json")
	require.NoError(t, os.WriteFile(capture, []byte(`{"groupName":"Book Club"}`), 0o644))

	out, err := execute(t, "--config", cfgPath, "run", "--file", capture)
	require.Error(t, err)
	assert.Contains(t, out, "missing posts or screenshots")
}

func TestScheduleOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	llmSrv := fakeAnthropic(t, "- **Jane** (1h) - Needs a ladder.")
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "neighbors.json"), []byte(
		`{"groupName":"Neighbors","posts":[{"author":"Jane","text":"Anyone have a ladder?","timestamp":"1h"}]}`), 0o644))

	cfgPath := writeConfig(t, dir, baseConfig(mr.Addr(), llmSrv.URL)+`
inbox:
  dir: "`+inbox+`"
`)

	out, err := execute(t, "--config", cfgPath, "schedule", "--once")
	require.NoError(t, err, out)

	assert.FileExists(t, filepath.Join(inbox, "done", "neighbors.json"))
	assert.NoFileExists(t, filepath.Join(inbox, "neighbors.json"))
}

func TestScheduleRequiresInbox(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, baseConfig("127.0.0.1:1", "http://127.0.0.1:1"))

	_, err := execute(t, "--config", cfgPath, "schedule", "--once")

	assert.ErrorContains(t, err, "inbox.dir")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("group", "Book Club"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"group":"Book Club"`)

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestBuildPublisher(t *testing.T) {
	tests := []struct {
		typ     string
		want    any
		wantWeb bool
	}{
		{"stdout", &publisher.StdoutPublisher{}, false},
		{"email", &publisher.EmailPublisher{}, false},
		{"web", &publisher.WebPublisher{}, true},
		{"discord", &publisher.DiscordPublisher{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			pub, web, err := buildPublisher(config.PublisherConfig{Type: tt.typ}, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, pub)
			assert.Equal(t, tt.wantWeb, web != nil)
		})
	}

	_, _, err := buildPublisher(config.PublisherConfig{Type: "fax"}, nil)
	assert.Error(t, err)
}

func TestBuildVision(t *testing.T) {
	cfg := &config.Config{
		Summarizer: config.SummarizerConfig{
			Anthropic: config.ProviderConfig{APIKey: "k", Model: "summary-model"},
		},
		Vision: config.VisionConfig{Provider: "claude", Model: "vision-model"},
	}

	v := buildVision(cfg)
	require.IsType(t, &llm.AnthropicClient{}, v)
	assert.Equal(t, "vision-model", v.(*llm.AnthropicClient).Model())

	cfg.Vision.Model = ""
	assert.Equal(t, "summary-model", buildVision(cfg).(*llm.AnthropicClient).Model())

	cfg.Vision.Provider = "openai"
	assert.Nil(t, buildVision(cfg), "openai has no credentials")

	cfg.Summarizer.OpenAI = config.ProviderConfig{APIKey: "k", Model: "gpt"}
	assert.IsType(t, &llm.OpenAIClient{}, buildVision(cfg))
}

func TestBuildAppLogsWiring(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	content := baseConfig(mr.Addr(), "http://127.0.0.1:1") + `
vision:
  model: "vision-model"
`
	content = strings.Replace(content, `url: "redis://`+mr.Addr()+`/0"`, `url: "redis://`+mr.Addr()+`/0"
  mode: "atomic"`, 1)
	cfg, err := config.Load(writeConfig(t, dir, content))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	a, err := buildApp(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	out := buf.String()
	assert.Contains(t, out, `"msg":"pipeline ready"`)
	assert.Contains(t, out, `"novelty_mode":"atomic"`)
	assert.Contains(t, out, `"provider":"anthropic"`)
	assert.Contains(t, out, `"vision_model":"vision-model"`)
}

func TestRootHelpListsCommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "run", "schedule"})
	assert.True(t, strings.Contains(cmd.Long, "schedule"))
}
