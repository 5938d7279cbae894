package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ryosukesatoh/group-digest/internal/retry"
	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

const (
	embedDescriptionLimit = 4096
	embedTitleLimit       = 256
	embedColor            = 0x1877F2
)

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordPublisher publishes digests to a Discord channel via webhook.
type DiscordPublisher struct {
	webhookURL  string
	client      *http.Client
	retryConfig retry.Config
}

// NewDiscordPublisher creates a new DiscordPublisher.
func NewDiscordPublisher(webhookURL string) *DiscordPublisher {
	return &DiscordPublisher{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.DefaultConfig(),
	}
}

// Publish sends the digest to Discord, split across as many embeds and
// messages as its length requires.
func (d *DiscordPublisher) Publish(ctx context.Context, digest *summarizer.Digest) error {
	batches := batchEmbeds(buildEmbeds(digest))

	for i, batch := range batches {
		err := retry.WithBackoff(ctx, d.retryConfig, func(ctx context.Context) error {
			return d.sendWebhook(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("discord: failed to send batch %d: %w", i+1, err)
		}

		// Delay between batches to avoid rate limits.
		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
	return nil
}

// buildEmbeds splits the digest markdown into embeds. The first carries the
// title; the last carries the footer.
func buildEmbeds(digest *summarizer.Digest) []discordEmbed {
	chunks := splitLines(digest.Markdown, embedDescriptionLimit)
	embeds := make([]discordEmbed, 0, len(chunks))

	for _, chunk := range chunks {
		embeds = append(embeds, discordEmbed{Description: chunk, Color: embedColor})
	}
	if len(embeds) == 0 {
		embeds = append(embeds, discordEmbed{Color: embedColor})
	}

	embeds[0].Title = truncate(digestTitle(digest), embedTitleLimit)
	last := &embeds[len(embeds)-1]
	last.Footer = &discordEmbedFooter{
		Text: fmt.Sprintf("%d new posts | %s | %s", digest.PostCount, digest.Provider, digest.Date.Format("2006-01-02")),
	}
	last.Timestamp = digest.Date.Format(time.RFC3339)

	return embeds
}

// splitLines breaks s into chunks of at most max bytes, cutting at line
// boundaries. A single line longer than max is truncated.
func splitLines(s string, max int) []string {
	var chunks []string
	var cur strings.Builder

	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = truncate(line, max)
		if cur.Len() > 0 && cur.Len()+1+len(line) > max {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// batchEmbeds splits embeds into batches respecting Discord limits:
// max 10 embeds per message, max 6000 total characters per message.
func batchEmbeds(embeds []discordEmbed) [][]discordEmbed {
	var batches [][]discordEmbed
	var current []discordEmbed
	currentChars := 0

	for _, e := range embeds {
		ec := embedCharCount(e)

		if len(current) > 0 && (len(current) >= 10 || currentChars+ec > 6000) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, e)
		currentChars += ec
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// sendWebhook posts a batch of embeds to the Discord webhook.
func (d *DiscordPublisher) sendWebhook(ctx context.Context, embeds []discordEmbed) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: embeds})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return nil
}

// parseRetryAfter reads a Retry-After header given in (possibly fractional)
// seconds, as Discord sends it.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// truncate shortens s to max bytes, preferring a sentence boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := strings.ToValidUTF8(s[:max-3], "")
	if idx := strings.LastIndexAny(cut, ".!?"); idx > max/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

// embedCharCount returns the total character count of an embed for batching purposes.
func embedCharCount(e discordEmbed) int {
	n := len(e.Title) + len(e.Description)
	if e.Footer != nil {
		n += len(e.Footer.Text)
	}
	return n
}
