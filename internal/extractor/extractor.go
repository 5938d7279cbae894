// Package extractor reads group posts off screenshots with a vision model.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ryosukesatoh/group-digest/internal/llm"
	"github.com/ryosukesatoh/group-digest/internal/metrics"
	"github.com/ryosukesatoh/group-digest/internal/post"
)

const extractionPrompt = `Extract all Facebook group posts visible in this screenshot. For each post, extract:
- author: The name of the person who posted
- text: The full text content of the post. If the post is a shared link with no body text, use the link's title or headline. If there is neither, describe it briefly (e.g., "Shared a photo").
- timestamp: When it was posted (e.g., "2h", "Yesterday at 3:45 PM")

Return ONLY a JSON array of posts, no other text. Example format:
[{"author": "John Smith", "text": "Post content here...", "timestamp": "2h"}]

If no posts are visible, return an empty array: []`

// ErrNoScreenshots is returned when Extract is called with nothing to read.
var ErrNoScreenshots = errors.New("extractor: no screenshots")

// Result is the outcome of extracting a batch of screenshots.
type Result struct {
	// Posts are normalized and deduplicated across screenshots.
	Posts []post.Post
	// Extracted is the number of records the model returned before cleanup.
	Extracted int
	// Failed counts screenshots whose reply held no usable JSON array.
	Failed int
}

// Extractor turns screenshots into posts.
type Extractor struct {
	vision      llm.Completer
	concurrency int
	maxTokens   int
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency bounds the number of screenshots processed at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxTokens caps the reply length of each vision call.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(vision llm.Completer, opts ...Option) *Extractor {
	e := &Extractor{vision: vision, concurrency: 4, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the vision model for the posts on every screenshot. A reply
// that cannot be parsed only loses that screenshot's posts; a failed model
// call aborts the whole batch.
func (e *Extractor) Extract(ctx context.Context, screenshots []llm.Image) (*Result, error) {
	if len(screenshots) == 0 {
		return nil, ErrNoScreenshots
	}

	perShot := make([][]post.Post, len(screenshots))
	parsed := make([]bool, len(screenshots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, img := range screenshots {
		g.Go(func() error {
			reply, err := e.vision.Complete(gctx, llm.Request{
				Prompt:    extractionPrompt,
				Images:    []llm.Image{img},
				MaxTokens: e.maxTokens,
			})
			if err != nil {
				return fmt.Errorf("extractor: screenshot %d: %w", i+1, err)
			}

			posts, err := parseReply(reply)
			if err != nil {
				metrics.ExtractionParseFailures.Inc()
				e.logger.Warn("screenshot parse failed",
					slog.Int("screenshot", i+1),
					slog.String("error", err.Error()))
				return nil
			}
			perShot[i] = posts
			parsed[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	var all []post.Post
	for i, posts := range perShot {
		if !parsed[i] {
			res.Failed++
			continue
		}
		res.Extracted += len(posts)
		all = append(all, posts...)
	}
	res.Posts = post.Dedupe(post.Normalize(all))

	e.logger.Info("screenshots extracted",
		slog.Int("screenshots", len(screenshots)),
		slog.Int("failed", res.Failed),
		slog.Int("extracted", res.Extracted),
		slog.Int("posts", len(res.Posts)))

	return res, nil
}

// parseReply pulls the post array out of a model reply.
func parseReply(reply string) ([]post.Post, error) {
	data, ok := FindArray(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var records []rawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	posts := make([]post.Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, post.Post{
			Author:    string(r.Author),
			Text:      string(r.Text),
			Timestamp: string(r.Timestamp),
		})
	}
	return posts, nil
}
