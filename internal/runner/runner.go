package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryosukesatoh/group-digest/internal/extractor"
	"github.com/ryosukesatoh/group-digest/internal/llm"
	"github.com/ryosukesatoh/group-digest/internal/metrics"
	"github.com/ryosukesatoh/group-digest/internal/post"
	"github.com/ryosukesatoh/group-digest/internal/publisher"
	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

// NoNewPostsMessage is reported when every post was already summarized.
const NoNewPostsMessage = "No new posts since last summary"

// NoveltyFilter keeps only the posts not summarized before and marks them seen.
type NoveltyFilter interface {
	FilterNew(ctx context.Context, posts []post.Post, groupName string) ([]post.Post, error)
}

// Extractor reads posts off screenshots.
type Extractor interface {
	Extract(ctx context.Context, screenshots []llm.Image) (*extractor.Result, error)
}

// Summarizers picks the summarization backend for a request.
type Summarizers interface {
	Resolve(choice string) summarizer.Summarizer
}

// Request is one summarization job.
type Request struct {
	GroupName   string
	Posts       []post.Post
	Screenshots []llm.Image
	// Provider and Style override the configured defaults when set.
	Provider string
	Style    string
}

// Outcome is the result of a run as reported to the caller. A short circuit
// is a success with PostCount 0 and a Message.
type Outcome struct {
	Success        bool   `json:"success"`
	Summary        string `json:"summary,omitempty"`
	PostCount      *int   `json:"postCount,omitempty"`
	TotalExtracted *int   `json:"totalExtracted,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	Stage          Stage  `json:"stage,omitempty"`
	Provider       string `json:"provider,omitempty"`
	RunID          string `json:"runId"`

	// Failure is set when Success is false.
	Failure *Error `json:"-"`
}

// Runner orchestrates the extract -> filter -> summarize -> publish pipeline.
type Runner struct {
	novelty     NoveltyFilter
	extractor   Extractor
	summarizers Summarizers
	publisher   publisher.Publisher
	style       summarizer.Style
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithStyle sets the digest style used when a request does not name one.
func WithStyle(s summarizer.Style) Option {
	return func(r *Runner) {
		if s != "" {
			r.style = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source used to date digests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. ex may be nil, in which case requests carrying
// screenshots fail at extraction.
func New(nf NoveltyFilter, ex Extractor, sums Summarizers, pub publisher.Publisher, opts ...Option) *Runner {
	r := &Runner{
		novelty:     nf,
		extractor:   ex,
		summarizers: sums,
		publisher:   pub,
		style:       summarizer.StyleList,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline once. It never returns nil; failures are
// reported in the Outcome with a typed *Error in Failure.
func (r *Runner) Run(ctx context.Context, req Request) *Outcome {
	runID := uuid.NewString()
	log := r.logger.With(slog.String("run_id", runID), slog.String("group", req.GroupName))
	out := &Outcome{RunID: runID}

	fail := func(kind Kind, stage Stage, err error) *Outcome {
		out.Success = false
		out.Stage = stage
		out.Error = err.Error()
		out.Failure = &Error{Kind: kind, Stage: stage, Err: err}
		metrics.RecordFailure(string(stage), string(kind))
		log.Error("run failed",
			slog.String("stage", string(stage)),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return out
	}

	// received
	style, err := r.validate(&req)
	if err != nil {
		return fail(KindInput, StageReceived, err)
	}
	log.Info("run received",
		slog.String("stage", string(StageReceived)),
		slog.Int("posts", len(req.Posts)),
		slog.Int("screenshots", len(req.Screenshots)))

	// extracting
	posts := req.Posts
	if len(req.Screenshots) > 0 {
		start := time.Now()
		extracted, err := r.extract(ctx, req.Screenshots)
		metrics.ObserveStage(string(StageExtracting), time.Since(start).Seconds())
		if err != nil {
			return fail(KindExtraction, StageExtracting, err)
		}
		log.Info("posts extracted",
			slog.String("stage", string(StageExtracting)),
			slog.Int("screenshots", len(req.Screenshots)),
			slog.Int("extracted", extracted.Extracted),
			slog.Int("failed", extracted.Failed))
		posts = append(append([]post.Post(nil), req.Posts...), extracted.Posts...)
	}

	// deduplicated
	posts = post.Dedupe(post.Normalize(posts))
	if len(posts) == 0 {
		if len(req.Screenshots) > 0 {
			return fail(KindExtraction, StageExtracting, errors.New("no posts found"))
		}
		return fail(KindInput, StageReceived, errors.New("no usable posts"))
	}
	out.TotalExtracted = intPtr(len(posts))
	metrics.AddPosts("extracted", len(posts))
	log.Info("posts deduplicated", slog.String("stage", string(StageDeduplicated)), slog.Int("posts", len(posts)))

	// novelty_filtered
	start := time.Now()
	fresh, err := r.novelty.FilterNew(ctx, posts, req.GroupName)
	metrics.ObserveStage(string(StageNoveltyFiltered), time.Since(start).Seconds())
	if err != nil {
		return fail(KindStore, StageNoveltyFiltered, err)
	}
	metrics.AddPosts("new", len(fresh))
	log.Info("posts filtered",
		slog.String("stage", string(StageNoveltyFiltered)),
		slog.Int("total", len(posts)),
		slog.Int("new", len(fresh)))

	if len(fresh) == 0 {
		out.Success = true
		out.PostCount = intPtr(0)
		out.Message = NoNewPostsMessage
		out.Stage = StageShortCircuited
		metrics.RecordRun(string(StageShortCircuited))
		log.Info("run short-circuited", slog.String("stage", string(StageShortCircuited)))
		return out
	}

	// summarized
	s := r.summarizers.Resolve(req.Provider)
	out.Provider = string(s.Name())
	start = time.Now()
	markdown, err := s.Summarize(ctx, post.FormatBlock(fresh), style)
	metrics.ObserveStage(string(StageSummarized), time.Since(start).Seconds())
	if err != nil {
		return fail(KindProvider, StageSummarized, err)
	}
	log.Info("posts summarized",
		slog.String("stage", string(StageSummarized)),
		slog.String("provider", out.Provider),
		slog.String("style", string(style)))

	// delivered
	digest := &summarizer.Digest{
		GroupName: req.GroupName,
		Date:      r.now(),
		Markdown:  markdown,
		Style:     style,
		Provider:  s.Name(),
		PostCount: len(fresh),
	}
	start = time.Now()
	err = r.publisher.Publish(ctx, digest)
	metrics.ObserveStage(string(StageDelivered), time.Since(start).Seconds())
	if err != nil {
		return fail(KindDelivery, StageDelivered, err)
	}

	out.Success = true
	out.Summary = markdown
	out.PostCount = intPtr(len(fresh))
	out.Stage = StageDelivered
	metrics.RecordRun(string(StageDelivered))
	log.Info("digest delivered", slog.String("stage", string(StageDelivered)), slog.Int("posts", len(fresh)))
	return out
}

// validate checks the request before any backend is contacted and returns
// the style to summarize with.
func (r *Runner) validate(req *Request) (summarizer.Style, error) {
	req.GroupName = strings.TrimSpace(req.GroupName)
	if req.GroupName == "" {
		return "", errors.New("missing groupName")
	}
	if len(req.Posts) == 0 && len(req.Screenshots) == 0 {
		return "", errors.New("missing posts or screenshots")
	}
	if req.Style == "" {
		return r.style, nil
	}
	style, ok := summarizer.ParseStyle(req.Style)
	if !ok {
		return "", fmt.Errorf("unsupported style %q", req.Style)
	}
	return style, nil
}

func (r *Runner) extract(ctx context.Context, screenshots []llm.Image) (*extractor.Result, error) {
	if r.extractor == nil {
		return nil, errors.New("screenshot extraction is not configured")
	}
	return r.extractor.Extract(ctx, screenshots)
}

func intPtr(n int) *int {
	return &n
}
