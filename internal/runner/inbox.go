package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryosukesatoh/group-digest/internal/fetcher"
)

// NewRequest builds a Request from a capture, decoding its screenshots.
func NewRequest(c *fetcher.Capture) (Request, error) {
	images, err := c.Images()
	if err != nil {
		return Request{}, err
	}
	return Request{
		GroupName:   c.GroupName,
		Posts:       c.Posts,
		Screenshots: images,
		Provider:    c.Provider,
		Style:       c.Style,
	}, nil
}

// InboxResult counts what a pass over the inbox did.
type InboxResult struct {
	Delivered      int
	ShortCircuited int
	Failed         int
}

// RunInbox runs the pipeline once for every capture the fetcher has ready and
// acknowledges each one. A failed capture does not stop the others.
func (r *Runner) RunInbox(ctx context.Context, f fetcher.Fetcher) (InboxResult, error) {
	var res InboxResult

	captures, err := f.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("runner: fetch failed: %w", err)
	}
	r.logger.Info("inbox fetched", slog.Int("captures", len(captures)))

	for _, c := range captures {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var runErr error
		req, err := NewRequest(c)
		if err != nil {
			runErr = &Error{Kind: KindInput, Stage: StageReceived, Err: err}
		} else {
			out := r.Run(ctx, req)
			switch {
			case out.Failure != nil:
				runErr = out.Failure
			case out.Stage == StageShortCircuited:
				res.ShortCircuited++
			default:
				res.Delivered++
			}
		}

		if runErr != nil {
			res.Failed++
			r.logger.Warn("capture failed",
				slog.String("source", c.Source),
				slog.String("error", runErr.Error()))
		}
		if err := f.Ack(c, runErr); err != nil {
			return res, fmt.Errorf("runner: ack %s: %w", c.Source, err)
		}
	}

	r.logger.Info("inbox processed",
		slog.Int("delivered", res.Delivered),
		slog.Int("short_circuited", res.ShortCircuited),
		slog.Int("failed", res.Failed))
	return res, nil
}
