package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryosukesatoh/group-digest/internal/config"
	"github.com/ryosukesatoh/group-digest/internal/llm"
	"github.com/ryosukesatoh/group-digest/internal/post"
)

// Capture is one group's worth of input waiting to be summarized: posts read
// from the page, screenshots of it, or both.
type Capture struct {
	GroupName   string      `json:"groupName"`
	Posts       []post.Post `json:"posts,omitempty"`
	Screenshots []string    `json:"screenshots,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Style       string      `json:"style,omitempty"`

	// Source identifies where the capture came from, for logs and Ack.
	Source string `json:"-"`
}

// Images decodes the capture's screenshots.
func (c *Capture) Images() ([]llm.Image, error) {
	images := make([]llm.Image, 0, len(c.Screenshots))
	for i, s := range c.Screenshots {
		img, err := llm.ParseImage(s)
		if err != nil {
			return nil, fmt.Errorf("screenshot %d: %w", i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// Fetcher is a source of captures for scheduled runs.
type Fetcher interface {
	// Fetch returns the captures that are ready to process.
	Fetch(ctx context.Context) ([]*Capture, error)
	// Ack records the result of processing a capture; a nil err marks it done.
	Ack(c *Capture, err error) error
}

// New creates a new fetcher based on the configuration
func New(cfg *config.Config) (Fetcher, error) {
	if cfg.Inbox.Dir == "" {
		return nil, ErrNoInbox
	}
	return NewInboxFetcher(cfg.Inbox.Dir, nil)
}

// ErrNoInbox is returned when scheduled mode is used without an inbox directory.
var ErrNoInbox = errors.New("fetcher: inbox.dir is not configured")
