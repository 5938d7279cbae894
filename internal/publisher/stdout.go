package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

// StdoutPublisher prints the digest to stdout.
type StdoutPublisher struct {
	out io.Writer
}

func NewStdoutPublisher() *StdoutPublisher {
	return &StdoutPublisher{out: os.Stdout}
}

func (p *StdoutPublisher) Publish(_ context.Context, digest *summarizer.Digest) error {
	w := p.out
	if w == nil {
		w = os.Stdout
	}

	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, digestTitle(digest))
	fmt.Fprintf(w, "Date: %s\n", digest.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Posts: %d (%s, %s)\n", digest.PostCount, digest.Provider, digest.Style)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimSpace(digest.Markdown))
	fmt.Fprintln(w)
	_, err := fmt.Fprintln(w, rule)
	return err
}
