package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// InboxFetcher reads capture files (*.json) from a directory. Processed files
// are moved to done/ and rejected ones to failed/, so each capture is
// summarized at most once.
type InboxFetcher struct {
	dir    string
	logger *slog.Logger
}

// NewInboxFetcher creates the inbox and its done/failed subdirectories.
func NewInboxFetcher(dir string, logger *slog.Logger) (*InboxFetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, d := range []string{dir, filepath.Join(dir, doneDir), filepath.Join(dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("fetcher: create %s: %w", d, err)
		}
	}
	return &InboxFetcher{dir: dir, logger: logger}, nil
}

// Fetch reads every capture in the inbox in file name order. Files that are
// not valid captures are moved to failed/ and skipped.
func (f *InboxFetcher) Fetch(ctx context.Context) ([]*Capture, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read inbox: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	captures := make([]*Capture, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(f.dir, name)
		c, err := readCapture(path)
		if err != nil {
			f.logger.Warn("invalid capture", slog.String("file", name), slog.String("error", err.Error()))
			if mvErr := f.move(path, failedDir); mvErr != nil {
				return nil, mvErr
			}
			continue
		}
		captures = append(captures, c)
	}
	return captures, nil
}

// Ack moves the capture to done/ or failed/.
func (f *InboxFetcher) Ack(c *Capture, err error) error {
	if err != nil {
		return f.move(c.Source, failedDir)
	}
	return f.move(c.Source, doneDir)
}

func (f *InboxFetcher) move(path, sub string) error {
	dst := filepath.Join(f.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("fetcher: move %s to %s: %w", filepath.Base(path), sub, err)
	}
	return nil
}

func readCapture(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	c.Source = path
	return &c, nil
}
