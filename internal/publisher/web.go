package publisher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/ryosukesatoh/group-digest/internal/post"
	"github.com/ryosukesatoh/group-digest/internal/summarizer"
)

// WebPublisher keeps the latest digest of every group and serves them as
// HTML pages.
type WebPublisher struct {
	addr   string
	server *http.Server
	logger *slog.Logger

	mu     sync.RWMutex
	latest map[string]*summarizer.Digest
}

func NewWebPublisher(addr string, logger *slog.Logger) *WebPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	wp := &WebPublisher{
		addr:   addr,
		logger: logger,
		latest: make(map[string]*summarizer.Digest),
	}
	wp.server = &http.Server{
		Addr:    addr,
		Handler: wp.Handler(),
	}
	return wp
}

// Handler serves the group index at "/" and one group's digest at "/{group}".
func (wp *WebPublisher) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", wp.handleIndex)
	mux.HandleFunc("GET /{group}", wp.handleGroup)
	return mux
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		wp.logger.Info("web publisher listening", slog.String("addr", ln.Addr().String()))
		if err := wp.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wp.logger.Error("web publisher stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.server.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, digest *summarizer.Digest) error {
	key := post.GroupKey(digest.GroupName)
	wp.mu.Lock()
	wp.latest[key] = digest
	wp.mu.Unlock()
	wp.logger.Info("web publisher updated",
		slog.String("group", digest.GroupName),
		slog.String("path", "/"+key))
	return nil
}

// Latest returns the most recent digest published for a group.
func (wp *WebPublisher) Latest(groupName string) (*summarizer.Digest, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	d, ok := wp.latest[post.GroupKey(groupName)]
	return d, ok
}

func (wp *WebPublisher) handleIndex(w http.ResponseWriter, _ *http.Request) {
	wp.mu.RLock()
	keys := make([]string, 0, len(wp.latest))
	names := make(map[string]string, len(wp.latest))
	for k, d := range wp.latest {
		keys = append(keys, k)
		names[k] = d.GroupName
	}
	wp.mu.RUnlock()
	sort.Strings(keys)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if len(keys) == 0 {
		fmt.Fprint(w, `<!DOCTYPE html><html><body><h1>Group Digest</h1><p>No digest available yet. Check back later.</p></body></html>`)
		return
	}

	fmt.Fprint(w, `<!DOCTYPE html><html><body><h1>Group Digest</h1><ul>`)
	for _, k := range keys {
		fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, html.EscapeString(k), html.EscapeString(names[k]))
	}
	fmt.Fprint(w, `</ul></body></html>`)
}

func (wp *WebPublisher) handleGroup(w http.ResponseWriter, r *http.Request) {
	digest, ok := wp.Latest(r.PathValue("group"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, buildHTMLBody(digest))
}
