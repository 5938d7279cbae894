// Package novelty remembers which posts of a group have already been
// summarized, so repeated runs only see new material.
package novelty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ryosukesatoh/group-digest/internal/metrics"
	"github.com/ryosukesatoh/group-digest/internal/post"
)

// TTL is how long a group's seen set lives after its last write.
const TTL = 30 * 24 * time.Hour

const keyPrefix = "seen:"

// Mode selects how membership is tested and recorded.
type Mode string

const (
	// ModeCheckThenMark reads membership for every fingerprint, then adds the
	// new ones in one batch. Two concurrent runs for the same group can both
	// report a fingerprint as new.
	ModeCheckThenMark Mode = "check_then_mark"

	// ModeAtomic adds every fingerprint individually and treats SADD's
	// "added" result as the novelty signal.
	ModeAtomic Mode = "atomic"
)

// ErrStore is wrapped by every error caused by the backing store.
var ErrStore = errors.New("novelty store failure")

// Store is a Redis-backed set of seen fingerprints, one set per group.
type Store struct {
	url    string
	mode   Mode
	logger *slog.Logger

	mu     sync.Mutex
	client redis.UniversalClient
	owned  bool
}

// Option configures a Store.
type Option func(*Store)

// WithMode sets the membership mode. Unknown modes fall back to ModeCheckThenMark.
func WithMode(m Mode) Option {
	return func(s *Store) {
		if m == ModeAtomic {
			s.mode = ModeAtomic
			return
		}
		s.mode = ModeCheckThenMark
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store for the given Redis URL. The URL is validated here but
// the connection is only opened on first use.
func New(url string, opts ...Option) (*Store, error) {
	if _, err := redis.ParseURL(url); err != nil {
		return nil, fmt.Errorf("novelty: invalid redis url: %w", err)
	}
	s := &Store{url: url, mode: ModeCheckThenMark, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWithClient wraps an existing client. Close does not close it.
func NewWithClient(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, mode: ModeCheckThenMark, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports the membership mode in use.
func (s *Store) Mode() Mode {
	return s.mode
}

func (s *Store) conn() (redis.UniversalClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	opts, err := redis.ParseURL(s.url)
	if err != nil {
		return nil, fmt.Errorf("novelty: invalid redis url: %w", err)
	}
	s.client = redis.NewClient(opts)
	s.owned = true
	return s.client, nil
}

// Close releases the connection if the Store opened it. The Store may be
// used again afterwards; it reconnects on demand.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || !s.owned {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.owned = false
	return err
}

// Ping checks the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("novelty: ping: %w: %w", ErrStore, err)
	}
	return nil
}

// Key returns the Redis key holding a group's fingerprints.
func Key(groupName string) string {
	return keyPrefix + post.GroupKey(groupName)
}

// FilterNew returns the posts not seen before for groupName, in their
// original order, and records them as seen. Posts sharing a fingerprint
// within the input are reported once.
func (s *Store) FilterNew(ctx context.Context, posts []post.Post, groupName string) ([]post.Post, error) {
	if len(posts) == 0 {
		return []post.Post{}, nil
	}

	c, err := s.conn()
	if err != nil {
		return nil, err
	}

	key := Key(groupName)
	hashes := make([]string, len(posts))
	for i, p := range posts {
		hashes[i] = post.Fingerprint(p)
	}

	var isNew []bool
	switch s.mode {
	case ModeAtomic:
		isNew, err = s.markEach(ctx, c, key, hashes)
	default:
		isNew, err = s.checkThenMark(ctx, c, key, hashes)
	}
	if err != nil {
		return nil, err
	}

	fresh := make([]post.Post, 0, len(posts))
	for i, p := range posts {
		if isNew[i] {
			fresh = append(fresh, p)
		}
	}

	s.logger.Debug("novelty filtered",
		slog.String("key", key),
		slog.String("mode", string(s.mode)),
		slog.Int("total", len(posts)),
		slog.Int("new", len(fresh)))

	return fresh, nil
}

func (s *Store) checkThenMark(ctx context.Context, c redis.UniversalClient, key string, hashes []string) ([]bool, error) {
	pipe := c.Pipeline()
	cmds := make([]*redis.BoolCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.SIsMember(ctx, key, h)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordStoreError("sismember")
		return nil, fmt.Errorf("novelty: membership check for %s: %w: %w", key, ErrStore, err)
	}

	isNew := make([]bool, len(hashes))
	batch := make(map[string]struct{}, len(hashes))
	var added []interface{}
	for i, cmd := range cmds {
		if cmd.Val() {
			continue
		}
		if _, dup := batch[hashes[i]]; dup {
			continue
		}
		batch[hashes[i]] = struct{}{}
		isNew[i] = true
		added = append(added, hashes[i])
	}

	if len(added) == 0 {
		return isNew, nil
	}

	if err := c.SAdd(ctx, key, added...).Err(); err != nil {
		metrics.RecordStoreError("sadd")
		return nil, fmt.Errorf("novelty: mark seen for %s: %w: %w", key, ErrStore, err)
	}
	if err := s.touch(ctx, c, key); err != nil {
		return nil, err
	}
	return isNew, nil
}

func (s *Store) markEach(ctx context.Context, c redis.UniversalClient, key string, hashes []string) ([]bool, error) {
	pipe := c.Pipeline()
	cmds := make([]*redis.IntCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.SAdd(ctx, key, h)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordStoreError("sadd")
		return nil, fmt.Errorf("novelty: mark seen for %s: %w: %w", key, ErrStore, err)
	}

	isNew := make([]bool, len(hashes))
	anyNew := false
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			isNew[i] = true
			anyNew = true
		}
	}

	if anyNew {
		if err := s.touch(ctx, c, key); err != nil {
			return nil, err
		}
	}
	return isNew, nil
}

func (s *Store) touch(ctx context.Context, c redis.UniversalClient, key string) error {
	if err := c.Expire(ctx, key, TTL).Err(); err != nil {
		metrics.RecordStoreError("expire")
		return fmt.Errorf("novelty: set expiry on %s: %w: %w", key, ErrStore, err)
	}
	return nil
}
