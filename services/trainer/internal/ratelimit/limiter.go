package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type Config struct {
	// WindowCount caps requests inside the trailing Window. Zero disables
	// the local cap.
	WindowCount int
	Window      time.Duration
	// Cooldown is waited when the server reports zero remaining quota but no
	// reset or retry-after hint.
	Cooldown time.Duration
	// Margin is added to every server-directed wait.
	Margin       time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	if c.Margin < 0 {
		c.Margin = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// State tracks what the server last advertised about throttling plus a local
// sliding window of request times. Server fields are nil when unknown. One
// State belongs to one client; it is not safe for concurrent use.
type State struct {
	cfg   Config
	clock Clock
	log   *zap.Logger

	limit      *int
	remaining  *int
	reset      *time.Time
	retryAfter *time.Duration

	sent []time.Time
}

type Option func(*State)

func WithClock(c Clock) Option {
	return func(s *State) { s.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *State) { s.log = log }
}

func New(cfg Config, opts ...Option) *State {
	s := &State{cfg: cfg.withDefaults(), clock: systemClock{}, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Observe updates the server-advertised fields from whichever headers are
// present and parseable; anything else leaves the field as it was.
func (s *State) Observe(h http.Header) {
	if v, ok := headerInt(h, HeaderLimit); ok {
		s.limit = &v
	}
	if v, ok := headerInt(h, HeaderRemaining); ok {
		s.remaining = &v
	}
	if v, ok := headerInt(h, HeaderReset); ok {
		t := time.Unix(int64(v), 0)
		s.reset = &t
	}
	if d, ok := s.parseRetryAfter(h.Get(HeaderRetryAfter)); ok {
		s.retryAfter = &d
	}
}

// Wait blocks until a request may be sent. The local window is enforced
// first, then any server-directed wait. After a server-directed wait all
// server fields are cleared because they describe a moment that has passed.
func (s *State) Wait(ctx context.Context) error {
	if err := s.awaitWindow(ctx); err != nil {
		return err
	}

	var wait time.Duration
	var reason string
	switch {
	case s.retryAfter != nil:
		wait, reason = *s.retryAfter+s.cfg.Margin, "retry-after"
	case s.reset != nil:
		wait, reason = s.reset.Add(s.cfg.Margin).Sub(s.clock.Now()), "reset"
	case s.remaining != nil && *s.remaining <= 0:
		wait, reason = s.cfg.Cooldown, "quota exhausted"
	default:
		return nil
	}

	wait = max(wait, 0)
	s.log.Info("rate limited, waiting", zap.String("reason", reason), zap.Duration("wait", wait))
	if err := s.clock.Sleep(ctx, wait); err != nil {
		return err
	}
	s.clearServerState()
	return nil
}

func (s *State) awaitWindow(ctx context.Context) error {
	if s.cfg.WindowCount <= 0 {
		return nil
	}
	for {
		now := s.clock.Now()
		s.prune(now)
		if len(s.sent) < s.cfg.WindowCount {
			s.sent = append(s.sent, now)
			return nil
		}
		s.log.Debug("local request window full", zap.Int("count", len(s.sent)), zap.Duration("window", s.cfg.Window))
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (s *State) prune(now time.Time) {
	cutoff := now.Add(-s.cfg.Window)
	keep := s.sent[:0]
	for _, t := range s.sent {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	s.sent = keep
}

func (s *State) clearServerState() {
	s.limit = nil
	s.remaining = nil
	s.reset = nil
	s.retryAfter = nil
}

// Snapshot is a read-only copy of the current state for logging and tests.
type Snapshot struct {
	Limit      *int
	Remaining  *int
	Reset      *time.Time
	RetryAfter *time.Duration
	InWindow   int
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Limit:      s.limit,
		Remaining:  s.remaining,
		Reset:      s.reset,
		RetryAfter: s.retryAfter,
		InWindow:   len(s.sent),
	}
}

func headerInt(h http.Header, key string) (int, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseRetryAfter accepts delta-seconds or an HTTP date (RFC 9110).
func (s *State) parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(s.clock.Now()), 0), true
	}
	return 0, false
}
