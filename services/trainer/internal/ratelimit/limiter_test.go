package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func newState(cfg Config) (*State, *ManualClock) {
	clk := NewManualClock(t0)
	return New(cfg, WithClock(clk)), clk
}

func TestObserve_UpdatesPresentHeadersOnly(t *testing.T) {
	s, _ := newState(Config{})
	s.Observe(headers(HeaderLimit, "90", HeaderRemaining, "42"))

	snap := s.Snapshot()
	if snap.Limit == nil || *snap.Limit != 90 {
		t.Fatalf("expected limit 90, got %v", snap.Limit)
	}
	if snap.Remaining == nil || *snap.Remaining != 42 {
		t.Fatalf("expected remaining 42, got %v", snap.Remaining)
	}
	if snap.Reset != nil || snap.RetryAfter != nil {
		t.Fatal("absent headers must stay unknown")
	}

	s.Observe(headers(HeaderRemaining, "garbage", HeaderLimit, ""))
	snap = s.Snapshot()
	if *snap.Remaining != 42 || *snap.Limit != 90 {
		t.Fatal("unparseable or empty headers must leave fields unchanged")
	}
}

func TestObserve_ResetAndRetryAfter(t *testing.T) {
	s, _ := newState(Config{})
	reset := t0.Add(30 * time.Second)
	s.Observe(headers(HeaderReset, strconv.FormatInt(reset.Unix(), 10), HeaderRetryAfter, "12"))

	snap := s.Snapshot()
	if snap.Reset == nil || !snap.Reset.Equal(reset) {
		t.Fatalf("expected reset %s, got %v", reset, snap.Reset)
	}
	if snap.RetryAfter == nil || *snap.RetryAfter != 12*time.Second {
		t.Fatalf("expected retry-after 12s, got %v", snap.RetryAfter)
	}
}

func TestObserve_RetryAfterHTTPDate(t *testing.T) {
	s, _ := newState(Config{})
	s.Observe(headers(HeaderRetryAfter, t0.Add(20*time.Second).Format(http.TimeFormat)))
	snap := s.Snapshot()
	if snap.RetryAfter == nil || *snap.RetryAfter != 20*time.Second {
		t.Fatalf("expected 20s, got %v", snap.RetryAfter)
	}
}

func TestWait_NoStateNoWait(t *testing.T) {
	s, clk := newState(Config{Margin: time.Second})
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(clk.Sleeps()) != 0 {
		t.Fatalf("expected no sleeps, got %v", clk.Sleeps())
	}
}

func TestWait_PositiveRemainingNoWait(t *testing.T) {
	s, clk := newState(Config{Margin: time.Second})
	s.Observe(headers(HeaderRemaining, "5", HeaderLimit, "90"))
	_ = s.Wait(context.Background())
	if len(clk.Sleeps()) != 0 {
		t.Fatalf("expected no sleeps, got %v", clk.Sleeps())
	}
	if s.Snapshot().Remaining == nil {
		t.Fatal("state must not be cleared when no wait happened")
	}
}

func TestWait_RetryAfterWinsAndClears(t *testing.T) {
	s, clk := newState(Config{Margin: time.Second})
	s.Observe(headers(
		HeaderRetryAfter, "10",
		HeaderReset, strconv.FormatInt(t0.Add(time.Hour).Unix(), 10),
		HeaderRemaining, "0",
	))

	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 11*time.Second {
		t.Fatalf("expected single 11s sleep, got %v", sleeps)
	}
	snap := s.Snapshot()
	if snap.RetryAfter != nil || snap.Reset != nil || snap.Remaining != nil || snap.Limit != nil {
		t.Fatalf("expected all server state cleared, got %+v", snap)
	}

	_ = s.Wait(context.Background())
	if len(clk.Sleeps()) != 1 {
		t.Fatal("cleared state must not cause another wait")
	}
}

func TestWait_UntilReset(t *testing.T) {
	s, clk := newState(Config{Margin: time.Second})
	reset := t0.Add(45 * time.Second)
	s.Observe(headers(HeaderRemaining, "0", HeaderReset, strconv.FormatInt(reset.Unix(), 10)))

	_ = s.Wait(context.Background())
	if clk.Now().Before(reset) {
		t.Fatalf("woke at %s, before reset %s", clk.Now(), reset)
	}
	if got := clk.Slept(); got != 46*time.Second {
		t.Fatalf("expected 46s total wait, got %s", got)
	}
}

func TestWait_UntilResetCountsElapsedTime(t *testing.T) {
	s, clk := newState(Config{Margin: time.Second})
	s.Observe(headers(HeaderRemaining, "0", HeaderReset, strconv.FormatInt(t0.Add(45*time.Second).Unix(), 10)))
	clk.Advance(30 * time.Second)

	_ = s.Wait(context.Background())
	if got := clk.Slept(); got != 16*time.Second {
		t.Fatalf("expected 16s wait, got %s", got)
	}
}

func TestWait_WindowSlidesWithTime(t *testing.T) {
	s, clk := newState(Config{WindowCount: 2, Window: 10 * time.Second, PollInterval: time.Second})
	_ = s.Wait(context.Background())
	_ = s.Wait(context.Background())
	clk.Advance(10 * time.Second)

	_ = s.Wait(context.Background())
	if len(clk.Sleeps()) != 0 {
		t.Fatalf("expected the window to have slid past both requests, got sleeps %v", clk.Sleeps())
	}
	if got := s.Snapshot().InWindow; got != 1 {
		t.Fatalf("expected 1 request in window, got %d", got)
	}
}

func TestWait_ResetInThePast(t *testing.T) {
	s, clk := newState(Config{Margin: time.Second})
	s.Observe(headers(HeaderReset, strconv.FormatInt(t0.Add(-time.Minute).Unix(), 10)))
	_ = s.Wait(context.Background())
	if clk.Slept() != 0 {
		t.Fatalf("expected no effective wait, got %s", clk.Slept())
	}
	if s.Snapshot().Reset != nil {
		t.Fatal("expected reset cleared")
	}
}

func TestWait_ZeroRemainingCooldown(t *testing.T) {
	s, clk := newState(Config{Cooldown: 30 * time.Second, Margin: time.Second})
	s.Observe(headers(HeaderRemaining, "0"))
	_ = s.Wait(context.Background())
	if clk.Slept() != 30*time.Second {
		t.Fatalf("expected 30s cooldown, got %s", clk.Slept())
	}
	if s.Snapshot().Remaining != nil {
		t.Fatal("expected remaining cleared")
	}
}

func TestWait_LocalWindowCap(t *testing.T) {
	s, clk := newState(Config{WindowCount: 3, Window: 10 * time.Second, PollInterval: time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if len(clk.Sleeps()) != 0 {
		t.Fatalf("first %d requests must not wait, got %v", 3, clk.Sleeps())
	}

	_ = s.Wait(ctx)
	if clk.Now().Sub(t0) < 10*time.Second {
		t.Fatalf("4th request released after %s, before the window expired", clk.Now().Sub(t0))
	}
	for _, d := range clk.Sleeps() {
		if d != time.Second {
			t.Fatalf("expected polling in 1s steps, got %s", d)
		}
	}
	if s.Snapshot().InWindow != 1 {
		t.Fatalf("expected only the new request in the window, got %d", s.Snapshot().InWindow)
	}
}

func TestWait_WindowDisabled(t *testing.T) {
	s, clk := newState(Config{WindowCount: 0})
	for i := 0; i < 100; i++ {
		_ = s.Wait(context.Background())
	}
	if len(clk.Sleeps()) != 0 || s.Snapshot().InWindow != 0 {
		t.Fatal("disabled window must neither wait nor record")
	}
}

func TestStatesAreIndependent(t *testing.T) {
	a, _ := newState(Config{})
	b, _ := newState(Config{})
	a.Observe(headers(HeaderRemaining, "0"))
	if b.Snapshot().Remaining != nil {
		t.Fatal("state leaked between instances")
	}
}

func TestSystemClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (systemClock{}).Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
}
