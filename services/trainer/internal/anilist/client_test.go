package anilist

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/example/amq-trainer/services/trainer/internal/ratelimit"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeServer replies with the scripted handlers in order, repeating the last
// one, and records the fake-clock time of every request.
type fakeServer struct {
	mu      sync.Mutex
	clk     *ratelimit.ManualClock
	replies []http.HandlerFunc
	hits    []time.Time
	bodies  []Request
	auth    []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	i := len(f.hits)
	f.hits = append(f.hits, f.clk.Now())
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	var body Request
	b, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(b, &body)
	f.bodies = append(f.bodies, body)
	h := f.replies[min(i, len(f.replies)-1)]
	f.mu.Unlock()
	h(w, r)
}

func reply(status int, body string, headers ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i+1 < len(headers); i += 2 {
			w.Header().Set(headers[i], headers[i+1])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, attempts int, replies ...http.HandlerFunc) (*Client, *fakeServer) {
	t.Helper()
	clk := ratelimit.NewManualClock(t0)
	fs := &fakeServer{clk: clk, replies: replies}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	c := New(srv.URL,
		WithHTTPClient(srv.Client()),
		WithLimiter(ratelimit.New(ratelimit.Config{}, ratelimit.WithClock(clk))),
		WithMaxAttempts(attempts),
	)
	return c, fs
}

const okBody = `{"data":{"Viewer":{"id":7,"name":"amq"}}}`

func TestExecute_Success(t *testing.T) {
	c, fs := newTestClient(t, 3, reply(http.StatusOK, okBody))
	resp, err := c.Execute(context.Background(), Request{Query: "query { Viewer { id } }"}, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var data struct {
		Viewer User `json:"Viewer"`
	}
	if err := resp.Decode(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Viewer.ID != 7 || data.Viewer.Name != "amq" {
		t.Fatalf("unexpected viewer %+v", data.Viewer)
	}
	if len(fs.hits) != 1 {
		t.Fatalf("expected 1 request, got %d", len(fs.hits))
	}
	if fs.auth[0] != "" {
		t.Fatalf("expected no authorization header, got %q", fs.auth[0])
	}
}

func TestExecute_BearerToken(t *testing.T) {
	c, fs := newTestClient(t, 1, reply(http.StatusOK, okBody))
	if _, err := c.Execute(context.Background(), Request{Query: "q"}, " tok "); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if fs.auth[0] != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", fs.auth[0])
	}
}

func TestExecute_ApplicationErrorIsFatalAtOnce(t *testing.T) {
	c, fs := newTestClient(t, 5, reply(http.StatusOK,
		`{"data":null,"errors":[{"message":"Invalid token","status":400},{"message":"second"}]}`))

	_, err := c.Execute(context.Background(), Request{Query: "q"}, "")
	if !errors.Is(err, ErrApplication) {
		t.Fatalf("expected application error, got %v", err)
	}
	var gqlErr *GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Fatalf("expected *GraphQLError, got %T", err)
	}
	if !strings.Contains(err.Error(), "Invalid token") {
		t.Fatalf("expected first message verbatim, got %q", err.Error())
	}
	if d := gqlErr.Details(); len(d) != 1 || d[0] != "second" {
		t.Fatalf("expected remaining messages as details, got %v", d)
	}
	if len(fs.hits) != 1 {
		t.Fatalf("application errors must not be retried, got %d requests", len(fs.hits))
	}
}

func TestExecute_RetriesAfter429(t *testing.T) {
	c, fs := newTestClient(t, 5,
		reply(http.StatusTooManyRequests, `{"errors":[{"message":"Too Many Requests."}]}`, "Retry-After", "30", "X-RateLimit-Remaining", "0"),
		reply(http.StatusOK, okBody),
	)
	if _, err := c.Execute(context.Background(), Request{Query: "q"}, ""); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(fs.hits) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(fs.hits))
	}
	if gap := fs.hits[1].Sub(fs.hits[0]); gap < 30*time.Second {
		t.Fatalf("retry sent %s after the 429, expected at least 30s", gap)
	}
}

func TestExecute_ExhaustsExactlyMaxAttempts(t *testing.T) {
	for _, attempts := range []int{1, 3, 10} {
		t.Run(strconv.Itoa(attempts), func(t *testing.T) {
			c, fs := newTestClient(t, attempts, reply(http.StatusServiceUnavailable, "upstream down"))
			_, err := c.Execute(context.Background(), Request{Query: "q"}, "")
			if !errors.Is(err, ErrAttemptsExhausted) {
				t.Fatalf("expected exhaustion, got %v", err)
			}
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected *RequestError, got %T", err)
			}
			if reqErr.Status != http.StatusServiceUnavailable || reqErr.Body != "upstream down" {
				t.Fatalf("expected last status and body, got %d %q", reqErr.Status, reqErr.Body)
			}
			if len(fs.hits) != attempts || reqErr.Attempts != attempts {
				t.Fatalf("expected exactly %d attempts, got %d requests (%d reported)", attempts, len(fs.hits), reqErr.Attempts)
			}
		})
	}
}

func TestExecute_ZeroRemainingWaitsForReset(t *testing.T) {
	reset := t0.Add(40 * time.Second)
	limited := reply(http.StatusOK, okBody,
		"X-RateLimit-Limit", "90",
		"X-RateLimit-Remaining", "0",
		"X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10),
	)
	c, fs := newTestClient(t, 3, limited, reply(http.StatusOK, okBody))

	for i := 0; i < 2; i++ {
		if _, err := c.Execute(context.Background(), Request{Query: "q"}, ""); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
	if len(fs.hits) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(fs.hits))
	}
	if fs.hits[1].Before(reset) {
		t.Fatalf("second request sent at %s, before reset %s", fs.hits[1], reset)
	}
}

func TestExecute_TransportErrorsRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	clk := ratelimit.NewManualClock(t0)
	c := New(url, WithMaxAttempts(2), WithLimiter(ratelimit.New(ratelimit.Config{}, ratelimit.WithClock(clk))))
	_, err := c.Execute(context.Background(), Request{Query: "q"}, "")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Attempts != 2 || reqErr.Err == nil {
		t.Fatalf("expected exhaustion with transport cause, got %v", err)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	c, fs := newTestClient(t, 3, reply(http.StatusOK, okBody))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Execute(ctx, Request{Query: "q"}, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fs.hits) != 0 {
		t.Fatalf("expected no request, got %d", len(fs.hits))
	}
}

func TestFetchUserList_Pages(t *testing.T) {
	page1 := `{"data":{"Page":{"pageInfo":{"hasNextPage":true},"mediaList":[
		{"id":100,"status":"COMPLETED","media":{"id":1,"title":{"romaji":"One"},"popularity":10,"seasonYear":2001,"season":"SPRING","genres":["Drama"],"tags":[{"name":"Music"}]}}]}}}`
	page2 := `{"data":{"Page":{"pageInfo":{"hasNextPage":false},"mediaList":[
		{"id":200,"status":"PLANNING","media":{"id":2,"title":{"romaji":"","english":"Two"},"popularity":20}}]}}}`
	c, fs := newTestClient(t, 1, reply(http.StatusOK, page1), reply(http.StatusOK, page2))

	got, err := c.FetchUserList(context.Background(), "alice")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	first := got[0]
	if first.ID != 1 || first.Title != "One" || *first.ListEntryID != 100 || first.ListStatus != "COMPLETED" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if *first.Year != 2001 || first.Season != "SPRING" || first.Tags[0] != "Music" {
		t.Fatalf("unexpected metadata %+v", first)
	}
	if got[1].Title != "Two" || got[1].Year != nil {
		t.Fatalf("expected english fallback and no year, got %+v", got[1])
	}
	if fs.bodies[0].Variables["userName"] != "alice" {
		t.Fatalf("expected userName variable, got %v", fs.bodies[0].Variables)
	}
	if p, _ := fs.bodies[1].Variables["page"].(float64); p != 2 {
		t.Fatalf("expected second request for page 2, got %v", fs.bodies[1].Variables["page"])
	}
}

func TestFetchUserList_NumericIsUserID(t *testing.T) {
	c, fs := newTestClient(t, 1, reply(http.StatusOK, `{"data":{"Page":{"pageInfo":{"hasNextPage":false},"mediaList":[]}}}`))
	if _, err := c.FetchUserList(context.Background(), "4242"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := fs.bodies[0].Variables["userId"]; !ok {
		t.Fatalf("expected userId variable, got %v", fs.bodies[0].Variables)
	}
}

func TestMutations(t *testing.T) {
	c, fs := newTestClient(t, 1,
		reply(http.StatusOK, `{"data":{"SaveMediaListEntry":{"id":9,"mediaId":5,"status":"COMPLETED","media":{"title":{"romaji":"Five"}}}}}`),
		reply(http.StatusOK, `{"data":{"UpdateMediaListEntries":[{"id":1,"mediaId":11,"status":"PLANNING"},{"id":2,"mediaId":12,"status":"PLANNING"}]}}`),
		reply(http.StatusOK, `{"data":{"DeleteMediaListEntry":{"deleted":true}}}`),
	)
	c.Token = "secret"
	ctx := context.Background()

	saved, err := c.SaveEntry(ctx, 5, StatusCompleted)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != 9 || saved.Title != "Five" || saved.Status != StatusCompleted {
		t.Fatalf("unexpected saved entry %+v", saved)
	}

	updated, err := c.UpdateEntries(ctx, []int{1, 2}, StatusPlanning)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated) != 2 || updated[1].MediaID != 12 {
		t.Fatalf("unexpected updates %+v", updated)
	}

	deleted, err := c.DeleteEntry(ctx, 9)
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got %v %v", deleted, err)
	}

	for i, a := range fs.auth {
		if a != "Bearer secret" {
			t.Fatalf("request %d: expected token, got %q", i, a)
		}
	}
	if fs.bodies[0].Variables["status"] != "COMPLETED" {
		t.Fatalf("expected status variable, got %v", fs.bodies[0].Variables)
	}
}

func TestUpdateEntries_EmptyIsNoop(t *testing.T) {
	c, fs := newTestClient(t, 1, reply(http.StatusOK, okBody))
	if _, err := c.UpdateEntries(context.Background(), nil, StatusPlanning); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(fs.hits) != 0 {
		t.Fatal("expected no request")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" completed "); err != nil || s != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %q %v", s, err)
	}
	if _, err := ParseStatus("WATCHED"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	body := []byte("x" + strings.Repeat("é", 300))
	got := excerpt(body)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) > excerptLimit || len(got) != 499 {
		t.Fatalf("expected 499 bytes, got %d", len(got))
	}
	if short := excerpt([]byte("  down \n")); short != "down" {
		t.Fatalf("expected trimmed body, got %q", short)
	}
}

func TestRequestErrorBodyIsValidUTF8(t *testing.T) {
	c, _ := newTestClient(t, 1, reply(http.StatusBadGateway, strings.Repeat("日本", 200)))
	_, err := c.Execute(context.Background(), Request{Query: queryViewer}, "")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if !utf8.ValidString(reqErr.Body) || len(reqErr.Body) > excerptLimit {
		t.Fatalf("unexpected body of %d bytes", len(reqErr.Body))
	}
}
