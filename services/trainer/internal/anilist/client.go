package anilist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/example/amq-trainer/services/trainer/internal/ratelimit"
)

const (
	DefaultEndpoint    = "https://graphql.anilist.co"
	DefaultMaxAttempts = 10
)

var (
	// ErrApplication marks a delivered response whose payload carries a
	// GraphQL errors array. It is never retried.
	ErrApplication = errors.New("anilist: application error")
	// ErrAttemptsExhausted is returned once every attempt failed in transport
	// or with a non-200 status.
	ErrAttemptsExhausted = errors.New("anilist: request failed")
)

// Request is the JSON body of a GraphQL POST.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type ErrorItem struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Response is the parsed envelope of a successful request.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorItem     `json:"errors,omitempty"`
}

// Decode unmarshals the data member into out.
func (r *Response) Decode(out any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("anilist: empty data")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("anilist: decode data: %w", err)
	}
	return nil
}

// GraphQLError is the fatal application-level failure. Its message is the
// first server message verbatim.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	if len(e.Messages) == 0 {
		return "Error executing query"
	}
	return "Error executing query: " + e.Messages[0]
}

func (e *GraphQLError) Details() []string {
	if len(e.Messages) <= 1 {
		return nil
	}
	return e.Messages[1:]
}

func (e *GraphQLError) Unwrap() error { return ErrApplication }

// RequestError reports the last observed failure after the attempt budget
// ran out.
type RequestError struct {
	Attempts int
	Status   int
	Body     string
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("anilist: request failed after %d attempts", e.Attempts)
}

func (e *RequestError) Details() []string {
	var out []string
	if e.Status != 0 {
		out = append(out, fmt.Sprintf("last status: %d", e.Status))
	}
	if e.Body != "" {
		out = append(out, "body: "+e.Body)
	}
	if e.Err != nil {
		out = append(out, "error: "+e.Err.Error())
	}
	return out
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAttemptsExhausted}
	}
	return []error{ErrAttemptsExhausted, e.Err}
}

type Client struct {
	Endpoint    string
	HTTPClient  *http.Client
	Limiter     *ratelimit.State
	MaxAttempts int
	// Token is the bearer credential sent with every request when set.
	Token string
	Log   *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithLimiter(l *ratelimit.State) Option {
	return func(c *Client) { c.Limiter = l }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.MaxAttempts = n }
}

func WithToken(token string) Option {
	return func(c *Client) { c.Token = strings.TrimSpace(token) }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func New(endpoint string, opts ...Option) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		Endpoint:    endpoint,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		MaxAttempts: DefaultMaxAttempts,
		Log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.Limiter == nil {
		c.Limiter = ratelimit.New(ratelimit.Config{}, ratelimit.WithLogger(c.Log))
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Execute sends one logical request, waiting on the rate limiter before
// every attempt. Transport failures and non-200 statuses are retried up to
// MaxAttempts; a GraphQL errors array is returned at once as *GraphQLError.
func (c *Client) Execute(ctx context.Context, body Request, token string) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anilist: encode request: %w", err)
	}

	last := &RequestError{}
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		last.Attempts = attempt
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}

		status, b, err := c.send(ctx, payload, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.Log.Warn("anilist: transport error", zap.Int("attempt", attempt), zap.Error(err))
			last.Status, last.Body, last.Err = 0, "", err
			continue
		}

		switch {
		case status == http.StatusOK:
			var out Response
			if err := json.Unmarshal(b, &out); err != nil {
				c.Log.Warn("anilist: undecodable response", zap.Int("attempt", attempt), zap.Error(err))
				last.Status, last.Body, last.Err = status, excerpt(b), err
				continue
			}
			if len(out.Errors) > 0 {
				msgs := make([]string, 0, len(out.Errors))
				for _, e := range out.Errors {
					msgs = append(msgs, e.Message)
				}
				return nil, &GraphQLError{Messages: msgs}
			}
			c.Log.Debug("anilist: ok", zap.Int("attempt", attempt), zap.Int("bytes", len(b)))
			return &out, nil
		case status == http.StatusTooManyRequests:
			c.Log.Warn("anilist: rate limited", zap.Int("attempt", attempt), zap.Int("status", status))
		default:
			c.Log.Warn("anilist: unexpected status",
				zap.Int("attempt", attempt), zap.Int("status", status), zap.String("body", excerpt(b)))
		}
		last.Status, last.Body, last.Err = status, excerpt(b), nil
	}
	return nil, last
}

// send performs a single POST. Rate-limit headers are observed for every
// response that arrives, whatever its status.
func (c *Client) send(ctx context.Context, payload []byte, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	c.Limiter.Observe(resp.Header)

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, b, nil
}

const excerptLimit = 500

// excerpt cuts b to at most excerptLimit bytes without splitting a rune.
func excerpt(b []byte) string {
	n := len(b)
	if n > excerptLimit {
		n = excerptLimit
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(b[:n]), "\uFFFD"))
}
