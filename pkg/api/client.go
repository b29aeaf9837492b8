package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/modelhub/internal/backoff"
	"github.com/osvaldoandrade/modelhub/internal/metrics"
	"github.com/osvaldoandrade/modelhub/internal/tracing"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for each request. An empty token
// means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Client talks to the model hub HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
	tracer  trace.Tracer

	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetry configures retries of idempotent requests. n=0 disables them.
func WithRetry(n int, base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.retryBase = base
		c.retryMax = maxDelay
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 5 * time.Minute},
		tokens:     StaticToken(""),
		logger:     slog.Default(),
		tracer:     tracing.Tracer("api"),
		maxRetries: 2,
		retryBase:  200 * time.Millisecond,
		retryMax:   2 * time.Second,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = StaticToken("")
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	op          string
	method      string
	path        string
	body        []byte
	contentType string
	accept      string
	// auth attaches the bearer token when one is available.
	auth bool
}

func jsonRequest(op, method, path string, payload any, auth bool) (request, error) {
	r := request{op: op, method: method, path: path, auth: auth, accept: "application/json"}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return r, err
		}
		r.body = b
		r.contentType = "application/json"
	}
	return r, nil
}

func (r request) idempotent() bool {
	return r.method == http.MethodGet || r.method == http.MethodHead
}

// do sends r and returns the response of a 2xx answer. The caller closes
// the body. Non-2xx answers become *domain.APIError; transport failures
// wrap domain.ErrNetwork.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "api."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("http.path", r.path),
		),
	)
	defer span.End()

	token := ""
	if r.auth {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			span.SetStatus(codes.Error, "token")
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		token = t
	}

	attempts := 1
	if r.idempotent() {
		attempts += max(0, c.maxRetries)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			d := c.retryDelay(attempt - 1)
			c.logger.Debug("retrying api request", "op", r.op, "attempt", attempt, "delay", d, "err", lastErr)
			if err := sleep(ctx, d); err != nil {
				return nil, err
			}
		}
		resp, err := c.send(ctx, r, token)
		if err != nil {
			metrics.APIRequestsTotal.WithLabelValues(r.op, "error").Inc()
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "canceled")
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %s %s: %w", domain.ErrNetwork, r.method, r.path, err)
			continue
		}
		metrics.APIRequestsTotal.WithLabelValues(r.op, statusClass(resp.StatusCode)).Inc()
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		apiErr := readAPIError(resp)
		lastErr = apiErr
		if !retryable(resp.StatusCode) {
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

// retryDelay draws a jittered delay. The client is shared across
// workflows and *rand.Rand is not safe for concurrent use.
func (c *Client) retryDelay(attempt int) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return backoff.Delay(backoff.ExpEqualJitter, c.retryBase, c.retryMax, attempt, c.rng)
}

func (c *Client) send(ctx context.Context, r request, token string) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	tracing.InjectHeaders(ctx, req.Header)
	return c.http.Do(req)
}

func (c *Client) decode(ctx context.Context, r request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.op, err)
	}
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readAPIError builds an APIError from {message, error, detail}. The error
// field may be a string or an object.
func readAPIError(resp *http.Response) *domain.APIError {
	defer resp.Body.Close()
	apiErr := &domain.APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(body.Message)
	apiErr.Detail = strings.TrimSpace(body.Detail)
	if len(body.Error) > 0 && string(body.Error) != "null" {
		var s string
		if err := json.Unmarshal(body.Error, &s); err == nil {
			apiErr.Detail = strings.TrimSpace(s)
		} else {
			apiErr.Detail = string(body.Error)
		}
	}
	return apiErr
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *domain.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
