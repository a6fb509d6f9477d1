// Package httpx is the shared JSON-over-HTTP client for keeper backends. It
// retries transient failures with jittered backoff and maps HTTP statuses
// onto keeper error codes.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/version"
)

const maxErrorSnippet = 256

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
	log        *zap.Logger
}

func New(timeout time.Duration, retries int, log *zap.Logger) *Client {
	if retries < 0 {
		retries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.CLIName + "/" + version.CLIVersion,
		log:        log,
	}
}

// Request describes one JSON call. Body is marshalled when non-nil; Query
// values are appended to URL.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Body    any
	// Idempotent marks a POST or PATCH as safe to resend after a transient
	// failure. GET, HEAD, PUT, DELETE and OPTIONS always are.
	Idempotent bool
}

// Do sends req and decodes a 2xx JSON response into out. out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return clierr.Wrap(clierr.CodeInternal, "encode request body", err)
		}
		payload = b
	}
	httpReq, err := newRequest(ctx, req, payload)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, httpReq, out, req.Idempotent || idempotentMethod(httpReq.Method))
	return err
}

func idempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// resendable reports whether a failed attempt may be repeated. A request
// with side effects is only resent after a 429, which the backend answers
// before doing any work.
func resendable(err error, idempotent bool) bool {
	if !clierr.IsTransient(err) {
		return false
	}
	return idempotent || clierr.CodeOf(err) == clierr.CodeRateLimited
}

func newRequest(ctx context.Context, req Request, payload []byte) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// DoJSON sends req, retrying transient failures when its method is
// idempotent.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	return c.send(ctx, req, out, idempotentMethod(req.Method))
}

func (c *Client) send(ctx context.Context, req *http.Request, out any, idempotent bool) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt)
			c.log.Debug("retrying request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctxError(ctx)
			case <-time.After(wait):
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctxError(ctx)
			}
			lastErr = mapNetError(err)
			if !resendable(lastErr, idempotent) {
				return nil, lastErr
			}
			continue
		}

		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return resp.Header, clierr.Wrap(clierr.CodeUnavailable, "read backend response", readErr)
		}

		statusErr := mapStatus(resp.StatusCode, buf)
		if statusErr != nil {
			if resendable(statusErr, idempotent) {
				lastErr = statusErr
				continue
			}
			return resp.Header, statusErr
		}

		if out == nil {
			return resp.Header, nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return resp.Header, clierr.New(clierr.CodeUnavailable, "backend returned empty response")
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return resp.Header, clierr.Wrap(clierr.CodeUnavailable, "decode backend JSON", err)
		}
		return resp.Header, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, clierr.New(clierr.CodeUnavailable, "request failed")
}

func mapStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return clierr.New(clierr.CodeRateLimited, "backend rate limited request")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return clierr.New(clierr.CodeAuth, "backend authentication failed")
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return clierr.New(clierr.CodeTimeout, fmt.Sprintf("backend timed out (status %d)", status))
	case status >= http.StatusInternalServerError:
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("backend unavailable (status %d)", status))
	default:
		msg := fmt.Sprintf("backend returned unexpected status %d", status)
		if snippet := snippet(body); snippet != "" {
			msg += ": " + snippet
		}
		return clierr.New(clierr.CodeUnsupported, msg)
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return clierr.Wrap(clierr.CodeTimeout, "request deadline exceeded", ctx.Err())
	}
	return ctx.Err()
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeTimeout, "backend timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "backend request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
