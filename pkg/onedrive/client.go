// Package onedrive is a client for the Microsoft Graph API scoped to a
// personal OneDrive: item metadata, listing, folder management, downloads
// and resumable uploads.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxErrorBodySize caps how much of an error response is kept in memory.
const maxErrorBodySize = 64 * 1024

// Client talks to Microsoft Graph on behalf of the signed-in user.
// A Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     *slog.Logger
	limiter    *rate.Limiter
	userAgent  string

	// sleepFunc waits between chunk retries. Tests replace it to avoid
	// real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// now is the clock used for upload session expiry checks.
	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Redirects for downloads
// are followed by this client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseURL points the client at a different Graph root, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithRateLimit paces outgoing requests to at most rps per second with the
// given burst. Requests wait for a slot; nothing is retried.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient returns a Client that authenticates every Graph request with a
// token from tokens.
func NewClient(tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:    GraphBaseURL,
		httpClient: &http.Client{},
		tokens:     tokens,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint joins a drive-relative path onto the base URL. Each segment is
// path-escaped so names containing '#', '?' or '%' survive.
func (c *Client) endpoint(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = escapePath(s)
		} else {
			escaped[i] = a
		}
	}
	return c.baseURL + "/" + strings.TrimPrefix(fmt.Sprintf(format, escaped...), "/")
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// request sends one HTTP request. With authorize set the bearer token is
// attached; pre-authenticated upload URLs are called with authorize false.
// A Content-Length entry in header is moved to the request's ContentLength.
// The caller closes the body of a successful response. Responses with a
// status >= 400 are consumed and returned as *HTTPRequestError.
func (c *Client) request(
	ctx context.Context, method, rawURL string, authorize bool, body io.Reader, header http.Header,
) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ClientError{Method: method, URL: redactURL(rawURL, authorize), Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrClient, err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if cl := req.Header.Get("Content-Length"); cl != "" {
		n, convErr := strconv.ParseInt(cl, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("%w: bad Content-Length %q", ErrInvalidArgument, cl)
		}
		req.ContentLength = n
		req.Header.Del("Content-Length")
		if n == 0 {
			req.Body = http.NoBody
		}
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("client-request-id", requestID)

	if authorize {
		tok, tokErr := c.bearerToken(ctx)
		if tokErr != nil {
			return nil, tokErr
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	logURL := redactURL(rawURL, authorize)
	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("url", logURL),
			slog.String("client_request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, &ClientError{Method: method, URL: logURL, Err: err}
	}

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("url", logURL),
		slog.Int("status", res.StatusCode),
		slog.String("client_request_id", requestID),
		slog.String("request_id", res.Header.Get("request-id")),
		slog.Duration("elapsed", time.Since(start)),
	)

	if res.StatusCode >= http.StatusBadRequest {
		defer closeBodySafely(res.Body, c.logger, "error response")
		errBody, readErr := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}
		return nil, newHTTPRequestError(res, errBody)
	}

	return res, nil
}

// requestJSON sends in (when non-nil) as JSON and decodes the response into
// out (when non-nil). An empty or 204 response leaves out untouched.
func (c *Client) requestJSON(ctx context.Context, method, rawURL string, authorize bool, in, out any) error {
	var body io.Reader
	header := http.Header{}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encoding %s request: %w", ErrClient, method, err)
		}
		body = bytes.NewReader(payload)
		header.Set("Content-Type", "application/json")
	}

	res, err := c.request(ctx, method, rawURL, authorize, body, header)
	if err != nil {
		return err
	}
	defer closeBodySafely(res.Body, c.logger, method+" response")

	return decodeJSON(res, out)
}

func decodeJSON(res *http.Response, out any) error {
	if out == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &ClientError{Method: res.Request.Method, URL: "response body", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}
	return nil
}

// redactURL keeps pre-authenticated upload URLs out of logs and errors.
func redactURL(rawURL string, authorize bool) string {
	if authorize {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(upload session)"
	}
	return u.Scheme + "://" + u.Host + "/(upload session)"
}

// timeSleep waits for d or until ctx is done.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
