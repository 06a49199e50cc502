// Package api is the single point of outbound HTTP calls to the backend.
//
// Every request carries the stored bearer credential when one exists. An
// authorization failure (401) triggers at most one refresh-and-retry per
// request: the refresh call goes straight to the transport (ambient session
// cookies, no bearer, no interception) and concurrent 401s collapse onto a
// single in-flight refresh. A failed refresh clears the credential, fires
// the auth-expired hook, and surfaces the refresh error to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"loom/internal/app"
	"loom/internal/token"
)

const (
	defaultPrefix  = "/api/v1"
	refreshPath    = "/auth/refresh"
	maxErrorBody   = 1 << 20
	defaultTimeout = 30 * time.Second
)

// Client wraps outbound requests to the backend API.
type Client struct {
	base   *url.URL
	prefix string
	hc     *http.Client

	tokens  token.Store
	log     *slog.Logger
	metrics *app.Metrics

	// onAuthExpired is invoked after an irrecoverable refresh failure,
	// once the credential has been removed. The session layer uses it to
	// force the unauthenticated state.
	onAuthExpired func()

	refresh singleflight.Group
}

// Option configures optional Client dependencies.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches client metrics.
func WithMetrics(m *app.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithAuthExpiredHook sets the forced-logout hook.
func WithAuthExpiredHook(fn func()) Option {
	return func(c *Client) {
		if fn != nil {
			c.onAuthExpired = fn
		}
	}
}

// WithHTTPClient overrides the underlying transport. The provided client
// must carry a cookie jar for the refresh cookie to survive.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeout bounds each outbound call, refresh included (default 30s;
// zero or negative keeps the default).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithPrefix overrides the REST path prefix (default /api/v1).
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		if strings.TrimSpace(prefix) != "" {
			c.prefix = prefix
		}
	}
}

// New constructs a Client for the backend at baseURL (root origin, no path).
func New(baseURL string, tokens token.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: unsupported scheme: %q", u.Scheme)
	}
	if tokens == nil {
		return nil, errors.New("api: nil token store")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:          u,
		prefix:        defaultPrefix,
		hc:            &http.Client{Jar: jar, Timeout: defaultTimeout},
		tokens:        tokens,
		log:           slog.Default(),
		onAuthExpired: func() {},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// pendingRequest is one outbound call instance. The retried flag is
// explicit state on this wrapper, never hidden mutation of a shared
// *http.Request, and guarantees the one-shot retry semantics.
type pendingRequest struct {
	method      string
	path        string
	payload     []byte
	contentType string
	retried     bool
}

// Get issues a GET and decodes the JSON response into out (out may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, &pendingRequest{method: http.MethodGet, path: path}, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	p, err := jsonPending(http.MethodPost, path, in)
	if err != nil {
		return err
	}
	return c.do(ctx, p, out)
}

// Patch issues a PATCH with a JSON body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	p, err := jsonPending(http.MethodPatch, path, in)
	if err != nil {
		return err
	}
	return c.do(ctx, p, out)
}

// PostMultipart issues a multipart POST with a single file field and
// decodes the response into out. The body is buffered so the single
// refresh-and-retry can resubmit it.
func (c *Client) PostMultipart(ctx context.Context, path, field, filename string, r io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	p := &pendingRequest{
		method:      http.MethodPost,
		path:        path,
		payload:     buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}
	return c.do(ctx, p, out)
}

func jsonPending(method, path string, in any) (*pendingRequest, error) {
	p := &pendingRequest{method: method, path: path}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		p.payload = b
		p.contentType = "application/json; charset=utf-8"
	}
	return p, nil
}

func (c *Client) do(ctx context.Context, p *pendingRequest, out any) error {
	resp, err := c.roundTrip(ctx, p)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !p.retried {
		drain(resp)
		p.retried = true

		if err := c.refreshCredential(ctx); err != nil {
			// Irrecoverable: credential is gone and the session has been
			// forced to its unauthenticated state by the hook.
			return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}

		resp, err = c.roundTrip(ctx, p)
		if err != nil {
			return err
		}
	}

	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseErrorBody(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, p *pendingRequest) (*http.Response, error) {
	var body io.Reader
	if p.payload != nil {
		body = bytes.NewReader(p.payload)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, c.endpoint(p.path), body)
	if err != nil {
		return nil, err
	}
	if p.contentType != "" {
		req.Header.Set("Content-Type", p.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if cred, ok := c.tokens.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug("api.request.fail", "method", p.method, "path", p.path, "err", err)
		return nil, fmt.Errorf("api: %s %s: %w", p.method, p.path, err)
	}

	c.log.Debug("api.request",
		"method", p.method,
		"path", p.path,
		"status", resp.StatusCode,
		"retried", p.retried,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if c.metrics != nil {
		c.metrics.APIRequests.WithLabelValues(p.method, strconv.Itoa(resp.StatusCode)).Inc()
	}
	return resp, nil
}

// refreshCredential exchanges the ambient refresh cookie for a new access
// credential. Concurrent callers share one in-flight refresh; each failing
// request still owns its one-shot retry flag.
func (c *Client) refreshCredential(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(refreshPath), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("api: refresh: %w", err)
		}
		defer drain(resp)

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, parseErrorBody(resp.StatusCode, body)
		}

		var rr refreshResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return nil, fmt.Errorf("api: refresh decode: %w", err)
		}
		if strings.TrimSpace(rr.AccessToken) == "" {
			return nil, errors.New("api: refresh returned no access_token")
		}
		if err := c.tokens.Set(rr.AccessToken); err != nil {
			return nil, err
		}
		return nil, nil
	})

	if err != nil {
		_ = c.tokens.Remove()
		c.onAuthExpired()
		c.log.Warn("api.refresh.fail", "err", err)
		if c.metrics != nil {
			c.metrics.TokenRefreshes.WithLabelValues("fail").Inc()
		}
		return err
	}

	c.log.Debug("api.refresh.ok")
	if c.metrics != nil {
		c.metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(c.prefix, path).String()
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
