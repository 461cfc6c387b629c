package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Logger receives debug traces of every request.
type Logger interface {
	Printf(format string, args ...any)
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

// Config configures a Client. Zero values are valid.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Retries is the number of extra attempts for idempotent requests.
	Retries int
	// Backoff overrides the wait table used between retries.
	Backoff []time.Duration
	// RateLimit caps requests per second; 0 disables throttling.
	RateLimit float64
	Logger    Logger
	Debug     bool
}

// Client talks to the AuraLynx backend.
type Client struct {
	base    string
	client  *http.Client
	retries int
	backoff []time.Duration
	limiter *rate.Limiter
	logger  Logger
	debug   bool
	tokens  TokenSource
}

var defaultBackoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// New builds a Client. An empty BaseURL resolves from the environment.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = BaseURLFromEnv()
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = defaultBackoff
	}
	c := &Client{
		base:    NormalizeBase(base),
		client:  client,
		retries: max(0, cfg.Retries),
		backoff: backoff,
		logger:  cfg.Logger,
		debug:   cfg.Debug,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// SetTokenSource wires the auth session into authenticated calls.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// URL resolves an API path against the configured base.
func (c *Client) URL(path string) string {
	return BuildURL(c.base, path)
}

func (c *Client) log(format string, args ...any) {
	if !c.debug || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

type request struct {
	method     string
	path       string
	in         any
	out        any
	token      string
	authed     bool
	idempotent bool
	body       io.Reader
	bodyType   string
}

func (c *Client) do(ctx context.Context, r request) error {
	attempts := 1
	if r.idempotent {
		attempts += c.retries
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			idx := min(attempt-1, len(c.backoff)-1)
			wait := c.backoff[idx]
			c.log("api: retrying %s %s in %s after: %v", r.method, r.path, wait, err)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = c.doAttempt(ctx, r)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch StatusCode(err) {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) doAttempt(ctx context.Context, r request) error {
	body := r.body
	contentType := r.bodyType
	var logBody string
	if r.in != nil {
		b, err := json.Marshal(r.in)
		if err != nil {
			return fmt.Errorf("api: couldn't marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
		logBody = string(b)
	}
	u := c.URL(r.path)
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("api: couldn't create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	token := r.token
	if token == "" && r.authed && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("api: rate limit wait: %w", err)
		}
	}

	c.log("api: [%s] %s %s %s", reqID, r.method, r.path, truncate(logBody, 200))
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api: couldn't %s %s: %w", r.method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: couldn't read response body: %w", err)
	}
	c.log("api: [%s] response %d %s", reqID, resp.StatusCode, truncate(string(respBody), 200))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(r.method, r.path, resp.StatusCode, respBody)
	}
	if r.out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, r.out); err != nil {
			return fmt.Errorf("api: couldn't unmarshal response body (%T): %w", r.out, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
