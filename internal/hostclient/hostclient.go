// Package hostclient is Component A: the HTTP client that talks to the
// anime host, with jittered exponential backoff retry, cookie persistence,
// and range-aware segment fetches.
package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/justchokingaround/animepahe-dl/internal/animeerrors"
)

const ddg2Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newDDG2Cookie generates a 16-character alphanumeric token for the
// __ddg2_ session cookie the host expects on every request (§4.A, §6,
// testable property 8). The real host sets this cookie via a DataDome
// anti-bot challenge; since the engine never runs a browser, it mints its
// own token once per Client and reuses it for the process lifetime.
func newDDG2Cookie() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = ddg2Alphabet[rand.Intn(len(ddg2Alphabet))]
	}
	return "__ddg2_=" + string(b)
}

// Config controls retry/backoff behavior and request defaults.
type Config struct {
	BaseURL          string
	UserAgent        string
	MaxRetries       int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	RetryStatusCodes []int
	RequestTimeout   time.Duration // per-attempt timeout for HTML/JSON requests, default 30s; GetBytes attempts get twice this (60s by default)
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 3 * time.Second
	}
	if len(c.RetryStatusCodes) == 0 {
		c.RetryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	return c
}

// Client is the engine's HTTP gateway to the anime host. All requests carry
// the configured User-Agent and Referer set to BaseURL, and the underlying
// cookiejar persists the session cookie the host sets on first contact.
type Client struct {
	http       *http.Client
	cfg        Config
	ddg2Cookie string
}

// New builds a Client with a cookie jar and the retry policy in cfg.
func New(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("hostclient: build cookie jar: %w", err)
	}
	cfg = cfg.normalized()
	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: 0, // per-attempt deadline is applied via context, not client-wide
		},
		cfg:        cfg,
		ddg2Cookie: newDDG2Cookie(),
	}, nil
}

type statusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("hostclient: %s: status %d", e.URL, e.StatusCode)
}

// ByteRange is an inclusive HTTP Range request, used for resume probes and
// #EXT-X-BYTERANGE segment fetches.
type ByteRange struct {
	Offset int64
	Length int64
}

// GetBytes fetches rawURL with retry, optionally restricted to a byte range.
func (c *Client) GetBytes(ctx context.Context, rawURL string, rng *ByteRange) ([]byte, error) {
	return c.doWithRetry(ctx, rawURL, rng, "", 2*c.cfg.RequestTimeout)
}

// GetHTML fetches rawURL and returns the response body, intended for
// goquery.NewDocumentFromReader consumption by internal/scraper.
func (c *Client) GetHTML(ctx context.Context, rawURL string) ([]byte, error) {
	return c.doWithRetry(ctx, rawURL, nil, "text/html", c.cfg.RequestTimeout)
}

// GetJSON fetches rawURL and decodes the JSON body into dst.
func (c *Client) GetJSON(ctx context.Context, rawURL string, dst any) error {
	body, err := c.doWithRetry(ctx, rawURL, nil, "application/json", c.cfg.RequestTimeout)
	if err != nil {
		return err
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(dst); err != nil {
		return &animeerrors.ParseDetailError{Source: "json", Reason: err.Error()}
	}
	return nil
}

// HeadLength performs a HEAD request and returns the server-reported
// Content-Length, falling back to a ranged GET of the resource's last byte
// when the host does not answer HEAD requests (animepahe hosts commonly
// don't).
func (c *Client) HeadLength(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	c.applyHeaders(req, "")
	resp, err := c.http.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
			return resp.ContentLength, nil
		}
	}

	// Fallback: suffix-ranged GET for the last byte (bytes=-1), read the
	// Content-Range total.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	c.applyHeaders(req, "")
	req.Header.Set("Range", "bytes=-1")
	resp, err = c.http.Do(req)
	if err != nil {
		return 0, &animeerrors.NetworkDetailError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, &animeerrors.NetworkDetailError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	cr := resp.Header.Get("Content-Range")
	if idx := strings.LastIndex(cr, "/"); idx >= 0 && idx+1 < len(cr) {
		if total, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
			return total, nil
		}
	}
	return resp.ContentLength, nil
}

// applyHeaders sets the headers every outbound request carries: User-Agent,
// Referer, the __ddg2_ session cookie, and an Accept header appropriate for
// the endpoint (accept is "" for raw segment/byte fetches, which send no
// Accept header at all).
func (c *Client) applyHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.BaseURL != "" {
		req.Header.Set("Referer", c.cfg.BaseURL)
	}
	req.Header.Set("Cookie", c.ddg2Cookie)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
}

func (c *Client) doWithRetry(ctx context.Context, rawURL string, rng *ByteRange, accept string, timeout time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			cancelAttempt()
			return nil, err
		}
		c.applyHeaders(req, accept)
		if rng != nil {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))
		}

		body, err := c.attempt(req, rawURL)
		cancelAttempt()
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !c.isRetryable(lastErr) || attempt == c.cfg.MaxRetries {
			return nil, c.classify(rawURL, lastErr)
		}
		if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
			return nil, err
		}
	}
	return nil, c.classify(rawURL, lastErr)
}

func (c *Client) attempt(req *http.Request, rawURL string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &statusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		for _, code := range c.cfg.RetryStatusCodes {
			if se.StatusCode == code {
				return true
			}
		}
		return false
	}
	return true
}

func (c *Client) classify(rawURL string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return &animeerrors.NetworkDetailError{URL: rawURL, Cause: animeerrors.ErrCancelled}
	}
	var se *statusError
	if errors.As(err, &se) {
		return &animeerrors.NetworkDetailError{URL: rawURL, StatusCode: se.StatusCode}
	}
	return &animeerrors.NetworkDetailError{URL: rawURL, Cause: err}
}

// backoffFor returns the doubling backoff for attempt, capped at MaxBackoff,
// jittered by ±20% per SPEC_FULL.md §4.A to avoid synchronized retry storms
// across a worker pool.
func (c *Client) backoffFor(attempt int) time.Duration {
	backoff := c.cfg.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
			break
		}
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // uniform in [0.8, 1.2]
	return time.Duration(float64(backoff) * jitter)
}

func (c *Client) waitBackoff(ctx context.Context, attempt int, cause error) error {
	backoff := c.backoffFor(attempt)
	var se *statusError
	if errors.As(cause, &se) && se.RetryAfter > backoff {
		backoff = se.RetryAfter
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}
