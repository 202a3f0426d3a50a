// Package client is a typed HTTP client for the ticketing API, used by the
// display panel and by integrations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxTries = 4
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type Client struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	maxTries uint
	initial  time.Duration
	log      *slog.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTimeout bounds every single attempt.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRetry sets the attempt budget and the first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(c *Client) { c.maxTries, c.initial = maxTries, initial }
}

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     http.DefaultClient,
		timeout:  defaultTimeout,
		maxTries: defaultMaxTries,
		initial:  200 * time.Millisecond,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.maxTries == 0 {
		c.maxTries = 1
	}
	return c
}

func (c *Client) SetToken(t string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = t
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

// do runs req under the retry policy: network errors, 429 and 5xx are
// retried with exponential backoff, any other non-2xx is final. It returns
// the final status code.
func (c *Client) do(ctx context.Context, req request, out any) (int, error) {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return 0, err
		}
		payload = b
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (int, error) {
		return c.attempt(ctx, req, payload, out)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warn("api request failed, retrying", "method", req.method, "path", req.path, "in", wait, "err", err)
		}),
	)
}

func (c *Client) attempt(ctx context.Context, req request, payload []byte, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	if payload != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	hr.Header.Set("Accept", "application/json")
	if tok := c.bearer(); tok != "" {
		hr.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range req.headers {
		hr.Header.Set(k, v)
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr := decodeError(resp.StatusCode, data)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return resp.StatusCode, errors.Join(apiErr, backoff.RetryAfter(secs))
		}
		return resp.StatusCode, apiErr
	case resp.StatusCode >= 500:
		return resp.StatusCode, decodeError(resp.StatusCode, data)
	case resp.StatusCode >= 400:
		return resp.StatusCode, backoff.Permanent(decodeError(resp.StatusCode, data))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, backoff.Permanent(fmt.Errorf("decode %s %s: %w", req.method, req.path, err))
		}
	}
	return resp.StatusCode, nil
}

func decodeError(status int, data []byte) *APIError {
	var body struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(status)
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: status, Message: msg}
}

func escape(id string) string { return url.PathEscape(id) }
