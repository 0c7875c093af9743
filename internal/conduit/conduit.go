package conduit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/revbridge/internal/cache"
	"github.com/dshills/revbridge/internal/redact"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 512
)

// cacheable lists the read-only methods whose results may be cached.
var cacheable = map[string]bool{
	"differential.parsecommitmessage": true,
	"user.query":                      true,
}

// ErrMissingURI is returned by NewClient when no endpoint is configured.
var ErrMissingURI = errors.New("conduit URI is not set")

// Client calls a Phabricator Conduit endpoint.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
	cache   *cache.Cache
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpCli = h }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpCli.Timeout = d
		}
	}
}

// WithCache caches results of idempotent reads.
func WithCache(ch *cache.Cache) Option {
	return func(c *Client) { c.cache = ch }
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the Conduit API rooted at uri, for example
// "https://phabricator.example.com/".
func NewClient(uri, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, ErrMissingURI
	}
	apiURL := strings.TrimRight(uri, "/")
	if !strings.HasSuffix(apiURL, "/api") {
		apiURL += "/api"
	}

	c := &Client{
		token:   token,
		apiURL:  apiURL,
		httpCli: &http.Client{Timeout: defaultTimeout},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is an error reported by Conduit in the response envelope.
type APIError struct {
	Method string
	Code   string
	Info   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conduit %s: %s: %s", e.Method, e.Code, e.Info)
}

type envelope struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode *string         `json:"error_code"`
	ErrorInfo *string         `json:"error_info"`
}

// Call invokes method with params and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, out any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling %s params: %w", method, err)
	}

	key := cache.BuildCacheKey(c.apiURL, method, payload)
	if cacheable[method] {
		if raw, ok := c.cache.Get(key); ok {
			c.logger.DebugContext(ctx, "conduit call", "method", method, "cached", true)
			return decodeResult(method, raw, out)
		}
	}

	start := time.Now()
	raw, err := c.post(ctx, method, params)
	c.logger.DebugContext(ctx, "conduit call",
		"method", method, "cached", false, "duration", time.Since(start), "error", err)
	if err != nil {
		return err
	}

	if cacheable[method] {
		if err := c.cache.Put(key, raw); err != nil {
			c.logger.WarnContext(ctx, "caching conduit result", "method", method, "error", err)
		}
	}
	return decodeResult(method, raw, out)
}

func (c *Client) post(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	withAuth := make(map[string]any, len(params)+1)
	for k, v := range params {
		withAuth[k] = v
	}
	withAuth["__conduit__"] = map[string]any{"token": c.token}
	encoded, err := json.Marshal(withAuth)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s params: %w", method, err)
	}

	form := url.Values{}
	form.Set("params", string(encoded))
	form.Set("output", "json")
	form.Set("__conduit__", "1")

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("calling %s: %w", method, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("reading %s response: %w", method, err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &transientError{
			status: resp.StatusCode,
			err:    fmt.Errorf("conduit %s (status %d): %s", method, resp.StatusCode, c.scrub(body)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conduit %s (status %d): %s", method, resp.StatusCode, c.scrub(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w: %s", method, err, c.scrub(body))
	}
	if env.ErrorCode != nil && *env.ErrorCode != "" {
		info := ""
		if env.ErrorInfo != nil {
			info = *env.ErrorInfo
		}
		return nil, &APIError{Method: method, Code: *env.ErrorCode, Info: redact.Token(info, c.token)}
	}
	return env.Result, nil
}

func (c *Client) scrub(body []byte) string {
	return redact.Truncate(redact.Token(string(body), c.token), maxErrorBody)
}

func decodeResult(method string, raw json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}
