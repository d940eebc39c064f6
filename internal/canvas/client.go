package canvas

import (
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
	"time"

	"duesync/internal/logging"
)

const defaultPageSize = 100

// Client is a high-level client for the Canvas REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	retryBase  time.Duration
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
}

// New creates a new Client for the given Canvas instance. The access token is
// sent as an Authorization header on every request.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("canvas: baseURL is required")
	}
	if token == "" {
		return nil, fmt.Errorf("canvas: token is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{maxRetries: 3, retryBase: 500 * time.Millisecond}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
		maxRetries: cfg.maxRetries,
		retryBase:  cfg.retryBase,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// WithRetry bounds the retry loop for transient failures. base is the first
// backoff delay; it doubles per attempt.
func WithRetry(max int, base time.Duration) Option {
	return func(cfg *clientConfig) error {
		if max < 0 {
			return fmt.Errorf("canvas: negative retry count")
		}
		cfg.maxRetries = max
		cfg.retryBase = base
		return nil
	}
}

// getJSON executes a GET, decodes the JSON response into dst, and returns the
// rel="next" pagination URL (empty when exhausted). Transient failures
// (network errors, 5xx, 429) are retried with bounded exponential backoff;
// anything else surfaces immediately as an *APIError.
func (c *Client) getJSON(ctx context.Context, u, operation string, dst any) (next string, err error) {
	delay := c.retryBase
	for attempt := 0; ; attempt++ {
		next, err = c.getJSONOnce(ctx, u, operation, dst)
		if err == nil {
			return next, nil
		}

		retryable := false
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			retryable = isTransient(apiErr.statusCode)
			if apiErr.statusCode == http.StatusTooManyRequests && apiErr.retryAfter > 0 {
				delay = apiErr.retryAfter
			}
		} else {
			// Network-level failure; worth retrying.
			retryable = true
		}

		if !retryable || attempt >= c.maxRetries {
			return "", err
		}

		c.logger.WarnContext(ctx, "transient API failure, retrying",
			"operation", operation, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) getJSONOnce(ctx context.Context, u, operation string, dst any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.logger.DebugContext(ctx, "API request", "operation", operation, "url", u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: do request: %w", operation, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "API response", "operation", operation, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		msg := ""
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && len(eb.Errors) > 0 {
			msg = eb.Errors[0].Message
		}
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		if msg == "" {
			msg = resp.Status
		}
		apiErr := newAPIError(operation, resp.StatusCode, msg)
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, convErr := strconv.Atoi(s); convErr == nil && secs > 0 {
				apiErr.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return "", apiErr
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return "", fmt.Errorf("%s: decode response: %w", operation, err)
		}
	}
	return nextLink(resp.Header.Get("Link")), nil
}

// nextLink extracts the rel="next" URL from an RFC 5988 Link header.
// Canvas paginates every collection endpoint this way.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		urlPart := strings.Trim(strings.TrimSpace(section[0]), "<>")
		for _, param := range section[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return urlPart
			}
		}
	}
	return ""
}

// ListCourses returns all active-enrollment courses, auto-paginating.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	params := url.Values{}
	params.Set("enrollment_state", "active")
	params.Set("per_page", strconv.Itoa(defaultPageSize))
	u := fmt.Sprintf("%s/api/v1/courses?%s", c.baseURL, params.Encode())

	var all []Course
	for u != "" {
		var page []Course
		next, err := c.getJSON(ctx, u, "list courses", &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		u = next
	}
	return all, nil
}

// ListAssignments returns all upcoming assignments for a course, auto-paginating.
func (c *Client) ListAssignments(ctx context.Context, courseID int) ([]Assignment, error) {
	params := url.Values{}
	params.Set("bucket", "upcoming")
	params.Set("per_page", strconv.Itoa(defaultPageSize))
	u := fmt.Sprintf("%s/api/v1/courses/%d/assignments?%s", c.baseURL, courseID, params.Encode())

	var all []Assignment
	for u != "" {
		var page []Assignment
		next, err := c.getJSON(ctx, u, "list assignments", &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		u = next
	}
	return all, nil
}
