// Package client is the typed HTTP client for the daemon control surface.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wardenhq/warden/internal/api"
)

const defaultTimeout = 10 * time.Second

// Config carries the connection settings for one daemon.
type Config struct {
	// BaseURL is the daemon's control address, e.g. http://127.0.0.1:7878.
	BaseURL string
	// Token is the bearer token presented on every request.
	Token string
	// Timeout bounds each request. Zero means the default.
	Timeout time.Duration
}

// Client talks to one daemon.
type Client struct {
	http *resty.Client
}

// APIError is the decoded error envelope returned by the daemon.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	Status  int            `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Code
}

// New constructs a Client. The base URL must parse; everything else is
// validated by the daemon.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid daemon url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: hc}, nil
}

// Status fetches the daemon-wide status report.
func (c *Client) Status(ctx context.Context) (*api.StatusReport, error) {
	var out api.StatusReport
	if err := c.get(ctx, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Timelines fetches the three replication positions. Absent positions come
// back as nil pointers.
func (c *Client) Timelines(ctx context.Context) (*api.TimelineReport, error) {
	var out api.TimelineReport
	if err := c.get(ctx, "/api/v1/timelines", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JournalRecords fetches one page of journal records after the given
// sequence cursor.
func (c *Client) JournalRecords(ctx context.Context, after uint64, limit int) (*api.JournalPage, error) {
	query := map[string]string{"after": strconv.FormatUint(after, 10)}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	var out api.JournalPage
	if err := c.get(ctx, "/api/v1/journal/records", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signal asks the daemon to deliver a signal to pid. The signal may be a
// name ("TERM") or a number ("15"); the daemon resolves it. A miss is
// reported in the result, not as an error.
func (c *Client) Signal(ctx context.Context, pid int, signal string) (*api.SignalResult, error) {
	var out api.SignalResult
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"signal": signal}).
		SetResult(&out).
		SetError(apiErr).
		Post("/api/v1/signal/" + strconv.Itoa(pid))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, apiErr
	}
	return &out, nil
}

// InducePanic asks the daemon to abort itself. The connection dying without
// a response is the expected success mode; an error envelope means the
// daemon refused.
func (c *Client) InducePanic(ctx context.Context) error {
	return c.crash(ctx, "/api/v1/crash/panic")
}

// InduceFatal asks the daemon to sever exactly this connection. Like
// InducePanic, a dropped connection reports success.
func (c *Client) InduceFatal(ctx context.Context) error {
	return c.crash(ctx, "/api/v1/crash/fatal")
}

func (c *Client) crash(ctx context.Context, path string) error {
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(apiErr).
		Post(path)
	if err != nil {
		if severed(err) {
			return nil
		}
		return err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Promote asks a standby daemon to begin a new timeline.
func (c *Client) Promote(ctx context.Context) (*api.PromoteResult, error) {
	var out api.PromoteResult
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(apiErr).
		Post("/api/v1/promote")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, apiErr
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	apiErr := &APIError{}
	req := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(apiErr)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

// IsCode reports whether err carries a daemon error envelope with the given
// code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// severed reports whether the error indicates the daemon dropped the
// connection without answering, which the crash endpoints do on success.
func severed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
