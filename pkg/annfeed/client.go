// Package annfeed is a Go client for the announcements REST service.
package annfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"annfeed/internal/util"
)

// Pagination styles accepted by the service.
const (
	StylePage   = "page"   // ?page=N&page_size=M
	StyleOffset = "offset" // ?offset=K&limit=M
)

var (
	// ErrNotFound is wrapped by errors for 404 responses.
	ErrNotFound = errors.New("annfeed: not found")
	// ErrTooLarge is returned when a response body exceeds MaxResponseBytes.
	ErrTooLarge = errors.New("annfeed: response too large")
)

// DefaultMaxResponseBytes bounds list and attachment bodies.
const DefaultMaxResponseBytes = 64 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string // first bytes of the response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("annfeed: HTTP %d", e.Code)
	}
	return fmt.Sprintf("annfeed: HTTP %d: %s", e.Code, e.Body)
}

// Retriable reports whether the request may succeed if repeated.
func (e *StatusError) Retriable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// IsRetriable reports whether err is a retriable status or a timeout.
func IsRetriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retriable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// Options configures a Client.
type Options struct {
	Token         string
	Style         string        // StylePage (default) or StyleOffset
	Timeout       time.Duration // default 30s
	RatePerSecond float64       // 0 disables pacing
	MaxRetries    int           // retries for list requests on retriable errors
	RetryBackoff  time.Duration // default 500ms, doubled per retry
	// MaxResponseBytes caps a response body, default DefaultMaxResponseBytes.
	MaxResponseBytes int64
	HTTPClient       *http.Client
}

// Client talks to the announcements service.
type Client struct {
	baseURL    string
	token      string
	style      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBytes   int64
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Style == "" {
		opts.Style = StylePage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      opts.Token,
		style:      opts.Style,
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		maxBytes:   opts.MaxResponseBytes,
	}
}

// ListParams selects one page of announcements. Page is 1-indexed.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	FromDate string // inclusive, YYYY-MM-DD
	ToDate   string // inclusive, YYYY-MM-DD
}

// Values encodes p in the given pagination style.
func (p ListParams) Values(style string) url.Values {
	v := url.Values{}
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if style == StyleOffset {
		v.Set("offset", strconv.Itoa((page-1)*size))
		v.Set("limit", strconv.Itoa(size))
	} else {
		v.Set("page", strconv.Itoa(page))
		v.Set("page_size", strconv.Itoa(size))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.FromDate != "" {
		v.Set("from_date", p.FromDate)
	}
	if p.ToDate != "" {
		v.Set("to_date", p.ToDate)
	}
	return v
}

// ListAnnouncements fetches one page and returns the raw response body. The
// body's shape varies between service versions; callers normalize it.
func (c *Client) ListAnnouncements(ctx context.Context, p ListParams) ([]byte, error) {
	u := c.baseURL + "/announcements?" + p.Values(c.style).Encode()

	backoff := util.Backoff{Base: c.backoff}
	for attempt := 0; ; attempt++ {
		body, err := c.get(ctx, u)
		if err == nil {
			return body, nil
		}
		if !IsRetriable(err) || attempt >= c.maxRetries {
			return nil, err
		}
		if err := util.Sleep(ctx, backoff.Next()); err != nil {
			return nil, err
		}
	}
}

// Attachment downloads the attachment blob for an announcement. It is never
// retried here; the caller decides.
func (c *Client) Attachment(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("annfeed: empty announcement id")
	}
	return c.get(ctx, c.baseURL+"/announcements/"+url.PathEscape(id)+"/attachment")
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/pdf;q=0.9, */*;q=0.5")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("GET %s: %w (limit %d bytes)", req.URL.Path, ErrTooLarge, c.maxBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(body)
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(excerpt)}
	}
	return body, nil
}
