// Package fetch is the HTTP capability the analysis pipeline calls into:
// fetch a URL and return status, headers and body while honoring a timeout,
// a redirect limit and a body-size cap.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// Response is the result of a single fetch.
type Response struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code"`
	Header     http.Header   `json:"-"`
	Body       []byte        `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ContentLength returns the declared Content-Length, or -1 when absent.
func (r *Response) ContentLength() int64 {
	if r == nil || r.Header == nil {
		return -1
	}
	v := r.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// StatusError signals a non-2xx response from FetchOK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetcher is implemented by anything that can GET and HEAD a URL.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Response, error)
	Head(ctx context.Context, target string) (*Response, error)
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	MaxBodyBytes int64
}

// Client is the default Fetcher backed by net/http.
type Client struct {
	http         *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewClient builds a Client, filling unset options with package defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = consts.DefaultFetchTimeout
	}
	if opts.MaxRedirects < 0 {
		opts.MaxRedirects = 0
	} else if opts.MaxRedirects == 0 {
		opts.MaxRedirects = consts.DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = consts.DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = consts.MaxPageBodyBytes
	}

	maxRedirects := opts.MaxRedirects
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: false,
					MinVersion:         tls.VersionTLS12,
				},
				MaxIdleConnsPerHost: 8,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("%w: stopped after %d", apperrors.ErrTooManyRedirect, len(via))
				}
				return nil
			},
		},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Fetch performs a GET request and reads up to MaxBodyBytes of the body.
// Non-2xx responses are returned without error; callers decide.
func (c *Client) Fetch(ctx context.Context, target string) (*Response, error) {
	return c.do(ctx, http.MethodGet, target)
}

// Head performs a HEAD request. Some servers disallow HEAD; callers that need
// a size should fall back to Fetch.
func (c *Client) Head(ctx context.Context, target string) (*Response, error) {
	return c.do(ctx, http.MethodHead, target)
}

func (c *Client) do(ctx context.Context, method, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,*/*;q=0.8")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	if method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		out.Body = body
	} else {
		// Discard response body - ignore errors as this is just cleanup
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	out.Duration = time.Since(start)

	return out, nil
}

// FetchOK fetches target and converts non-2xx statuses into a *StatusError.
func FetchOK(ctx context.Context, f Fetcher, target string) (*Response, error) {
	resp, err := f.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
