// Package registry looks plugins up in the public WordPress.org plugin
// directory.
//
// Lookups are queued and drained by a single worker, one request in flight
// at a time, spaced by a fixed delay to respect the directory's rate limit.
// Results, including misses, are cached for the lifetime of the Client.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wpinspect/wpinspect/internal/fetch"
	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// DefaultBaseURL is the plugin information endpoint of the WordPress.org API.
const DefaultBaseURL = "https://api.wordpress.org/plugins/info/1.2/"

// PluginInfo is the subset of registry metadata the analysis uses.
type PluginInfo struct {
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	Version          string `json:"version"`
	Author           string `json:"author,omitempty"`
	Requires         string `json:"requires,omitempty"`
	Tested           string `json:"tested,omitempty"`
	RequiresPHP      string `json:"requires_php,omitempty"`
	Rating           int    `json:"rating,omitempty"`
	NumRatings       int    `json:"num_ratings,omitempty"`
	ActiveInstalls   int    `json:"active_installs,omitempty"`
	LastUpdated      string `json:"last_updated,omitempty"`
	Homepage         string `json:"homepage,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
}

// Config tunes the client.
type Config struct {
	BaseURL   string
	Delay     time.Duration
	CacheSize int
	QueueSize int
	Timeout   time.Duration
	Logger    *zap.Logger
}

type lookupRequest struct {
	slug   string
	result chan *PluginInfo
}

// Client is a rate-limited, caching registry client. It is safe for
// concurrent use; Close releases the worker.
type Client struct {
	fetcher fetch.Fetcher
	baseURL string
	timeout time.Duration
	logger  *zap.Logger

	limiter *rate.Limiter
	cache   *lru.Cache[string, *PluginInfo]
	group   singleflight.Group
	queue   chan *lookupRequest

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	requests atomic.Int64
}

// NewClient starts a client and its queue worker.
func NewClient(f fetch.Fetcher, cfg Config) (*Client, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: fetcher", apperrors.ErrMissingRequired)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = consts.DefaultRegistryCacheSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = consts.DefaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, *PluginInfo](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create registry cache: %w", err)
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		fetcher: f,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.Named("registry"),
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache,
		queue:   make(chan *lookupRequest, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Lookup returns registry metadata for slug. A nil result with a nil error
// means the registry has no usable entry; that outcome is cached too.
// Concurrent lookups for the same slug share one request.
func (c *Client) Lookup(ctx context.Context, slug string) (*PluginInfo, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, fmt.Errorf("%w: empty slug", apperrors.ErrInvalidInput)
	}
	if info, ok := c.cache.Get(slug); ok {
		return info, nil
	}

	// The flight outlives any single caller; each caller waits on its own ctx.
	ch := c.group.DoChan(slug, func() (interface{}, error) {
		if info, ok := c.cache.Get(slug); ok {
			return info, nil
		}
		req := &lookupRequest{slug: slug, result: make(chan *PluginInfo, 1)}
		select {
		case c.queue <- req:
		case <-c.ctx.Done():
			return nil, apperrors.ErrClientClosed
		}
		select {
		case info := <-req.result:
			return info, nil
		case <-c.ctx.Done():
			return nil, apperrors.ErrClientClosed
		}
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		info, _ := res.Val.(*PluginInfo)
		return info, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cached returns the cached entry for slug without queuing a request.
func (c *Client) Cached(slug string) (*PluginInfo, bool) {
	return c.cache.Get(strings.ToLower(strings.TrimSpace(slug)))
}

// Requests returns how many network requests the client has issued.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// Close stops the worker. Pending and future lookups fail with ErrClientClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.queue:
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
			info := c.fetchInfo(req.slug)
			c.cache.Add(req.slug, info)
			req.result <- info
		}
	}
}

func (c *Client) fetchInfo(slug string) *PluginInfo {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("action", "plugin_information")
	q.Set("request[slug]", slug)
	target := c.baseURL + "?" + q.Encode()

	c.requests.Add(1)
	resp, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		c.logger.Warn("registry lookup failed", zap.String("slug", slug), zap.Error(err))
		return nil
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug("plugin not in registry", zap.String("slug", slug))
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("registry rate limited", zap.String("slug", slug))
		return nil
	case !resp.OK():
		c.logger.Warn("registry lookup unexpected status",
			zap.String("slug", slug),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	info, err := decodePluginInfo(resp.Body)
	if err != nil {
		c.logger.Warn("registry response decode failed", zap.String("slug", slug), zap.Error(err))
		return nil
	}
	if info.Slug == "" {
		info.Slug = slug
	}
	return info
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

type apiPlugin struct {
	Error            string     `json:"error"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Version          flexString `json:"version"`
	Author           string     `json:"author"`
	Requires         flexString `json:"requires"`
	Tested           flexString `json:"tested"`
	RequiresPHP      flexString `json:"requires_php"`
	Rating           float64    `json:"rating"`
	NumRatings       int        `json:"num_ratings"`
	ActiveInstalls   int        `json:"active_installs"`
	LastUpdated      string     `json:"last_updated"`
	Homepage         string     `json:"homepage"`
	ShortDescription string     `json:"short_description"`
}

func decodePluginInfo(body []byte) (*PluginInfo, error) {
	var raw apiPlugin
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidData, err)
	}
	if raw.Error != "" {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, raw.Error)
	}
	if raw.Slug == "" && raw.Name == "" {
		return nil, fmt.Errorf("%w: empty plugin record", apperrors.ErrInvalidData)
	}
	return &PluginInfo{
		Slug:             raw.Slug,
		Name:             raw.Name,
		Version:          string(raw.Version),
		Author:           strings.TrimSpace(tagPattern.ReplaceAllString(raw.Author, "")),
		Requires:         string(raw.Requires),
		Tested:           string(raw.Tested),
		RequiresPHP:      string(raw.RequiresPHP),
		Rating:           int(raw.Rating),
		NumRatings:       raw.NumRatings,
		ActiveInstalls:   raw.ActiveInstalls,
		LastUpdated:      raw.LastUpdated,
		Homepage:         raw.Homepage,
		ShortDescription: raw.ShortDescription,
	}, nil
}

// flexString accepts the registry's habit of sending false or numbers where
// a version string is expected.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}
