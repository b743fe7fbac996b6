// Package pagespeed fetches PageSpeed Insights reports for a URL, running the
// mobile and desktop strategies concurrently with independent retry loops.
package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wpinspect/wpinspect/internal/fetch"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// DefaultEndpoint is the PageSpeed Insights v5 API.
const DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// Strategy is the device profile a report is computed for.
type Strategy string

const (
	Mobile  Strategy = "mobile"
	Desktop Strategy = "desktop"
)

// Config holds retry and endpoint settings.
type Config struct {
	Endpoint    string
	APIKey      string
	MaxRetries  int           // Total attempts per strategy (default: 3)
	BaseDelay   time.Duration // Backoff unit, multiplied by the attempt number (default: 2s)
	BaseTimeout time.Duration // Per-attempt timeout unit, multiplied by the attempt number (default: 30s)
	Logger      *zap.Logger
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		MaxRetries:  3,
		BaseDelay:   2 * time.Second,
		BaseTimeout: 30 * time.Second,
	}
}

// Report is the subset of a Lighthouse result the analyzer uses. Timings are
// in milliseconds.
type Report struct {
	Strategy               Strategy `json:"strategy"`
	PerformanceScore       int      `json:"performance_score"`
	FirstContentfulPaint   float64  `json:"first_contentful_paint_ms"`
	LargestContentfulPaint float64  `json:"largest_contentful_paint_ms"`
	TotalBlockingTime      float64  `json:"total_blocking_time_ms"`
	CumulativeLayoutShift  float64  `json:"cumulative_layout_shift"`
	SpeedIndex             float64  `json:"speed_index_ms"`
	TimeToInteractive      float64  `json:"time_to_interactive_ms"`
}

// Results pairs both strategies. A nil report means that strategy failed.
type Results struct {
	Mobile  *Report `json:"mobile"`
	Desktop *Report `json:"desktop"`
}

// Client calls the PageSpeed API through a Fetcher.
type Client struct {
	fetcher fetch.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// NewClient validates cfg and fills defaults.
func NewClient(f fetch.Fetcher, cfg Config) (*Client, error) {
	if f == nil {
		return nil, fmt.Errorf("pagespeed: %w: fetcher", apperrors.ErrMissingRequired)
	}
	if cfg.APIKey == "" {
		return nil, apperrors.ErrMissingAPIKey
	}
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = def.BaseTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: f, cfg: cfg, logger: logger}, nil
}

// FetchAll runs both strategies concurrently. Failures leave the report nil
// and are logged; FetchAll itself never fails.
func (c *Client) FetchAll(ctx context.Context, target string) Results {
	var res Results
	var g errgroup.Group
	g.Go(func() error {
		res.Mobile = c.fetchLogged(ctx, target, Mobile)
		return nil
	})
	g.Go(func() error {
		res.Desktop = c.fetchLogged(ctx, target, Desktop)
		return nil
	})
	_ = g.Wait()
	return res
}

func (c *Client) fetchLogged(ctx context.Context, target string, s Strategy) *Report {
	report, err := c.Fetch(ctx, target, s)
	if err != nil {
		c.logger.Warn("pagespeed report unavailable",
			zap.String("url", target),
			zap.String("strategy", string(s)),
			zap.Error(err))
		return nil
	}
	return report
}

// Fetch retrieves one strategy's report with retry on network errors,
// timeouts, 5xx and 429. Other statuses fail immediately.
func (c *Client) Fetch(ctx context.Context, target string, s Strategy) (*Report, error) {
	endpoint := c.requestURL(target, s)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.BaseTimeout*time.Duration(attempt))
		report, err := c.attempt(attemptCtx, endpoint, s)
		cancel()
		if err == nil {
			if attempt > 1 {
				c.logger.Info("pagespeed succeeded after retry",
					zap.String("strategy", string(s)), zap.Int("attempt", attempt))
			}
			return report, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("pagespeed %s: %w", s, ctx.Err())
		}
		if !isRetriable(err) {
			return nil, fmt.Errorf("pagespeed %s: %w", s, err)
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		backoff := c.cfg.BaseDelay * time.Duration(attempt)
		c.logger.Debug("pagespeed attempt failed, retrying",
			zap.String("strategy", string(s)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("pagespeed %s: canceled during backoff: %w", s, ctx.Err())
		}
	}
	return nil, fmt.Errorf("pagespeed %s: %w after %d attempts: %w", s, apperrors.ErrRetryExhausted, c.cfg.MaxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, endpoint string, s Strategy) (*Report, error) {
	resp, err := fetch.FetchOK(ctx, c.fetcher, endpoint)
	if err != nil {
		return nil, err
	}
	return parseReport(resp.Body, s)
}

func (c *Client) requestURL(target string, s Strategy) string {
	q := url.Values{}
	q.Set("url", target)
	q.Set("strategy", string(s))
	q.Set("category", "performance")
	q.Set("key", c.cfg.APIKey)
	return c.cfg.Endpoint + "?" + q.Encode()
}

// isRetriable reports whether err is transient.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	if errors.Is(err, apperrors.ErrInvalidData) {
		return false
	}
	// Anything else came from the transport: DNS, resets, deadlines.
	return true
}

type lighthouseResponse struct {
	LighthouseResult *struct {
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

func parseReport(body []byte, s Strategy) (*Report, error) {
	var payload lighthouseResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidData, err)
	}
	lr := payload.LighthouseResult
	if lr == nil || lr.Categories.Performance.Score == nil {
		return nil, fmt.Errorf("%w: missing lighthouse performance result", apperrors.ErrInvalidData)
	}
	score := int(math.Round(*lr.Categories.Performance.Score * 100))
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	return &Report{
		Strategy:               s,
		PerformanceScore:       score,
		FirstContentfulPaint:   lr.Audits["first-contentful-paint"].NumericValue,
		LargestContentfulPaint: lr.Audits["largest-contentful-paint"].NumericValue,
		TotalBlockingTime:      lr.Audits["total-blocking-time"].NumericValue,
		CumulativeLayoutShift:  lr.Audits["cumulative-layout-shift"].NumericValue,
		SpeedIndex:             lr.Audits["speed-index"].NumericValue,
		TimeToInteractive:      lr.Audits["interactive"].NumericValue,
	}, nil
}
