// Package performance measures the cost each detected plugin adds to a page:
// bytes, requests and render-blocking assets, folded into a 0-100 severity
// score, plus the opportunities and recommendations derived from them.
package performance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/page"
	"github.com/wpinspect/wpinspect/internal/pagespeed"
)

// Resource is one plugin-owned CSS or JS asset.
type Resource struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Bytes    int64  `json:"bytes"`
	Blocking bool   `json:"blocking"`
	Error    string `json:"error,omitempty"`
}

// Resource kinds.
const (
	KindCSS = "css"
	KindJS  = "js"
)

// PluginRecord is the per-plugin aggregate. Failed resources are listed but
// contribute nothing to the totals.
type PluginRecord struct {
	Slug          string     `json:"slug"`
	CSSBytes      int64      `json:"css_bytes"`
	JSBytes       int64      `json:"js_bytes"`
	TotalBytes    int64      `json:"total_bytes"`
	RequestCount  int        `json:"request_count"`
	BlockingCount int        `json:"blocking_count"`
	Score         int        `json:"score"`
	Resources     []Resource `json:"resources,omitempty"`
}

// PageMetrics describes the main document fetch.
type PageMetrics struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	LoadTimeMS int64  `json:"load_time_ms"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Result is the full performance section of an analysis.
type Result struct {
	Page             PageMetrics        `json:"page"`
	PageSpeed        *pagespeed.Results `json:"pagespeed,omitempty"`
	Plugins          []PluginRecord     `json:"plugins"`
	Opportunities    []Opportunity      `json:"opportunities"`
	Recommendations  []Recommendation   `json:"recommendations"`
	TotalPluginBytes int64              `json:"total_plugin_bytes"`
	TotalRequests    int                `json:"total_requests"`
	TotalBlocking    int                `json:"total_blocking"`
	Error            string             `json:"error,omitempty"`
}

// PageSpeedFetcher returns mobile and desktop reports for a URL.
type PageSpeedFetcher interface {
	FetchAll(ctx context.Context, target string) pagespeed.Results
}

// Input is what the analyzer needs for one run. Response and Page are
// optional; when nil the main page is fetched again.
type Input struct {
	URL      string
	Response *fetch.Response
	Page     *page.Page
	Plugins  []string
	// PageSpeed enables the PageSpeed stage when a fetcher is configured.
	PageSpeed bool
}

// Analyzer runs the performance pipeline. Each stage tolerates failure.
type Analyzer struct {
	Fetcher   fetch.Fetcher
	PageSpeed PageSpeedFetcher
	Logger    *zap.Logger
}

// NewAnalyzer returns an Analyzer. ps may be nil.
func NewAnalyzer(f fetch.Fetcher, ps PageSpeedFetcher, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{Fetcher: f, PageSpeed: ps, Logger: logger}
}

// Analyze never returns nil. Result.Error is set only when the run could
// not start.
func (a *Analyzer) Analyze(ctx context.Context, in Input) *Result {
	res := &Result{Plugins: []PluginRecord{}, Opportunities: []Opportunity{}, Recommendations: []Recommendation{}}
	if in.URL == "" || a.Fetcher == nil {
		res.Error = "performance analysis requires a url and a fetcher"
		return res
	}
	logger := a.logger().With(zap.String("url", in.URL))

	// Stage 1: main page timing.
	resp := in.Response
	if resp == nil {
		start := time.Now()
		r, err := a.Fetcher.Fetch(ctx, in.URL)
		if err != nil {
			logger.Warn("main page fetch failed", zap.Error(err))
		} else {
			if r.Duration == 0 {
				r.Duration = time.Since(start)
			}
			resp = r
		}
	}
	res.Page = PageMetrics{URL: in.URL}
	if resp != nil {
		res.Page.StatusCode = resp.StatusCode
		res.Page.LoadTimeMS = resp.Duration.Milliseconds()
		res.Page.SizeBytes = int64(len(resp.Body))
	}

	p := in.Page
	if p == nil && resp != nil {
		parsed, err := page.FromResponse(resp)
		if err != nil {
			logger.Warn("main page parse failed", zap.Error(err))
		} else {
			p = parsed
		}
	}

	// Stage 2: PageSpeed, both strategies at once.
	if in.PageSpeed && a.PageSpeed != nil {
		ps := a.PageSpeed.FetchAll(ctx, in.URL)
		res.PageSpeed = &ps
	}

	// Stages 3 and 4: plugin resources and per-plugin totals.
	records := a.measurePlugins(ctx, p, in.Plugins)

	// Stage 5: scores.
	for i := range records {
		r := &records[i]
		r.Score = Score(r.TotalBytes, r.RequestCount, r.BlockingCount)
		res.TotalPluginBytes += r.TotalBytes
		res.TotalRequests += r.RequestCount
		res.TotalBlocking += r.BlockingCount
	}
	sortRecords(records)
	res.Plugins = records

	// Stages 6 and 7.
	res.Opportunities = FindOpportunities(records)
	res.Recommendations = Recommend(res, len(in.Plugins))

	logger.Debug("performance analysis complete",
		zap.Int("plugins", len(records)),
		zap.Int64("plugin_bytes", res.TotalPluginBytes),
		zap.Int("blocking", res.TotalBlocking))
	return res
}

func (a *Analyzer) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}
