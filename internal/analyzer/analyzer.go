// Package analyzer orchestrates one WordPress analysis: fetch the page,
// decide whether it is WordPress, run the version, theme and plugin
// detectors concurrently, measure plugin performance and derive
// recommendations.
package analyzer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/evidence"
	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/page"
	"github.com/wpinspect/wpinspect/internal/performance"
	"github.com/wpinspect/wpinspect/internal/recommend"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// Result is the aggregate of one analysis run.
type Result struct {
	URL               string                    `json:"url"`
	Domain            string                    `json:"domain"`
	Timestamp         time.Time                 `json:"timestamp"`
	WordPress         evidence.Verdict          `json:"wordpress"`
	Version           *detector.VersionFinding  `json:"version"`
	VersionCandidates []detector.VersionFinding `json:"version_candidates,omitempty"`
	Theme             *detector.ThemeFinding    `json:"theme"`
	Plugins           []detector.PluginFinding  `json:"plugins"`
	Performance       *performance.Result       `json:"performance"`
	Recommendations   *recommend.Report         `json:"recommendations"`
	Duration          time.Duration             `json:"-"`
	DurationMS        int64                     `json:"duration_ms"`
}

// Config wires an Analyzer. Only Fetcher is required.
type Config struct {
	Fetcher   fetch.Fetcher
	Registry  detector.RegistryLookup
	PageSpeed performance.PageSpeedFetcher
	Logger    *zap.Logger
}

// Analyzer runs analyses. It is safe for concurrent use.
type Analyzer struct {
	fetcher   fetch.Fetcher
	registry  detector.RegistryLookup
	pageSpeed performance.PageSpeedFetcher
	logger    *zap.Logger
	now       func() time.Time
}

// New validates cfg and returns an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("analyzer: %w: fetcher", apperrors.ErrMissingRequired)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		fetcher:   cfg.Fetcher,
		registry:  cfg.Registry,
		pageSpeed: cfg.PageSpeed,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Analyze inspects one site. It fails only on an invalid URL or when the
// main page cannot be fetched; every later stage degrades instead.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	start := a.now()

	target, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", apperrors.ErrInvalidURL, rawURL, err)
	}
	logger := a.logger.With(zap.String("url", target))

	res := &Result{
		URL:       target,
		Domain:    domainOf(target),
		Timestamp: start.UTC(),
		Plugins:   []detector.PluginFinding{},
	}

	resp, err := fetch.FetchOK(ctx, a.fetcher, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrFetchFailed, target, err)
	}
	p, err := page.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrFetchFailed, target, err)
	}

	res.WordPress = detector.DetectSite(p)
	logger.Debug("site detection",
		zap.Bool("wordpress", res.WordPress.IsPositive),
		zap.String("confidence", res.WordPress.Confidence.String()),
		zap.Int("score", res.WordPress.Score))
	if !res.WordPress.IsPositive {
		a.finish(res, start)
		return res, nil
	}

	var (
		version detector.VersionReport
		theme   *detector.ThemeFinding
		plugins []detector.PluginFinding
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.IncludeVersion {
		g.Go(func() error {
			version = detector.NewVersionDetector(a.fetcher, logger).Detect(gctx, p)
			return nil
		})
	}
	if opts.IncludeTheme {
		g.Go(func() error {
			theme = detector.NewThemeDetector(a.fetcher, logger).Detect(gctx, p)
			return nil
		})
	}
	if opts.IncludePlugins {
		g.Go(func() error {
			d := detector.NewPluginDetector(a.registry, logger)
			d.Enrich = opts.EnrichPlugins && a.registry != nil
			plugins = d.Detect(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	res.Version = version.Best
	res.VersionCandidates = version.Candidates
	res.Theme = theme
	if plugins != nil {
		res.Plugins = plugins
	}

	if opts.IncludePerformance {
		slugs := make([]string, len(res.Plugins))
		for i, pl := range res.Plugins {
			slugs[i] = pl.Slug
		}
		res.Performance = performance.NewAnalyzer(a.fetcher, a.pageSpeed, logger).Analyze(ctx, performance.Input{
			URL:       target,
			Response:  resp,
			Page:      p,
			Plugins:   slugs,
			PageSpeed: opts.IncludePageSpeed,
		})
	}

	if opts.IncludeRecommendations {
		in := recommend.Input{
			Plugins:         res.Plugins,
			Theme:           res.Theme,
			Performance:     res.Performance,
			PluginsAnalyzed: opts.IncludePlugins,
			RegistryChecked: opts.IncludePlugins && opts.EnrichPlugins && a.registry != nil,
		}
		if res.Version != nil {
			in.CoreVersion = res.Version.Version
		}
		res.Recommendations = recommend.Generate(in)
	}

	a.finish(res, start)
	logger.Info("analysis complete",
		zap.Int("plugins", len(res.Plugins)),
		zap.Int64("duration_ms", res.DurationMS))
	return res, nil
}

func (a *Analyzer) finish(res *Result, start time.Time) {
	res.Duration = a.now().Sub(start)
	res.DurationMS = res.Duration.Milliseconds()
}

func domainOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return fetch.RegistrableDomain(u.Hostname())
}
