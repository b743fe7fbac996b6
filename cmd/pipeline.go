package cmd

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/pagespeed"
	"github.com/wpinspect/wpinspect/internal/registry"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// pipeline owns the long-lived clients behind an Analyzer.
type pipeline struct {
	Analyzer *analyzer.Analyzer
	Registry *registry.Client
	// PageSpeed is nil when no API key is configured.
	PageSpeed *pagespeed.Client
}

// Close stops the registry worker.
func (p *pipeline) Close() {
	if p.Registry != nil {
		p.Registry.Close()
	}
}

// fetcherFactory is swapped by tests to run commands against fakes.
var fetcherFactory = func(cfg FetchConfig) fetch.Fetcher {
	return fetch.NewClient(fetch.Options{
		Timeout:      time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxRedirects: cfg.MaxRedirects,
		UserAgent:    cfg.UserAgent,
	})
}

func newPipeline(cfg *CLIConfig, logger *zap.Logger) (*pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := fetcherFactory(cfg.Fetch)

	reg, err := registry.NewClient(fetcher, registry.Config{
		Delay:     time.Duration(cfg.Registry.DelayMS) * time.Millisecond,
		CacheSize: cfg.Registry.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create registry client: %w", err)
	}
	p := &pipeline{Registry: reg}

	acfg := analyzer.Config{
		Fetcher:  fetcher,
		Registry: reg,
		Logger:   logger,
	}
	psCfg := pagespeed.DefaultConfig()
	psCfg.APIKey = cfg.PageSpeed.APIKey
	psCfg.MaxRetries = cfg.PageSpeed.MaxRetries
	psCfg.Logger = logger.Named("pagespeed")
	ps, err := pagespeed.NewClient(fetcher, psCfg)
	switch {
	case err == nil:
		p.PageSpeed = ps
		acfg.PageSpeed = ps
	case errors.Is(err, apperrors.ErrMissingAPIKey):
		// PageSpeed stays disabled.
	default:
		p.Close()
		return nil, fmt.Errorf("create pagespeed client: %w", err)
	}

	a, err := analyzer.New(acfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Analyzer = a
	return p, nil
}
