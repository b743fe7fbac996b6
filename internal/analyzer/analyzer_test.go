package analyzer

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/evidence"
	"github.com/wpinspect/wpinspect/internal/fetch/fetchtest"
	"github.com/wpinspect/wpinspect/internal/recommend"
	"github.com/wpinspect/wpinspect/internal/registry"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

const siteURL = "https://www.example.co.uk/"

const sitePage = `<!DOCTYPE html><html><head>
<meta name="generator" content="WordPress 6.4.2">
<link rel="https://api.w.org/" href="https://www.example.co.uk/wp-json/">
<link rel="stylesheet" href="https://www.example.co.uk/wp-content/themes/astra/style.css?ver=4.5.2">
<link rel="stylesheet" href="https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/css/styles.css?ver=5.8.4">
<script src="https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/js/index.js?ver=5.8.4"></script>
</head><body class="home wp-theme-astra"><div class="wpcf7" id="wpcf7-f4-o1"></div></body></html>`

const astraStyle = `/*
Theme Name: Astra
Version: 4.5.2
Tested up to: 6.4
*/`

type stubRegistry struct {
	mu    sync.Mutex
	calls int
}

func (s *stubRegistry) Lookup(_ context.Context, slug string) (*registry.PluginInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if slug == "contact-form-7" {
		return &registry.PluginInfo{Slug: slug, Name: "Contact Form 7", Version: "5.9", Tested: "6.4.3"}, nil
	}
	return nil, nil
}

func siteFetcher() *fetchtest.Fake {
	return fetchtest.New().
		Handle(siteURL, sitePage).
		Handle("https://www.example.co.uk/wp-content/themes/astra/style.css", astraStyle).
		Handle("https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/css/styles.css?ver=5.8.4", strings.Repeat("x", 4096)).
		Handle("https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/js/index.js?ver=5.8.4", strings.Repeat("y", 8192))
}

func newTestAnalyzer(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestAnalyzeFullSite(t *testing.T) {
	reg := &stubRegistry{}
	a := newTestAnalyzer(t, Config{Fetcher: siteFetcher(), Registry: reg})

	res, err := a.Analyze(context.Background(), "www.example.co.uk", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, siteURL, res.URL)
	assert.Equal(t, "example.co.uk", res.Domain)
	assert.False(t, res.Timestamp.IsZero())
	assert.True(t, res.WordPress.IsPositive)
	assert.Equal(t, evidence.High, res.WordPress.Confidence)

	require.NotNil(t, res.Version)
	assert.Equal(t, "6.4.2", res.Version.Version)
	assert.Equal(t, detector.MethodMetaGenerator, res.Version.Method)

	require.NotNil(t, res.Theme)
	assert.Equal(t, "astra", res.Theme.Slug)
	assert.Equal(t, "Astra", res.Theme.Name)
	assert.Equal(t, "4.5.2", res.Theme.Version)

	require.Len(t, res.Plugins, 1)
	cf7 := res.Plugins[0]
	assert.Equal(t, "contact-form-7", cf7.Slug)
	require.NotNil(t, cf7.IsOutdated)
	assert.True(t, *cf7.IsOutdated)
	assert.Equal(t, 1, reg.calls)

	require.NotNil(t, res.Performance)
	require.Len(t, res.Performance.Plugins, 1)
	assert.Equal(t, int64(4096+8192), res.Performance.Plugins[0].TotalBytes)
	assert.Equal(t, 2, res.Performance.Plugins[0].BlockingCount)

	require.NotNil(t, res.Recommendations)
	require.NotEmpty(t, res.Recommendations.TopRecommendations)
	assert.Equal(t, "compatibility-outdated-contact-form-7", res.Recommendations.TopRecommendations[0].ID)
	assert.NotEmpty(t, res.Recommendations.Recommendations[recommend.Functionality])
}

func TestAnalyzeNegativeSiteShortCircuits(t *testing.T) {
	f := fetchtest.New().Handle("https://static.example/", `<html><body><h1>Hello</h1></body></html>`)
	reg := &stubRegistry{}
	a := newTestAnalyzer(t, Config{Fetcher: f, Registry: reg})

	res, err := a.Analyze(context.Background(), "https://static.example/", DefaultOptions())
	require.NoError(t, err)

	assert.False(t, res.WordPress.IsPositive)
	assert.Nil(t, res.Version)
	assert.Nil(t, res.Theme)
	assert.Empty(t, res.Plugins)
	assert.Nil(t, res.Performance)
	assert.Nil(t, res.Recommendations)
	assert.Equal(t, []string{"GET https://static.example/"}, f.Calls())
	assert.Zero(t, reg.calls)
}

func TestAnalyzeGeneratorOnly(t *testing.T) {
	f := fetchtest.New().Handle("https://example.com/", `<html><head><meta name="generator" content="WordPress 6.4"></head><body></body></html>`)
	a := newTestAnalyzer(t, Config{Fetcher: f})

	res, err := a.Analyze(context.Background(), "https://example.com", DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.WordPress.IsPositive)
	assert.Equal(t, evidence.High, res.WordPress.Confidence)
	require.NotNil(t, res.Version)
	assert.Equal(t, "6.4", res.Version.Version)
	assert.Equal(t, detector.MethodMetaGenerator, res.Version.Method)
	assert.Nil(t, res.Theme)
	assert.Empty(t, res.Plugins)
}

func TestAnalyzeOptionsDisableStages(t *testing.T) {
	f := siteFetcher()
	reg := &stubRegistry{}
	a := newTestAnalyzer(t, Config{Fetcher: f, Registry: reg})

	opts := DefaultOptions()
	opts.IncludePlugins = false
	opts.IncludeTheme = false
	opts.IncludeVersion = false
	opts.IncludePerformance = false

	res, err := a.Analyze(context.Background(), siteURL, opts)
	require.NoError(t, err)

	assert.Nil(t, res.Version)
	assert.Nil(t, res.Theme)
	assert.Empty(t, res.Plugins)
	assert.Nil(t, res.Performance)
	require.NotNil(t, res.Recommendations)
	assert.Empty(t, res.Recommendations.Recommendations[recommend.Functionality])
	assert.Equal(t, []string{"GET " + siteURL}, f.Calls())
	assert.Zero(t, reg.calls)
}

func TestAnalyzeWithoutEnrichment(t *testing.T) {
	reg := &stubRegistry{}
	a := newTestAnalyzer(t, Config{Fetcher: siteFetcher(), Registry: reg})
	opts := DefaultOptions()
	opts.EnrichPlugins = false

	res, err := a.Analyze(context.Background(), siteURL, opts)
	require.NoError(t, err)

	require.Len(t, res.Plugins, 1)
	assert.Nil(t, res.Plugins[0].IsOutdated)
	assert.Zero(t, reg.calls)
}

func TestAnalyzeErrors(t *testing.T) {
	f := fetchtest.New().HandleRoute("https://forbidden.example/", fetchtest.Route{Status: http.StatusForbidden})
	a := newTestAnalyzer(t, Config{Fetcher: f})

	_, err := a.Analyze(context.Background(), "", DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrInvalidURL)

	_, err = a.Analyze(context.Background(), "ftp://example.com/", DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrInvalidURL)

	_, err = a.Analyze(context.Background(), "https://unreachable.example/", DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.ErrorIs(t, err, fetchtest.ErrUnreachable)

	_, err = a.Analyze(context.Background(), "https://forbidden.example/", DefaultOptions())
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
}

func TestNewRequiresFetcher(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, apperrors.ErrMissingRequired)
}
