package analyzer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/fetch/fetchtest"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

func TestBatchRunOrderDedupeAndErrors(t *testing.T) {
	f := siteFetcher().
		Handle("https://a.example/", `<html><head><meta name="generator" content="WordPress 6.3"></head></html>`).
		Handle("https://b.example/", `<html><body>plain</body></html>`)
	a := newTestAnalyzer(t, Config{Fetcher: f})
	runner := &BatchRunner{Analyzer: a, Concurrency: 2, Delay: time.Millisecond, Logger: zaptest.NewLogger(t)}

	var mu sync.Mutex
	var seen []string
	opts := DefaultOptions()
	opts.IncludePerformance = false

	results, err := runner.Run(context.Background(), []string{
		"a.example",
		"https://b.example/",
		"not a url",
		"https://A.example",
		"https://down.example/",
		siteURL,
	}, opts, func(r BatchResult) {
		mu.Lock()
		seen = append(seen, r.Input)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Len(t, results, 5)
	assert.Equal(t, "https://a.example/", results[0].URL)
	require.NotNil(t, results[0].Result)
	assert.Equal(t, "6.3", results[0].Result.Version.Version)

	require.NotNil(t, results[1].Result)
	assert.False(t, results[1].Result.WordPress.IsPositive)

	assert.Equal(t, "not a url", results[2].Input)
	assert.NotEmpty(t, results[2].Error)
	assert.Nil(t, results[2].Result)

	assert.Equal(t, "https://down.example/", results[3].URL)
	assert.Contains(t, results[3].Error, apperrors.ErrFetchFailed.Error())

	require.NotNil(t, results[4].Result)
	assert.True(t, results[4].Result.WordPress.IsPositive)

	assert.Len(t, seen, 5)
	assert.Equal(t, 1, f.Count("https://a.example/"))
}

func TestBatchRunNoTargets(t *testing.T) {
	a := newTestAnalyzer(t, Config{Fetcher: fetchtest.New()})
	_, err := (&BatchRunner{Analyzer: a}).Run(context.Background(), nil, DefaultOptions(), nil)
	assert.ErrorIs(t, err, apperrors.ErrNoTargets)
}

type concurrencyFetcher struct {
	*fetchtest.Fake
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (c *concurrencyFetcher) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	resp, err := c.Fake.Fetch(ctx, url)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return resp, err
}

func TestBatchRunRespectsBatchSize(t *testing.T) {
	fake := fetchtest.New()
	var urls []string
	for _, host := range []string{"a", "b", "c", "d", "e"} {
		u := "https://" + host + ".example/"
		fake.Handle(u, "<html><body>plain</body></html>")
		urls = append(urls, u)
	}
	f := &concurrencyFetcher{Fake: fake}
	a := newTestAnalyzer(t, Config{Fetcher: f})

	opts := DefaultOptions()
	opts.MaxConcurrentRequests = 2
	results, err := (&BatchRunner{Analyzer: a}).Run(context.Background(), urls, opts, nil)
	require.NoError(t, err)

	assert.Len(t, results, 5)
	assert.LessOrEqual(t, f.peak, 2)
}

func TestBatchRunCanceledBetweenBatches(t *testing.T) {
	fake := fetchtest.New().
		Handle("https://a.example/", "<html></html>").
		Handle("https://b.example/", "<html></html>")
	a := newTestAnalyzer(t, Config{Fetcher: fake})
	ctx, cancel := context.WithCancel(context.Background())

	runner := &BatchRunner{Analyzer: a, Concurrency: 1, Delay: time.Hour}
	results, err := runner.Run(ctx, []string{"https://a.example/", "https://b.example/"}, DefaultOptions(), func(BatchResult) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Result)
	assert.Nil(t, results[1].Result)
}
