package performance

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/fetch/fetchtest"
	"github.com/wpinspect/wpinspect/internal/page"
	"github.com/wpinspect/wpinspect/internal/pagespeed"
)

const scenarioHTML = `<html><head>
<link rel="stylesheet" href="https://example.com/wp-content/plugins/heavy/a.css">
<link rel="stylesheet" media="print" href="https://example.com/wp-content/plugins/heavy/b.css">
<link rel="stylesheet" href="https://example.com/wp-content/plugins/heavy/a.css">
<script src="https://example.com/wp-content/plugins/light/app.js" defer></script>
<script src="https://example.com/wp-includes/js/jquery.js"></script>
</head><body></body></html>`

type stubPageSpeed struct {
	results pagespeed.Results
	calls   int
}

func (s *stubPageSpeed) FetchAll(context.Context, string) pagespeed.Results {
	s.calls++
	return s.results
}

func scenarioFetcher() *fetchtest.Fake {
	return fetchtest.New().
		Handle("https://example.com/", scenarioHTML).
		Handle("https://example.com/wp-content/plugins/heavy/a.css", strings.Repeat("a", 300*1024)).
		Handle("https://example.com/wp-content/plugins/heavy/b.css", strings.Repeat("b", 10*1024)).
		Handle("https://example.com/wp-content/plugins/light/app.js", strings.Repeat("c", 2048))
}

func TestAnalyzeScenario(t *testing.T) {
	f := scenarioFetcher()
	a := NewAnalyzer(f, nil, zaptest.NewLogger(t))

	res := a.Analyze(context.Background(), Input{
		URL:     "https://example.com/",
		Plugins: []string{"light", "heavy", "ghost"},
	})

	require.Empty(t, res.Error)
	assert.Equal(t, http.StatusOK, res.Page.StatusCode)
	assert.Equal(t, int64(len(scenarioHTML)), res.Page.SizeBytes)
	assert.Nil(t, res.PageSpeed)

	require.Len(t, res.Plugins, 3)
	heavy := res.Plugins[0]
	assert.Equal(t, "heavy", heavy.Slug)
	assert.Equal(t, 2, heavy.RequestCount)
	assert.Equal(t, 1, heavy.BlockingCount)
	assert.Equal(t, int64(310*1024), heavy.CSSBytes)
	assert.Equal(t, int64(310*1024), heavy.TotalBytes)
	assert.Zero(t, heavy.JSBytes)
	// floor(0.3027*20 + 2*5 + 1*15)
	assert.Equal(t, 31, heavy.Score)

	light := res.Plugins[1]
	assert.Equal(t, "light", light.Slug)
	assert.Equal(t, 0, light.BlockingCount)
	assert.Equal(t, int64(2048), light.JSBytes)
	assert.Equal(t, 5, light.Score)

	ghost := res.Plugins[2]
	assert.Equal(t, "ghost", ghost.Slug)
	assert.Zero(t, ghost.Score)
	assert.Empty(t, ghost.Resources)

	assert.Equal(t, int64(310*1024+2048), res.TotalPluginBytes)
	assert.Equal(t, 3, res.TotalRequests)
	assert.Equal(t, 1, res.TotalBlocking)

	// The duplicated a.css reference is measured once.
	assert.Equal(t, 1, f.Count("https://example.com/wp-content/plugins/heavy/a.css"))

	assert.Equal(t, []Opportunity{
		{Category: OpportunityRenderBlocking, Plugin: "heavy", Magnitude: 1},
		{Category: OpportunityLargeAssets, Plugin: "heavy", Magnitude: 310},
	}, res.Opportunities)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, OpportunityRenderBlocking, res.Recommendations[0].Type)
	assert.Equal(t, OpportunityLargeAssets, res.Recommendations[1].Type)
}

func TestAnalyzeUsesProvidedResponse(t *testing.T) {
	f := scenarioFetcher()
	a := NewAnalyzer(f, nil, nil)
	resp := &fetch.Response{
		URL:        "https://example.com/",
		StatusCode: http.StatusOK,
		Body:       []byte(scenarioHTML),
		Duration:   3500 * time.Millisecond,
	}

	res := a.Analyze(context.Background(), Input{URL: resp.URL, Response: resp, Plugins: []string{"light"}})

	assert.Equal(t, int64(3500), res.Page.LoadTimeMS)
	assert.Zero(t, f.Count("https://example.com/"))
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, OpportunitySlowResponse, res.Recommendations[0].Type)
	assert.Equal(t, PriorityHigh, res.Recommendations[0].Priority)
}

func TestAnalyzeHeadWithoutLengthFallsBackToGet(t *testing.T) {
	const asset = "https://example.com/wp-content/plugins/light/app.js"
	f := scenarioFetcher().HandleRoute(asset, fetchtest.Route{Body: strings.Repeat("c", 4096), NoLength: true})
	a := NewAnalyzer(f, nil, zaptest.NewLogger(t))

	res := a.Analyze(context.Background(), Input{URL: "https://example.com/", Plugins: []string{"light"}})

	require.Len(t, res.Plugins, 1)
	assert.Equal(t, int64(4096), res.Plugins[0].JSBytes)
	assert.Equal(t, 2, f.Count(asset))
}

func TestAnalyzeIsolatesResourceFailures(t *testing.T) {
	const broken = "https://example.com/wp-content/plugins/heavy/b.css"
	f := scenarioFetcher().HandleRoute(broken, fetchtest.Route{Status: http.StatusNotFound})
	a := NewAnalyzer(f, nil, zaptest.NewLogger(t))

	res := a.Analyze(context.Background(), Input{URL: "https://example.com/", Plugins: []string{"heavy"}})

	require.Len(t, res.Plugins, 1)
	heavy := res.Plugins[0]
	assert.Equal(t, 1, heavy.RequestCount)
	assert.Equal(t, int64(300*1024), heavy.TotalBytes)
	require.Len(t, heavy.Resources, 2)
	assert.NotEmpty(t, heavy.Resources[1].Error)
	assert.Equal(t, broken, heavy.Resources[1].URL)
}

func TestAnalyzePageSpeed(t *testing.T) {
	ps := &stubPageSpeed{results: pagespeed.Results{
		Desktop: &pagespeed.Report{Strategy: pagespeed.Desktop, PerformanceScore: 92},
	}}
	a := NewAnalyzer(scenarioFetcher(), ps, nil)

	res := a.Analyze(context.Background(), Input{URL: "https://example.com/", PageSpeed: true})
	require.NotNil(t, res.PageSpeed)
	assert.Nil(t, res.PageSpeed.Mobile)
	assert.Equal(t, 92, res.PageSpeed.Desktop.PerformanceScore)

	res = a.Analyze(context.Background(), Input{URL: "https://example.com/"})
	assert.Nil(t, res.PageSpeed)
	assert.Equal(t, 1, ps.calls)
}

func TestAnalyzePoorMobilePageSpeed(t *testing.T) {
	ps := &stubPageSpeed{results: pagespeed.Results{
		Mobile: &pagespeed.Report{Strategy: pagespeed.Mobile, PerformanceScore: 31},
	}}
	a := NewAnalyzer(scenarioFetcher(), ps, nil)

	res := a.Analyze(context.Background(), Input{URL: "https://example.com/", PageSpeed: true})

	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, OpportunityPageSpeed, res.Recommendations[0].Type)
}

func TestAnalyzeMainPageFailure(t *testing.T) {
	a := NewAnalyzer(fetchtest.New(), nil, zaptest.NewLogger(t))

	res := a.Analyze(context.Background(), Input{URL: "https://down.example/", Plugins: []string{"heavy"}})

	assert.Empty(t, res.Error)
	assert.Zero(t, res.Page.StatusCode)
	assert.Zero(t, res.Page.SizeBytes)
	require.Len(t, res.Plugins, 1)
	assert.Zero(t, res.Plugins[0].Score)
}

func TestAnalyzeWithoutURL(t *testing.T) {
	res := NewAnalyzer(fetchtest.New(), nil, nil).Analyze(context.Background(), Input{})
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Plugins)
	assert.NotNil(t, res.Recommendations)
}

func TestScoreBoundsAndMonotonicity(t *testing.T) {
	sizes := []int64{0, 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 2 * 1024 * 1024, 10 * 1024 * 1024}
	counts := []int{0, 1, 2, 3, 4, 5, 10}

	for _, size := range sizes {
		for _, req := range counts {
			for _, block := range counts {
				s := Score(size, req, block)
				assert.GreaterOrEqual(t, s, 0)
				assert.LessOrEqual(t, s, 100)
				assert.GreaterOrEqual(t, Score(size*2+1, req, block), s, "size")
				assert.GreaterOrEqual(t, Score(size, req+1, block), s, "requests")
				assert.GreaterOrEqual(t, Score(size, req, block+1), s, "blocking")
			}
		}
	}

	assert.Equal(t, 0, Score(0, 0, 0))
	assert.Equal(t, 90, Score(100*1024*1024, 100, 100))
	assert.Equal(t, 0, Score(-5, -1, -1))
}

func TestIsRenderBlocking(t *testing.T) {
	tests := []struct {
		name string
		r    page.Resource
		want bool
	}{
		{"css without media", page.Resource{Kind: page.KindStylesheet}, true},
		{"css media all", page.Resource{Kind: page.KindStylesheet, Media: "ALL"}, true},
		{"css print", page.Resource{Kind: page.KindStylesheet, Media: "print"}, false},
		{"css media query", page.Resource{Kind: page.KindStylesheet, Media: "(max-width: 600px)"}, false},
		{"sync script", page.Resource{Kind: page.KindScript}, true},
		{"async script", page.Resource{Kind: page.KindScript, Async: true}, false},
		{"deferred script", page.Resource{Kind: page.KindScript, Defer: true}, false},
		{"module script", page.Resource{Kind: page.KindScript, Module: true}, false},
		{"image", page.Resource{Kind: page.KindImage}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRenderBlocking(tt.r))
		})
	}
}

func TestRecommendWorstInstanceAndAudit(t *testing.T) {
	records := []PluginRecord{
		{Slug: "a", Score: 60, BlockingCount: 1, TotalBytes: 200 * 1024},
		{Slug: "b", Score: 75, BlockingCount: 3, TotalBytes: 50 * 1024},
		{Slug: "c", Score: 75, TotalBytes: 900 * 1024},
	}
	res := &Result{Opportunities: FindOpportunities(records)}

	recs := Recommend(res, 21)

	require.Len(t, recs, 4)
	assert.Equal(t, "b", recs[0].Plugin)
	assert.Equal(t, PriorityHigh, recs[0].Priority)
	assert.Equal(t, "b", recs[1].Plugin)
	assert.Equal(t, OpportunityRenderBlocking, recs[1].Type)
	assert.Equal(t, "c", recs[2].Plugin)
	assert.Equal(t, OpportunityLargeAssets, recs[2].Type)
	assert.Equal(t, OpportunityPluginAudit, recs[3].Type)
	assert.Empty(t, recs[3].Plugin)

	assert.Len(t, Recommend(&Result{}, 20), 0)
}
