package detector

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/evidence"
	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/page"
)

// VersionMethod names the source a version string was read from.
type VersionMethod string

// Version methods in priority order.
const (
	MethodMetaGenerator VersionMethod = "meta_generator"
	MethodReadme        VersionMethod = "readme"
	MethodAssetVersion  VersionMethod = "asset_version"
	MethodFeed          VersionMethod = "feed"
)

var methodPriority = map[VersionMethod]int{
	MethodMetaGenerator: 0,
	MethodReadme:        1,
	MethodAssetVersion:  2,
	MethodFeed:          3,
}

var (
	generatorVersionPattern = regexp.MustCompile(`(?i)^wordpress\s+(\d+(?:\.\d+){0,2})`)
	readmeVersionPattern    = regexp.MustCompile(`(?i)version\s+(\d+\.\d+(?:\.\d+)?)`)
	feedVersionPattern      = regexp.MustCompile(`(?i)<generator>\s*https?://wordpress\.org/\?v=(\d+(?:\.\d+){0,2})\s*</generator>`)
)

// VersionFinding is one candidate core version.
type VersionFinding struct {
	Version    string        `json:"version"`
	Method     VersionMethod `json:"method"`
	Confidence evidence.Tier `json:"confidence"`
	SourceURL  string        `json:"source_url,omitempty"`
}

// VersionReport holds the ranked candidates and the chosen best one.
type VersionReport struct {
	Best       *VersionFinding  `json:"best,omitempty"`
	Candidates []VersionFinding `json:"candidates,omitempty"`
}

// VersionDetector probes the page and well-known files for the core version.
type VersionDetector struct {
	Fetcher fetch.Fetcher
	Logger  *zap.Logger

	// ProbeReadme enables the readme.html fetch.
	ProbeReadme bool
	// ProbeFeed enables the RSS feed fetch.
	ProbeFeed bool
}

// NewVersionDetector returns a detector with both network probes enabled.
func NewVersionDetector(f fetch.Fetcher, logger *zap.Logger) *VersionDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionDetector{Fetcher: f, Logger: logger, ProbeReadme: true, ProbeFeed: true}
}

// Detect runs every enabled method and ranks the candidates. Failed probes
// contribute nothing.
func (d *VersionDetector) Detect(ctx context.Context, p *page.Page) VersionReport {
	if p == nil {
		return VersionReport{}
	}
	logger := d.logger()

	var candidates []VersionFinding
	candidates = append(candidates, fromGenerator(p)...)

	if d.ProbeReadme && d.Fetcher != nil {
		if f := d.probeReadme(ctx, p); f != nil {
			candidates = append(candidates, *f)
		}
	}

	candidates = append(candidates, fromCoreAssets(p)...)

	if d.ProbeFeed && d.Fetcher != nil {
		if f := d.probeFeed(ctx, p); f != nil {
			candidates = append(candidates, *f)
		}
	}

	candidates = dedupeCandidates(candidates)
	RankVersions(candidates)

	report := VersionReport{Candidates: candidates}
	if len(candidates) > 0 {
		best := candidates[0]
		report.Best = &best
		logger.Debug("version detected",
			zap.String("version", best.Version),
			zap.String("method", string(best.Method)),
			zap.Int("candidates", len(candidates)))
	}
	return report
}

// RankVersions orders candidates by method priority, then confidence
// descending, then the more specific version string first.
func RankVersions(list []VersionFinding) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if pa, pb := methodPriority[a.Method], methodPriority[b.Method]; pa != pb {
			return pa < pb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return len(a.Version) > len(b.Version)
	})
}

func fromGenerator(p *page.Page) []VersionFinding {
	var out []VersionFinding
	for _, content := range p.MetaContent("generator") {
		if m := generatorVersionPattern.FindStringSubmatch(content); m != nil {
			out = append(out, VersionFinding{
				Version:    m[1],
				Method:     MethodMetaGenerator,
				Confidence: evidence.High,
				SourceURL:  p.URL.String(),
			})
		}
	}
	return out
}

func fromCoreAssets(p *page.Page) []VersionFinding {
	counts := make(map[string]int)
	sources := make(map[string]string)
	var order []string
	for _, r := range p.Resources() {
		if r.Kind != page.KindScript && r.Kind != page.KindStylesheet {
			continue
		}
		if !strings.Contains(r.URL, "/wp-includes/") && !strings.Contains(r.URL, "/wp-admin/") {
			continue
		}
		v := assetVersion(r.URL)
		if v == "" {
			continue
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
			sources[v] = r.URL
		}
		counts[v]++
	}

	out := make([]VersionFinding, 0, len(order))
	for _, v := range order {
		tier := evidence.Low
		if counts[v] >= minCoreAssets {
			tier = evidence.Medium
		}
		out = append(out, VersionFinding{
			Version:    v,
			Method:     MethodAssetVersion,
			Confidence: tier,
			SourceURL:  sources[v],
		})
	}
	return out
}

func (d *VersionDetector) probeReadme(ctx context.Context, p *page.Page) *VersionFinding {
	target := p.BaseURL() + "readme.html"
	resp, err := fetch.FetchOK(ctx, d.Fetcher, target)
	if err != nil {
		d.logger().Debug("readme probe failed", zap.String("url", target), zap.Error(err))
		return nil
	}
	m := readmeVersionPattern.FindSubmatch(resp.Body)
	if m == nil {
		return nil
	}
	return &VersionFinding{
		Version:    string(m[1]),
		Method:     MethodReadme,
		Confidence: evidence.Medium,
		SourceURL:  target,
	}
}

func (d *VersionDetector) probeFeed(ctx context.Context, p *page.Page) *VersionFinding {
	target := feedURL(p)
	resp, err := fetch.FetchOK(ctx, d.Fetcher, target)
	if err != nil {
		d.logger().Debug("feed probe failed", zap.String("url", target), zap.Error(err))
		return nil
	}
	m := feedVersionPattern.FindSubmatch(resp.Body)
	if m == nil {
		return nil
	}
	return &VersionFinding{
		Version:    string(m[1]),
		Method:     MethodFeed,
		Confidence: evidence.Medium,
		SourceURL:  target,
	}
}

// feedURL prefers the advertised RSS link on the same host.
func feedURL(p *page.Page) string {
	href, ok := p.Find(`link[rel="alternate"][type="application/rss+xml"]`).First().Attr("href")
	if ok {
		if resolved := p.Resolve(href); resolved != "" && strings.HasPrefix(resolved, p.BaseURL()) {
			return resolved
		}
	}
	return p.BaseURL() + "feed/"
}

func dedupeCandidates(list []VersionFinding) []VersionFinding {
	seen := make(map[string]struct{}, len(list))
	out := list[:0]
	for _, f := range list {
		key := string(f.Method) + "|" + f.Version
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (d *VersionDetector) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
