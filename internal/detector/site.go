package detector

import (
	"fmt"
	"strings"

	"github.com/wpinspect/wpinspect/internal/evidence"
	"github.com/wpinspect/wpinspect/internal/page"
)

// Site evidence types.
const (
	SiteMetaGenerator = "meta_generator"
	SiteStructure     = "wp_structure"
	SiteAssets        = "wp_assets"
	SiteRESTAPI       = "rest_api"
	SitePaths         = "wp_paths"
	SiteClasses       = "wp_classes"
	SitePingback      = "x_pingback"
)

// SiteWeights is the per-type score table for WordPress presence.
var SiteWeights = map[string]int{
	SiteMetaGenerator: 40,
	SiteStructure:     25,
	SiteAssets:        20,
	SiteRESTAPI:       25,
	SitePaths:         15,
	SiteClasses:       10,
	SitePingback:      10,
}

// minCoreAssets is how many wp-content/wp-includes references make the asset
// check fire.
const minCoreAssets = 2

var (
	sitePathFragments = []string{"/wp-content/", "/wp-includes/", "/wp-json/", "wp-emoji-release.min.js"}
	siteClassMarkers  = []string{"wp-block-", "wp-image-", "wp-caption", "wp-embed", "wp-element-"}
	siteStructure     = []struct {
		selector string
		label    string
	}{
		{"#wpadminbar", "admin bar"},
		{".wp-site-blocks", "block theme wrapper"},
		{`link[rel="EditURI"][href*="xmlrpc.php"]`, "EditURI xmlrpc link"},
		{`link[rel="wlwmanifest"]`, "wlwmanifest link"},
	}
	siteBodyClassPrefixes = []string{"wp-theme-", "wp-custom-logo", "wp-embed-responsive", "page-template", "postid-", "page-id-"}
)

var siteAggregator = evidence.NewAggregator(SiteWeights)

// DetectSite decides whether the page is served by WordPress. An empty page
// yields a negative verdict, never an error.
func DetectSite(p *page.Page) evidence.Verdict {
	return siteAggregator.Aggregate(SiteEvidence(p))
}

// SiteEvidence runs every site check and returns the evidence that fired.
func SiteEvidence(p *page.Page) []evidence.Evidence {
	if p.Empty() {
		return nil
	}
	var out []evidence.Evidence

	for _, content := range p.MetaContent("generator") {
		if strings.HasPrefix(strings.ToLower(content), "wordpress") {
			out = append(out, evidence.New(SiteMetaGenerator, content, evidence.High))
			break
		}
	}

	if found := structureMarkers(p); len(found) > 0 {
		out = append(out, evidence.New(SiteStructure, strings.Join(found, ", "), evidence.High))
	}

	if n := countCoreAssets(p); n >= minCoreAssets {
		out = append(out, evidence.New(SiteAssets, fmt.Sprintf("%d wp-content/wp-includes assets", n), evidence.High))
	}

	switch {
	case p.Has(`link[rel="https://api.w.org/"]`):
		out = append(out, evidence.New(SiteRESTAPI, "api.w.org discovery link", evidence.High))
	case strings.Contains(p.Header.Get("Link"), "api.w.org"):
		out = append(out, evidence.New(SiteRESTAPI, "api.w.org Link header", evidence.High))
	}

	if found := containsAny(p.Lower(), sitePathFragments); len(found) > 0 {
		out = append(out, evidence.New(SitePaths, strings.Join(found, ", "), evidence.Medium))
	}

	if found := containsAny(p.Lower(), siteClassMarkers); len(found) > 0 {
		out = append(out, evidence.New(SiteClasses, strings.Join(found, ", "), evidence.Medium))
	}

	if pingback := p.Header.Get("X-Pingback"); strings.Contains(pingback, "xmlrpc.php") {
		out = append(out, evidence.New(SitePingback, pingback, evidence.Medium))
	}

	return out
}

func structureMarkers(p *page.Page) []string {
	var found []string
	for _, s := range siteStructure {
		if p.Has(s.selector) {
			found = append(found, s.label)
		}
	}
	for _, class := range p.BodyClasses() {
		if hasAnyPrefix(class, siteBodyClassPrefixes) {
			found = append(found, "body class "+class)
			break
		}
	}
	return found
}

func countCoreAssets(p *page.Page) int {
	n := 0
	for _, r := range p.Resources() {
		if r.Kind != page.KindScript && r.Kind != page.KindStylesheet {
			continue
		}
		lower := strings.ToLower(r.URL)
		if strings.Contains(lower, "/wp-content/") || strings.Contains(lower, "/wp-includes/") {
			n++
		}
	}
	return n
}

func containsAny(haystack string, needles []string) []string {
	var found []string
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			found = append(found, n)
		}
	}
	return found
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
