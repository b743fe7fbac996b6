package detector

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/evidence"
	"github.com/wpinspect/wpinspect/internal/page"
	"github.com/wpinspect/wpinspect/internal/registry"
	"github.com/wpinspect/wpinspect/internal/wpversion"
)

// Plugin evidence types, one per extractor.
const (
	PluginAssetPath         = "asset_path"
	PluginHTMLComment       = "html_comment"
	PluginContentIdentifier = "content_identifier"
	PluginCSSSelector       = "css_selector"
	PluginScriptGlobal      = "script_global"
)

// PluginWeights scores each extractor type once per plugin.
var PluginWeights = map[string]int{
	PluginAssetPath:         40,
	PluginHTMLComment:       35,
	PluginContentIdentifier: 35,
	PluginCSSSelector:       20,
	PluginScriptGlobal:      20,
}

var pluginAggregator = evidence.NewAggregator(PluginWeights)

// PluginFinding is one detected plugin with its merged evidence.
type PluginFinding struct {
	Slug             string               `json:"slug"`
	Name             string               `json:"name"`
	Version          string               `json:"version,omitempty"`
	Category         string               `json:"category,omitempty"`
	IsOutdated       *bool                `json:"is_outdated"`
	DetectionMethods []string             `json:"detection_methods"`
	Confidence       evidence.Tier        `json:"confidence"`
	Score            int                  `json:"score"`
	Evidence         []evidence.Evidence  `json:"evidence"`
	Registry         *registry.PluginInfo `json:"registry,omitempty"`
}

// RegistryLookup resolves plugin metadata by slug. A nil info with a nil
// error means the registry does not know the slug.
type RegistryLookup interface {
	Lookup(ctx context.Context, slug string) (*registry.PluginInfo, error)
}

// PluginDetector extracts plugin evidence from a page and optionally enriches
// each slug from the registry.
type PluginDetector struct {
	Registry RegistryLookup
	Enrich   bool
	Logger   *zap.Logger
}

// NewPluginDetector returns a detector that enriches when reg is non-nil.
func NewPluginDetector(reg RegistryLookup, logger *zap.Logger) *PluginDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PluginDetector{Registry: reg, Enrich: reg != nil, Logger: logger}
}

// pluginHit is one (slug, evidence) pair from an extractor.
type pluginHit struct {
	slug     string
	evidence evidence.Evidence
	// version is the installed version when the signal carries one.
	version string
	// explicit marks versions read from a plugin's own banner rather than an
	// asset query string.
	explicit bool
}

type extractor func(p *page.Page) []pluginHit

var extractors = []extractor{
	extractAssetPaths,
	extractComments,
	extractContentIdentifiers,
	extractCSSSelectors,
	extractScriptGlobals,
}

// Detect returns every plugin found on the page, sorted by score descending
// then slug.
func (d *PluginDetector) Detect(ctx context.Context, p *page.Page) []PluginFinding {
	if p.Empty() {
		return nil
	}
	findings := mergePluginHits(collectHits(p))
	if d.Enrich && d.Registry != nil {
		d.enrich(ctx, findings)
	}
	return findings
}

func collectHits(p *page.Page) []pluginHit {
	var hits []pluginHit
	for _, ex := range extractors {
		hits = append(hits, ex(p)...)
	}
	return hits
}

type pluginAccum struct {
	slug        string
	evidence    []evidence.Evidence
	byType      map[string]int
	version     string
	explicitVer bool
}

// add records e as the extractor's single evidence item for this plugin.
// Repeat hits from the same extractor join their values and keep the
// strongest tier.
func (acc *pluginAccum) add(e evidence.Evidence) {
	i, ok := acc.byType[e.Type]
	if !ok {
		acc.byType[e.Type] = len(acc.evidence)
		acc.evidence = append(acc.evidence, e)
		return
	}
	cur := &acc.evidence[i]
	if e.Tier > cur.Tier {
		cur.Tier = e.Tier
	}
	for _, v := range strings.Split(cur.Value, ", ") {
		if v == e.Value {
			return
		}
	}
	cur.Value += ", " + e.Value
}

// mergePluginHits folds hits into one finding per slug.
func mergePluginHits(hits []pluginHit) []PluginFinding {
	bySlug := make(map[string]*pluginAccum)
	var order []string
	for _, h := range hits {
		acc, ok := bySlug[h.slug]
		if !ok {
			acc = &pluginAccum{slug: h.slug, byType: make(map[string]int)}
			bySlug[h.slug] = acc
			order = append(order, h.slug)
		}
		acc.add(h.evidence)
		switch {
		case h.version == "":
		case h.explicit && !acc.explicitVer:
			acc.version, acc.explicitVer = h.version, true
		case acc.version == "":
			acc.version = h.version
		}
	}

	out := make([]PluginFinding, 0, len(order))
	for _, slug := range order {
		acc := bySlug[slug]
		verdict := pluginAggregator.Aggregate(acc.evidence)
		out = append(out, PluginFinding{
			Slug:             slug,
			Name:             PluginName(slug),
			Version:          acc.version,
			Category:         PluginGroup(slug),
			DetectionMethods: verdict.Types(),
			Confidence:       verdict.Confidence,
			Score:            verdict.Score,
			Evidence:         verdict.Evidence,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// enrich looks slugs up one at a time; the registry client serializes
// requests anyway.
func (d *PluginDetector) enrich(ctx context.Context, findings []PluginFinding) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for i := range findings {
		f := &findings[i]
		info, err := d.Registry.Lookup(ctx, f.Slug)
		if err != nil {
			logger.Warn("plugin registry lookup failed", zap.String("slug", f.Slug), zap.Error(err))
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if info == nil {
			continue
		}
		f.Registry = info
		if _, known := signatureIndex[f.Slug]; !known && info.Name != "" {
			f.Name = info.Name
		}
		f.IsOutdated = wpversion.IsOutdated(f.Version, info.Version)
	}
}

func extractAssetPaths(p *page.Page) []pluginHit {
	var hits []pluginHit
	for _, r := range p.Resources() {
		if slug := PluginSlugFromURL(r.URL); slug != "" {
			hits = append(hits, pluginHit{
				slug:     slug,
				evidence: evidence.New(PluginAssetPath, r.URL, evidence.High),
				version:  assetVersion(r.URL),
			})
			continue
		}
		for i := range signatures {
			s := &signatures[i]
			for _, path := range s.paths {
				if strings.Contains(r.URL, path) {
					hits = append(hits, pluginHit{
						slug:     s.slug,
						evidence: evidence.New(PluginAssetPath, r.URL, evidence.High),
					})
				}
			}
		}
	}
	return hits
}

func extractComments(p *page.Page) []pluginHit {
	var hits []pluginHit
	for _, c := range p.Comments() {
		for i := range signatures {
			s := &signatures[i]
			if version, ok := matchAny(s.comments, c); ok {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginHTMLComment, clip(c), evidence.High),
					version:  version,
					explicit: version != "",
				})
			}
		}
		for _, m := range pluginPathPattern.FindAllStringSubmatch(c, -1) {
			hits = append(hits, pluginHit{
				slug:     strings.ToLower(m[1]),
				evidence: evidence.New(PluginHTMLComment, m[0], evidence.High),
			})
		}
	}
	return hits
}

func extractContentIdentifiers(p *page.Page) []pluginHit {
	var hits []pluginHit
	generators := p.MetaContent("generator")
	for i := range signatures {
		s := &signatures[i]
		for _, g := range generators {
			if version, ok := matchAny(s.generators, g); ok {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginContentIdentifier, "generator "+g, evidence.High),
					version:  version,
					explicit: version != "",
				})
			}
		}
		for _, sel := range s.identifiers {
			if p.Has(sel) {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginContentIdentifier, sel, evidence.High),
				})
			}
		}
	}
	return hits
}

func extractCSSSelectors(p *page.Page) []pluginHit {
	classes := p.ClassTokens()
	styles := strings.Join(p.InlineStyles(), "\n")
	var hits []pluginHit
	for i := range signatures {
		s := &signatures[i]
		for _, prefix := range s.classes {
			if tok := firstWithPrefix(classes, prefix); tok != "" {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginCSSSelector, "."+tok, evidence.Medium),
				})
				break
			}
			if strings.Contains(styles, "."+prefix) {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginCSSSelector, "inline style ."+prefix, evidence.Medium),
				})
				break
			}
		}
	}
	return hits
}

var (
	globalPatterns = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp)
		for _, s := range signatures {
			for _, g := range s.globals {
				m[g] = regexp.MustCompile(`\b` + regexp.QuoteMeta(g) + `\b\s*(?:=[^=]|\()`)
			}
		}
		return m
	}()
	scriptHandleSuffixes = []string{"-js-extra", "-js-before", "-js-after"}
)

func extractScriptGlobals(p *page.Page) []pluginHit {
	scripts := strings.Join(p.InlineScripts(), "\n")
	ids := scriptIDs(p)
	var hits []pluginHit
	for i := range signatures {
		s := &signatures[i]
		for _, g := range s.globals {
			if globalPatterns[g].MatchString(scripts) {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginScriptGlobal, g, evidence.Medium),
				})
			}
		}
		for _, h := range s.handles {
			if _, ok := ids[h]; ok {
				hits = append(hits, pluginHit{
					slug:     s.slug,
					evidence: evidence.New(PluginScriptGlobal, "script handle "+h, evidence.Medium),
				})
			}
		}
	}
	return hits
}

// scriptIDs returns the enqueue handles behind inline script ids such as
// "contact-form-7-js-extra".
func scriptIDs(p *page.Page) map[string]struct{} {
	out := make(map[string]struct{})
	for _, sel := range p.Find("script[id]").Nodes {
		for _, a := range sel.Attr {
			if a.Key != "id" {
				continue
			}
			for _, suffix := range scriptHandleSuffixes {
				if strings.HasSuffix(a.Val, suffix) {
					out[strings.TrimSuffix(a.Val, suffix)] = struct{}{}
				}
			}
		}
	}
	return out
}

// matchAny reports whether any pattern matches and returns the first
// captured version, if any.
func matchAny(patterns []*regexp.Regexp, s string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			if len(m) > 1 {
				return m[1], true
			}
			return "", true
		}
	}
	return "", false
}

func firstWithPrefix(tokens []string, prefix string) string {
	for _, t := range tokens {
		if strings.HasPrefix(t, prefix) {
			return t
		}
	}
	return ""
}

func clip(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
