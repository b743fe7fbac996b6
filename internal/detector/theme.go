package detector

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/page"
)

// Theme detection methods in priority order.
const (
	ThemeByStylesheet   = "stylesheet"
	ThemeByBodyClass    = "body_class"
	ThemeByAssetPath    = "asset_path"
	ThemeByTemplateHint = "template_hint"
)

// ThemeFinding describes the active theme. Empty strings mean unknown.
type ThemeFinding struct {
	Slug            string   `json:"slug"`
	Name            string   `json:"name,omitempty"`
	Version         string   `json:"version,omitempty"`
	Author          string   `json:"author,omitempty"`
	AuthorURI       string   `json:"author_uri,omitempty"`
	Description     string   `json:"description,omitempty"`
	ThemeURI        string   `json:"theme_uri,omitempty"`
	Path            string   `json:"path"`
	StylesheetURL   string   `json:"stylesheet_url,omitempty"`
	DetectionMethod string   `json:"detection_method"`
	Tags            []string `json:"tags,omitempty"`
	RequiresWP      string   `json:"requires_wp,omitempty"`
	TestedUpTo      string   `json:"tested_up_to,omitempty"`
	RequiresPHP     string   `json:"requires_php,omitempty"`
	TextDomain      string   `json:"text_domain,omitempty"`
	ParentTheme     string   `json:"parent_theme,omitempty"`
}

// ThemeCandidate is one method's answer, as returned by DetectAll.
type ThemeCandidate struct {
	Slug   string `json:"slug"`
	Method string `json:"method"`
	Source string `json:"source"`
}

// ThemeDetector finds the active theme and reads its style.css header.
type ThemeDetector struct {
	Fetcher fetch.Fetcher
	Logger  *zap.Logger
}

// NewThemeDetector returns a ThemeDetector.
func NewThemeDetector(f fetch.Fetcher, logger *zap.Logger) *ThemeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThemeDetector{Fetcher: f, Logger: logger}
}

type themeMethod struct {
	name string
	find func(p *page.Page) (slug, source string)
}

var themeMethods = []themeMethod{
	{ThemeByStylesheet, themeFromStylesheet},
	{ThemeByBodyClass, themeFromBodyClass},
	{ThemeByAssetPath, themeFromAssets},
	{ThemeByTemplateHint, themeFromMarkup},
}

// Detect returns the first method's match, enriched from the theme header,
// or nil when no method finds a theme.
func (d *ThemeDetector) Detect(ctx context.Context, p *page.Page) *ThemeFinding {
	if p.Empty() {
		return nil
	}
	for _, m := range themeMethods {
		slug, source := m.find(p)
		if slug == "" {
			continue
		}
		finding := &ThemeFinding{
			Slug:            slug,
			Path:            ThemePath(slug),
			DetectionMethod: m.name,
			StylesheetURL:   stylesheetURL(p, slug, source),
		}
		d.enrich(ctx, finding)
		return finding
	}
	return nil
}

// DetectAll runs every method independently and returns each match.
func (d *ThemeDetector) DetectAll(p *page.Page) []ThemeCandidate {
	if p.Empty() {
		return nil
	}
	var out []ThemeCandidate
	for _, m := range themeMethods {
		if slug, source := m.find(p); slug != "" {
			out = append(out, ThemeCandidate{Slug: slug, Method: m.name, Source: source})
		}
	}
	return out
}

func (d *ThemeDetector) enrich(ctx context.Context, finding *ThemeFinding) {
	if d.Fetcher == nil || finding.StylesheetURL == "" {
		return
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resp, err := fetch.FetchOK(ctx, d.Fetcher, finding.StylesheetURL)
	if err != nil {
		logger.Debug("theme stylesheet fetch failed",
			zap.String("theme", finding.Slug),
			zap.String("url", finding.StylesheetURL),
			zap.Error(err))
		return
	}
	header := ParseThemeHeader(string(resp.Body))
	if len(header) == 0 {
		logger.Debug("theme header missing", zap.String("theme", finding.Slug))
		return
	}
	header.apply(finding)
}

func themeFromStylesheet(p *page.Page) (string, string) {
	for _, r := range p.Resources() {
		if r.Kind != page.KindStylesheet {
			continue
		}
		if slug := ThemeSlugFromURL(r.URL); slug != "" {
			return slug, r.URL
		}
	}
	return "", ""
}

func themeFromBodyClass(p *page.Page) (string, string) {
	for _, class := range p.BodyClasses() {
		for _, prefix := range []string{"wp-theme-", "theme-"} {
			if strings.HasPrefix(class, prefix) && len(class) > len(prefix) {
				return strings.ToLower(strings.TrimPrefix(class, prefix)), class
			}
		}
	}
	return "", ""
}

func themeFromAssets(p *page.Page) (string, string) {
	for _, r := range p.Resources() {
		if slug := ThemeSlugFromURL(r.URL); slug != "" {
			return slug, r.URL
		}
	}
	return "", ""
}

func themeFromMarkup(p *page.Page) (string, string) {
	m := themePathPattern.FindStringSubmatchIndex(p.Raw)
	if m == nil {
		return "", ""
	}
	return strings.ToLower(p.Raw[m[2]:m[3]]), p.Raw[m[0]:m[1]]
}

// stylesheetURL keeps the install prefix of the matched asset, in the
// asset's own case, so that subdirectory installs resolve correctly.
func stylesheetURL(p *page.Page, slug, source string) string {
	if strings.HasPrefix(strings.ToLower(source), "http") {
		m := themePathPattern.FindStringSubmatchIndex(source)
		if m != nil && strings.EqualFold(source[m[2]:m[3]], slug) {
			return source[:m[1]] + "style.css"
		}
	}
	return p.BaseURL() + strings.TrimPrefix(ThemePath(slug), "/") + "style.css"
}

// ThemeHeader is the parsed key/value block at the top of style.css, keyed
// by lowercased header name.
type ThemeHeader map[string]string

var (
	headerCommentPattern = regexp.MustCompile(`(?s)/\*(.*?)\*/`)
	themeHeaderKeys      = []string{
		"theme name", "theme uri", "author", "author uri", "description",
		"version", "tags", "requires at least", "tested up to", "requires php",
		"text domain", "template",
	}
)

// ParseThemeHeader reads the first comment block of a theme stylesheet.
// Unknown keys are ignored. It returns nil when no header is present.
func ParseThemeHeader(css string) ThemeHeader {
	m := headerCommentPattern.FindStringSubmatch(css)
	if m == nil {
		return nil
	}
	header := make(ThemeHeader)
	scanner := bufio.NewScanner(strings.NewReader(m[1]))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSpace(strings.TrimLeft(line, "*"))
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" || !isThemeHeaderKey(key) {
			continue
		}
		if _, dup := header[key]; !dup {
			header[key] = value
		}
	}
	if _, ok := header["theme name"]; !ok {
		return nil
	}
	return header
}

func isThemeHeaderKey(key string) bool {
	for _, k := range themeHeaderKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (h ThemeHeader) apply(f *ThemeFinding) {
	f.Name = h["theme name"]
	f.ThemeURI = h["theme uri"]
	f.Author = h["author"]
	f.AuthorURI = h["author uri"]
	f.Description = h["description"]
	f.Version = h["version"]
	f.RequiresWP = h["requires at least"]
	f.TestedUpTo = h["tested up to"]
	f.RequiresPHP = h["requires php"]
	f.TextDomain = h["text domain"]
	f.ParentTheme = h["template"]
	if tags := h["tags"]; tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
}
