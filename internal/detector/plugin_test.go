package detector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wpinspect/wpinspect/internal/evidence"
	"github.com/wpinspect/wpinspect/internal/registry"
)

type stubRegistry struct {
	mu    sync.Mutex
	infos map[string]*registry.PluginInfo
	errs  map[string]error
	calls []string
}

func (s *stubRegistry) Lookup(_ context.Context, slug string) (*registry.PluginInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, slug)
	if err := s.errs[slug]; err != nil {
		return nil, err
	}
	return s.infos[slug], nil
}

func findPlugin(t *testing.T, list []PluginFinding, slug string) PluginFinding {
	t.Helper()
	for _, f := range list {
		if f.Slug == slug {
			return f
		}
	}
	t.Fatalf("plugin %q not detected", slug)
	return PluginFinding{}
}

func TestPluginDetectMergesExtractors(t *testing.T) {
	d := NewPluginDetector(nil, zaptest.NewLogger(t))

	plugins := d.Detect(context.Background(), mustPage(t, "https://example.com/", wordpressHTML))

	require.Len(t, plugins, 3)
	assert.Equal(t, []string{"contact-form-7", "wordpress-seo", "elementor"},
		[]string{plugins[0].Slug, plugins[1].Slug, plugins[2].Slug})

	cf7 := plugins[0]
	assert.Equal(t, "Contact Form 7", cf7.Name)
	assert.Equal(t, GroupForms, cf7.Category)
	assert.Equal(t, "5.8.4", cf7.Version)
	assert.Equal(t, evidence.High, cf7.Confidence)
	assert.Equal(t, 100, cf7.Score)
	assert.Equal(t, []string{PluginAssetPath, PluginContentIdentifier, PluginCSSSelector, PluginScriptGlobal}, cf7.DetectionMethods)
	assert.Len(t, cf7.Evidence, len(cf7.DetectionMethods), "one evidence item per extractor")
	assert.Nil(t, cf7.IsOutdated)

	yoast := plugins[1]
	assert.Equal(t, "21.7", yoast.Version)
	assert.Equal(t, 90, yoast.Score)
	assert.Equal(t, []string{PluginHTMLComment, PluginContentIdentifier, PluginCSSSelector}, yoast.DetectionMethods)
	assert.Len(t, yoast.Evidence, 3)

	elementor := plugins[2]
	assert.Equal(t, "3.18.0", elementor.Version)
	assert.Equal(t, 55, elementor.Score)
	assert.Equal(t, GroupPageBuilder, elementor.Category)
}

func TestPluginEvidenceCollapsesPerExtractor(t *testing.T) {
	body := `<html><head>
<link rel="stylesheet" href="https://example.com/wp-content/plugins/foo/a.css">
<link rel="stylesheet" href="https://example.com/wp-content/plugins/foo/b.css">
<script src="https://example.com/wp-content/plugins/foo/c.js"></script>
</head><body></body></html>`
	d := NewPluginDetector(nil, zaptest.NewLogger(t))

	foo := findPlugin(t, d.Detect(context.Background(), mustPage(t, "https://example.com/", body)), "foo")

	assert.Equal(t, []string{PluginAssetPath}, foo.DetectionMethods)
	require.Len(t, foo.Evidence, 1)
	assert.Equal(t, PluginAssetPath, foo.Evidence[0].Type)
	assert.Equal(t, PluginWeights[PluginAssetPath], foo.Score)
}

func TestPluginDetectPathHintsAndComments(t *testing.T) {
	body := `<html><head>
<link rel="stylesheet" href="/wp-content/cache/autoptimize/css/autoptimize_abc.css">
<!-- widget assets from /wp-content/plugins/custom-widget/assets/ -->
</head><body><div class="gform_wrapper"></div></body></html>`
	d := NewPluginDetector(nil, nil)

	plugins := d.Detect(context.Background(), mustPage(t, "https://example.com/", body))

	require.Len(t, plugins, 3)
	autoptimize := findPlugin(t, plugins, "autoptimize")
	assert.Equal(t, []string{PluginAssetPath}, autoptimize.DetectionMethods)
	assert.Equal(t, GroupCaching, autoptimize.Category)

	custom := findPlugin(t, plugins, "custom-widget")
	assert.Equal(t, "Custom Widget", custom.Name)
	assert.Equal(t, []string{PluginHTMLComment}, custom.DetectionMethods)

	gf := findPlugin(t, plugins, "gravityforms")
	assert.Equal(t, evidence.Medium, gf.Confidence)
	assert.Equal(t, 20, gf.Score)
	assert.Equal(t, "gravityforms", plugins[2].Slug)
}

func TestPluginDetectEmptyPage(t *testing.T) {
	d := NewPluginDetector(nil, nil)
	assert.Empty(t, d.Detect(context.Background(), mustPage(t, "https://example.com/", "")))
	assert.Empty(t, d.Detect(context.Background(), mustPage(t, "https://example.com/", plainHTML)))
}

func TestPluginEnrichment(t *testing.T) {
	reg := &stubRegistry{
		infos: map[string]*registry.PluginInfo{
			"contact-form-7": {Slug: "contact-form-7", Name: "Contact Form 7", Version: "5.9"},
			"wordpress-seo":  {Slug: "wordpress-seo", Name: "Yoast SEO", Version: "21.7"},
		},
		errs: map[string]error{"elementor": errors.New("boom")},
	}
	d := NewPluginDetector(reg, zaptest.NewLogger(t))

	plugins := d.Detect(context.Background(), mustPage(t, "https://example.com/", wordpressHTML))

	assert.Equal(t, []string{"contact-form-7", "wordpress-seo", "elementor"}, reg.calls)

	cf7 := findPlugin(t, plugins, "contact-form-7")
	require.NotNil(t, cf7.IsOutdated)
	assert.True(t, *cf7.IsOutdated)
	assert.Equal(t, "5.9", cf7.Registry.Version)

	yoast := findPlugin(t, plugins, "wordpress-seo")
	require.NotNil(t, yoast.IsOutdated)
	assert.False(t, *yoast.IsOutdated)

	elementor := findPlugin(t, plugins, "elementor")
	assert.Nil(t, elementor.IsOutdated)
	assert.Nil(t, elementor.Registry)
}

func TestPluginEnrichmentUnknownVersion(t *testing.T) {
	body := `<html><head><script src="/wp-content/plugins/my-tool/app.js"></script></head><body></body></html>`
	reg := &stubRegistry{infos: map[string]*registry.PluginInfo{
		"my-tool": {Slug: "my-tool", Name: "My Tool Pro", Version: "2.0"},
	}}
	d := NewPluginDetector(reg, nil)

	plugins := d.Detect(context.Background(), mustPage(t, "https://example.com/", body))

	require.Len(t, plugins, 1)
	assert.Equal(t, "My Tool Pro", plugins[0].Name)
	assert.Empty(t, plugins[0].Version)
	assert.Nil(t, plugins[0].IsOutdated)
}

func TestPluginEnrichDisabled(t *testing.T) {
	reg := &stubRegistry{}
	d := NewPluginDetector(reg, nil)
	d.Enrich = false

	d.Detect(context.Background(), mustPage(t, "https://example.com/", wordpressHTML))

	assert.Empty(t, reg.calls)
}

func TestSlugHelpers(t *testing.T) {
	assert.Equal(t, "contact-form-7", PluginSlugFromURL("https://x.test/wp-content/plugins/Contact-Form-7/a.css"))
	assert.Empty(t, PluginSlugFromURL("https://x.test/wp-content/uploads/a.png"))
	assert.Equal(t, "astra", ThemeSlugFromURL("/wp-content/themes/astra/style.css"))
	assert.Equal(t, "astra", ThemeSlugFromURL("/WP-Content/Themes/Astra/style.css"))
	assert.Equal(t, "6.4.2", assetVersion("https://x.test/a.js?ver=6.4.2"))
	assert.Empty(t, assetVersion("https://x.test/a.js?ver=abc123"))
	assert.Equal(t, "Seo By Rank Math", humanize("seo-by-rank-math"))
	assert.Equal(t, "Rank Math SEO", PluginName("seo-by-rank-math"))
	assert.Equal(t, GroupSEO, PluginGroup("all-in-one-seo-pack"))
	assert.Empty(t, PluginGroup("custom-widget"))
}
