package detector

import "regexp"

// Plugin groups used to spot overlapping functionality.
const (
	GroupSEO          = "seo"
	GroupCaching      = "caching"
	GroupForms        = "forms"
	GroupPageBuilder  = "page_builder"
	GroupSecurity     = "security"
	GroupAnalytics    = "analytics"
	GroupEcommerce    = "ecommerce"
	GroupMultilingual = "multilingual"
	GroupMarketing    = "marketing"
	GroupSlider       = "slider"
	GroupSuite        = "suite"
)

// signature is the fingerprint of one well-known plugin. Comment and
// generator patterns may capture the version in group 1.
type signature struct {
	slug  string
	name  string
	group string

	comments    []*regexp.Regexp
	generators  []*regexp.Regexp
	identifiers []string
	classes     []string
	globals     []string
	handles     []string
	paths       []string
}

var signatures = []signature{
	{
		slug: "wordpress-seo", name: "Yoast SEO", group: GroupSEO,
		comments:    rx(`This site is optimized with the Yoast SEO(?: Premium)? plugin v(\d+(?:\.\d+)*)`, `/ Yoast SEO`),
		identifiers: []string{"script.yoast-schema-graph"},
		classes:     []string{"yoast-"},
	},
	{
		slug: "seo-by-rank-math", name: "Rank Math SEO", group: GroupSEO,
		comments:    rx(`Search Engine Optimization by Rank Math`),
		identifiers: []string{"script.rank-math-schema", "script.rank-math-schema-pro"},
		classes:     []string{"rank-math-"},
	},
	{
		slug: "all-in-one-seo-pack", name: "All in One SEO", group: GroupSEO,
		comments:   rx(`All in One SEO(?: Pack)?(?: Pro)?\s+(\d+(?:\.\d+)*)`),
		generators: rx(`^All in One SEO \(AIOSEO\)\s+(\d+(?:\.\d+)*)`),
		classes:    []string{"aioseo-"},
	},
	{
		slug: "w3-total-cache", name: "W3 Total Cache", group: GroupCaching,
		comments: rx(`Performance optimized by W3 Total Cache`),
		paths:    []string{"/wp-content/cache/minify/"},
	},
	{
		slug: "wp-super-cache", name: "WP Super Cache", group: GroupCaching,
		comments: rx(`WP-Super-Cache`, `generated by WP-Super-Cache`),
	},
	{
		slug: "wp-rocket", name: "WP Rocket", group: GroupCaching,
		comments: rx(`This website is like a Rocket`),
		globals:  []string{"RocketLazyLoadScripts", "RocketPreloadLinksConfig"},
		paths:    []string{"/wp-content/cache/min/", "/wp-content/cache/busting/"},
	},
	{
		slug: "litespeed-cache", name: "LiteSpeed Cache", group: GroupCaching,
		comments: rx(`Page (?:optimized|cached|generated) by LiteSpeed Cache(?: (\d+(?:\.\d+)*))?`),
		paths:    []string{"/wp-content/litespeed/"},
	},
	{
		slug: "wp-fastest-cache", name: "WP Fastest Cache", group: GroupCaching,
		comments: rx(`WP Fastest Cache file was created`),
		paths:    []string{"/wp-content/cache/wpfc-minified/"},
	},
	{
		slug: "autoptimize", name: "Autoptimize", group: GroupCaching,
		comments: rx(`(?i)optimized by autoptimize`),
		paths:    []string{"/wp-content/cache/autoptimize/"},
	},
	{
		slug: "google-analytics-for-wordpress", name: "MonsterInsights", group: GroupAnalytics,
		comments: rx(`Google Analytics by MonsterInsights plugin v(\d+(?:\.\d+)*)`, `This site uses the Google Analytics by MonsterInsights`),
		globals:  []string{"monsterinsights_frontend", "MonsterInsightsDualTracker"},
		handles:  []string{"monsterinsights-frontend-script"},
	},
	{
		slug: "google-site-kit", name: "Site Kit by Google", group: GroupAnalytics,
		comments:   rx(`snippet added by Site Kit`),
		generators: rx(`^Site Kit by Google\s+(\d+(?:\.\d+)*)`),
		handles:    []string{"google_gtagjs"},
	},
	{
		slug: "elementor", name: "Elementor", group: GroupPageBuilder,
		generators:  rx(`^Elementor\s+(\d+(?:\.\d+)*)`),
		identifiers: []string{"[data-elementor-type]", "[data-elementor-id]"},
		classes:     []string{"elementor-"},
		globals:     []string{"elementorFrontendConfig"},
		handles:     []string{"elementor-frontend"},
	},
	{
		slug: "woocommerce", name: "WooCommerce", group: GroupEcommerce,
		generators: rx(`^WooCommerce\s+(\d+(?:\.\d+)*)`),
		classes:    []string{"woocommerce-", "wc-block-"},
		globals:    []string{"wc_add_to_cart_params", "woocommerce_params"},
		handles:    []string{"wc-add-to-cart", "woocommerce"},
	},
	{
		slug: "contact-form-7", name: "Contact Form 7", group: GroupForms,
		identifiers: []string{`[id^="wpcf7-f"]`, "div.wpcf7"},
		classes:     []string{"wpcf7-"},
		globals:     []string{"wpcf7"},
		handles:     []string{"contact-form-7"},
	},
	{
		slug: "gravityforms", name: "Gravity Forms", group: GroupForms,
		identifiers: []string{`[id^="gform_wrapper_"]`},
		classes:     []string{"gform_"},
		globals:     []string{"gf_global"},
		handles:     []string{"gform_gravityforms"},
	},
	{
		slug: "wpforms-lite", name: "WPForms", group: GroupForms,
		identifiers: []string{`[id^="wpforms-"]`},
		classes:     []string{"wpforms-"},
		globals:     []string{"wpforms_settings"},
		handles:     []string{"wpforms"},
	},
	{
		slug: "jetpack", name: "Jetpack", group: GroupSuite,
		identifiers: []string{"#jp-relatedposts"},
		classes:     []string{"jetpack-", "jp-carousel-"},
		globals:     []string{"jetpackCarouselStrings"},
		handles:     []string{"jetpack-carousel"},
	},
	{
		slug: "revslider", name: "Slider Revolution", group: GroupSlider,
		generators:  rx(`^Powered by Slider Revolution\s+(\d+(?:\.\d+)*)`),
		identifiers: []string{"rs-module-wrap", ".rev_slider_wrapper"},
		classes:     []string{"rev_slider"},
		globals:     []string{"setREVStartSize"},
	},
	{
		slug: "js_composer", name: "WPBakery Page Builder", group: GroupPageBuilder,
		generators: rx(`^Powered by WPBakery Page Builder`),
		classes:    []string{"vc_row", "wpb_"},
	},
	{
		slug: "beaver-builder-lite-version", name: "Beaver Builder", group: GroupPageBuilder,
		classes: []string{"fl-builder", "fl-row"},
	},
	{
		slug: "sitepress-multilingual-cms", name: "WPML", group: GroupMultilingual,
		generators: rx(`^WPML ver:(\d+(?:\.\d+)*)`),
		classes:    []string{"wpml-ls"},
		globals:    []string{"icl_vars"},
	},
	{
		slug: "mailchimp-for-wp", name: "MC4WP: Mailchimp for WordPress", group: GroupMarketing,
		comments: rx(`Mailchimp for WordPress v(\d+(?:\.\d+)*)`),
		classes:  []string{"mc4wp-"},
		globals:  []string{"mc4wp"},
	},
	{slug: "wordfence", name: "Wordfence Security", group: GroupSecurity},
	{slug: "better-wp-security", name: "Solid Security", group: GroupSecurity},
	{slug: "all-in-one-wp-security-and-firewall", name: "All-In-One Security", group: GroupSecurity},
	{slug: "sucuri-scanner", name: "Sucuri Security", group: GroupSecurity},
	{slug: "wp-optimize", name: "WP-Optimize", group: GroupCaching},
	{slug: "duracelltomi-google-tag-manager", name: "GTM4WP", group: GroupAnalytics},
}

var signatureIndex = func() map[string]*signature {
	idx := make(map[string]*signature, len(signatures))
	for i := range signatures {
		idx[signatures[i].slug] = &signatures[i]
	}
	return idx
}()

// PluginGroup returns the functional group of a known plugin slug, or "".
func PluginGroup(slug string) string {
	if s, ok := signatureIndex[slug]; ok {
		return s.group
	}
	return ""
}

// PluginName returns the display name of a plugin slug.
func PluginName(slug string) string {
	if s, ok := signatureIndex[slug]; ok {
		return s.name
	}
	return humanize(slug)
}

func rx(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
