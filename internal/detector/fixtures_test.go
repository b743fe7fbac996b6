package detector

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wpinspect/wpinspect/internal/page"
)

const generatorOnlyHTML = `<html><head><meta name="generator" content="WordPress 6.4"></head><body><p>hi</p></body></html>`

const plainHTML = `<!DOCTYPE html><html><head><title>Static</title>
<link rel="stylesheet" href="/assets/site.css"></head>
<body class="home"><script src="/assets/app.js"></script></body></html>`

const wordpressHTML = `<!DOCTYPE html>
<html><head>
<meta name="generator" content="WordPress 6.4.2">
<meta name="generator" content="Elementor 3.18.0; features: e_dom_optimization">
<link rel="https://api.w.org/" href="https://example.com/wp-json/">
<link rel="alternate" type="application/rss+xml" title="Feed" href="https://example.com/feed/">
<link rel="stylesheet" id="twentytwentyfour-style-css" href="https://example.com/wp-content/themes/twentytwentyfour/style.css?ver=1.0" media="all">
<link rel="stylesheet" id="contact-form-7-css" href="https://example.com/wp-content/plugins/contact-form-7/includes/css/styles.css?ver=5.8.4" media="all">
<link rel="stylesheet" href="https://example.com/wp-includes/css/dist/block-library/style.min.css?ver=6.4.2">
<!-- This site is optimized with the Yoast SEO plugin v21.7 - https://yoast.com/wordpress/plugins/seo/ -->
<script type="application/ld+json" class="yoast-schema-graph">{}</script>
<!-- / Yoast SEO plugin. -->
<script id="contact-form-7-js-extra">var wpcf7 = {"api":{"root":"https:\/\/example.com\/wp-json\/"}};</script>
<script src="https://example.com/wp-includes/js/jquery/jquery.min.js?ver=3.7.1"></script>
<script src="https://example.com/wp-includes/js/wp-emoji-release.min.js?ver=6.4.2" defer></script>
</head>
<body class="home wp-theme-twentytwentyfour">
<div class="wpcf7 no-js" id="wpcf7-f12-o1"><form class="wpcf7-form"></form></div>
<div data-elementor-type="wp-page" class="elementor elementor-12"></div>
</body></html>`

const themeStyleCSS = `/*
Theme Name: Twenty Twenty-Four
Theme URI: https://wordpress.org/themes/twentytwentyfour/
Author: the WordPress team
Author URI: https://wordpress.org
Description: Twenty Twenty-Four is designed to be flexible.
Requires at least: 6.4
Tested up to: 6.4
Requires PHP: 7.0
Version: 1.0
License: GNU General Public License v2 or later
Text Domain: twentytwentyfour
Tags: one-column, custom-colors, block-patterns
*/
body { margin: 0; }`

func mustPage(t *testing.T, url, body string) *page.Page {
	t.Helper()
	p, err := page.Parse(url, []byte(body), nil)
	require.NoError(t, err)
	return p
}

func mustPageWithHeader(t *testing.T, url, body string, header http.Header) *page.Page {
	t.Helper()
	p, err := page.Parse(url, []byte(body), header)
	require.NoError(t, err)
	return p
}
