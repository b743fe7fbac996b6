package detector

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	pluginPathPattern = regexp.MustCompile(`(?i)/wp-content/plugins/([a-z0-9][a-z0-9._-]*)/`)
	themePathPattern  = regexp.MustCompile(`(?i)/wp-content/themes/([a-z0-9][a-z0-9._-]*)/`)
	versionPattern    = regexp.MustCompile(`^\d+(?:\.\d+){0,3}$`)
)

// PluginSlugFromURL returns the plugin directory for an asset URL, or "".
func PluginSlugFromURL(raw string) string {
	m := pluginPathPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// ThemeSlugFromURL returns the theme directory for an asset URL, or "".
func ThemeSlugFromURL(raw string) string {
	m := themePathPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// PluginPath is the install path of a plugin slug.
func PluginPath(slug string) string {
	return "/wp-content/plugins/" + slug + "/"
}

// ThemePath is the install path of a theme slug.
func ThemePath(slug string) string {
	return "/wp-content/themes/" + slug + "/"
}

// assetVersion returns the ver query parameter when it looks like a version.
func assetVersion(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	v := strings.TrimSpace(u.Query().Get("ver"))
	if !versionPattern.MatchString(v) {
		return ""
	}
	return v
}

// humanize turns a slug into a display name ("contact-form-7" -> "Contact Form 7").
func humanize(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
