package fetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original string // Original target string
	Scheme   string // http or https
	Host     string // Hostname (without protocol, path, port)
	Port     string // Port if specified
	Path     string // Path if specified
	FullURL  string // Full normalized URL (for HTTP requests)
}

// ParseTarget parses a target string into structured components.
// This handles various input formats:
//   - example.com
//   - http://example.com
//   - https://example.com:443/path
//   - example.com:8080
func ParseTarget(target string) *TargetInfo {
	target = strings.TrimSpace(target)
	info := &TargetInfo{
		Original: target,
	}

	parsed, err := url.Parse(target)

	// A missing scheme, or a "scheme" that is really a host with a port
	// (example.com:8080), means the input was a bare host.
	if err != nil || parsed.Scheme == "" || strings.Contains(parsed.Scheme, ".") || parsed.Host == "" {
		parsed, err = url.Parse("https://" + target)
		if err != nil {
			parsed = nil
		}
	}

	if parsed != nil {
		info.Scheme = strings.ToLower(parsed.Scheme)
		info.Host = strings.ToLower(parsed.Hostname())
		info.Port = parsed.Port()
		info.Path = parsed.Path
		parsed.Fragment = ""
		info.FullURL = parsed.String()
	}

	return info
}

// Validate reports whether the target can be fetched over HTTP(S).
func (t *TargetInfo) Validate() error {
	if t == nil || t.Original == "" {
		return apperrors.ErrEmptyTarget
	}
	if t.Host == "" || strings.ContainsAny(t.Host, " \t") {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidURL, t.Original)
	}
	if t.Scheme != "http" && t.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidURL, t.Scheme)
	}
	return nil
}

// BaseURL returns scheme://host[:port]/ for resolving well-known site paths.
func (t *TargetInfo) BaseURL() string {
	host := t.Host
	if t.Port != "" {
		host = host + ":" + t.Port
	}
	return t.Scheme + "://" + host + "/"
}

// Domain returns the registrable domain (eTLD+1), or the host when it has none.
func (t *TargetInfo) Domain() string {
	return RegistrableDomain(t.Host)
}

// NormalizeURL validates raw and returns a canonical URL: scheme and host
// lowercased, empty path replaced by "/".
func NormalizeURL(raw string) (string, error) {
	info := ParseTarget(raw)
	if err := info.Validate(); err != nil {
		return "", err
	}
	u, err := url.Parse(info.FullURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidURL, raw)
	}
	u.Scheme = info.Scheme
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// RegistrableDomain returns the eTLD+1 for host, falling back to host itself
// for IPs, localhost and other names without a public suffix.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if ip := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]"); net.ParseIP(ip) != nil {
		return ip
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// Resolve resolves ref against base, returning "" when either is unusable.
func Resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		ref = base.Scheme + ":" + ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
