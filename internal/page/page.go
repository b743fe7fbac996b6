// Package page holds the parsed, read-only snapshot of a fetched document
// that every detector queries. It wraps a goquery document for CSS-selector
// matching and pre-extracts the pieces detectors scan repeatedly: comments,
// inline scripts and styles, and resource references.
package page

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/wpinspect/wpinspect/internal/fetch"
)

// ResourceKind classifies a referenced asset.
type ResourceKind string

const (
	KindStylesheet ResourceKind = "stylesheet"
	KindScript     ResourceKind = "script"
	KindImage      ResourceKind = "image"
	KindLink       ResourceKind = "link"
)

// Resource is an asset reference found in the markup.
type Resource struct {
	URL    string       `json:"url"`
	Kind   ResourceKind `json:"kind"`
	ID     string       `json:"id,omitempty"`
	Media  string       `json:"media,omitempty"`
	Async  bool         `json:"async,omitempty"`
	Defer  bool         `json:"defer,omitempty"`
	Module bool         `json:"module,omitempty"`
}

// Page is an immutable parsed document. It is safe for concurrent reads.
type Page struct {
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Raw        string
	Doc        *goquery.Document

	lower         string
	comments      []string
	inlineScripts []string
	inlineStyles  []string
	resources     []Resource
}

// FromResponse parses a fetched response into a Page.
func FromResponse(resp *fetch.Response) (*Page, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}
	p, err := Parse(resp.URL, resp.Body, resp.Header)
	if err != nil {
		return nil, err
	}
	p.StatusCode = resp.StatusCode
	return p, nil
}

// Parse builds a Page from raw markup. Malformed markup is tolerated; only an
// unusable page URL is an error.
func Parse(pageURL string, body []byte, header http.Header) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if header == nil {
		header = http.Header{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	p := &Page{
		URL:    u,
		Header: header,
		Raw:    string(body),
		Doc:    doc,
		lower:  strings.ToLower(string(body)),
	}
	p.index()
	return p, nil
}

// Empty reports whether the page has no meaningful markup.
func (p *Page) Empty() bool {
	return p == nil || strings.TrimSpace(p.Raw) == ""
}

// Lower returns the lowercased raw markup.
func (p *Page) Lower() string { return p.lower }

// Comments returns the text of every HTML comment, trimmed.
func (p *Page) Comments() []string { return p.comments }

// InlineScripts returns the bodies of script tags without a src attribute.
func (p *Page) InlineScripts() []string { return p.inlineScripts }

// InlineStyles returns the bodies of style tags.
func (p *Page) InlineStyles() []string { return p.inlineStyles }

// Resources returns every stylesheet, script, image and link reference,
// resolved to absolute URLs, in document order.
func (p *Page) Resources() []Resource { return p.resources }

// Find runs a CSS selector against the document.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.Doc.Find(selector)
}

// Has reports whether the selector matches at least one element.
func (p *Page) Has(selector string) bool {
	return p.Doc.Find(selector).Length() > 0
}

// Resolve resolves a reference relative to the page URL.
func (p *Page) Resolve(ref string) string {
	return fetch.Resolve(p.URL, ref)
}

// BaseURL returns scheme://host/ of the page.
func (p *Page) BaseURL() string {
	return p.URL.Scheme + "://" + p.URL.Host + "/"
}

// MetaContent returns the content values of meta tags with the given name,
// matched case-insensitively.
func (p *Page) MetaContent(name string) []string {
	var out []string
	p.Doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if n, ok := s.Attr("name"); ok && strings.EqualFold(strings.TrimSpace(n), name) {
			if c, ok := s.Attr("content"); ok {
				out = append(out, strings.TrimSpace(c))
			}
		}
	})
	return out
}

// BodyClasses returns the class tokens of the body element.
func (p *Page) BodyClasses() []string {
	class, _ := p.Doc.Find("body").First().Attr("class")
	return strings.Fields(class)
}

// ClassTokens returns every distinct class token used in the document.
func (p *Page) ClassTokens() []string {
	seen := make(map[string]struct{})
	var out []string
	p.Doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		for _, tok := range strings.Fields(class) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	})
	return out
}

// IDs returns every element id in the document.
func (p *Page) IDs() []string {
	var out []string
	p.Doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		if id, _ := s.Attr("id"); id != "" {
			out = append(out, id)
		}
	})
	return out
}

func (p *Page) index() {
	p.Doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := p.Resolve(href)
		if resolved == "" {
			return
		}
		rel := strings.ToLower(attr(s, "rel"))
		kind := KindLink
		if hasToken(rel, "stylesheet") {
			kind = KindStylesheet
		}
		p.resources = append(p.resources, Resource{
			URL:   resolved,
			Kind:  kind,
			ID:    attr(s, "id"),
			Media: strings.TrimSpace(attr(s, "media")),
		})
	})

	p.Doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		src, hasSrc := s.Attr("src")
		if !hasSrc {
			if text := strings.TrimSpace(s.Text()); text != "" {
				p.inlineScripts = append(p.inlineScripts, text)
			}
			return
		}
		resolved := p.Resolve(src)
		if resolved == "" {
			return
		}
		_, async := s.Attr("async")
		_, deferred := s.Attr("defer")
		p.resources = append(p.resources, Resource{
			URL:    resolved,
			Kind:   KindScript,
			ID:     attr(s, "id"),
			Async:  async,
			Defer:  deferred,
			Module: strings.EqualFold(attr(s, "type"), "module"),
		})
	})

	p.Doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if resolved := p.Resolve(src); resolved != "" {
			p.resources = append(p.resources, Resource{URL: resolved, Kind: KindImage})
		}
	})

	p.Doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			p.inlineStyles = append(p.inlineStyles, text)
		}
	})

	for _, n := range p.Doc.Nodes {
		collectComments(n, &p.comments)
	}
}

func collectComments(n *html.Node, out *[]string) {
	if n.Type == html.CommentNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			*out = append(*out, text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectComments(c, out)
	}
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return v
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}
