package performance

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/page"
)

type pluginResource struct {
	slug     string
	resource Resource
}

// pluginResources lists the CSS and JS assets under the install path of one
// of the given plugins, deduplicated by URL, in document order.
func pluginResources(p *page.Page, plugins []string) []pluginResource {
	if p == nil || len(plugins) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(plugins))
	for _, slug := range plugins {
		wanted[slug] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []pluginResource
	for _, r := range p.Resources() {
		var kind string
		switch r.Kind {
		case page.KindStylesheet:
			kind = KindCSS
		case page.KindScript:
			kind = KindJS
		default:
			continue
		}
		slug := detector.PluginSlugFromURL(r.URL)
		if _, ok := wanted[slug]; !ok {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, pluginResource{
			slug:     slug,
			resource: Resource{URL: r.URL, Kind: kind, Blocking: IsRenderBlocking(r)},
		})
	}
	return out
}

// IsRenderBlocking reports whether a stylesheet applies to all media or a
// script loads synchronously.
func IsRenderBlocking(r page.Resource) bool {
	switch r.Kind {
	case page.KindStylesheet:
		media := strings.ToLower(strings.TrimSpace(r.Media))
		return media == "" || media == "all"
	case page.KindScript:
		return !r.Async && !r.Defer && !r.Module
	default:
		return false
	}
}

// measurePlugins sizes every plugin resource concurrently and folds the
// results into one record per plugin, including plugins with no assets.
func (a *Analyzer) measurePlugins(ctx context.Context, p *page.Page, plugins []string) []PluginRecord {
	records := make(map[string]*PluginRecord, len(plugins))
	order := make([]string, 0, len(plugins))
	for _, slug := range plugins {
		if _, ok := records[slug]; ok {
			continue
		}
		records[slug] = &PluginRecord{Slug: slug}
		order = append(order, slug)
	}

	// Resource failures are recorded per resource, so no goroutine returns an error.
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for _, pr := range pluginResources(p, plugins) {
		g.Go(func() error {
			res := pr.resource
			size, err := a.size(ctx, res.URL)
			if err != nil {
				res.Error = err.Error()
				a.logger().Debug("plugin resource unavailable",
					zap.String("plugin", pr.slug),
					zap.String("url", res.URL),
					zap.Error(err))
			} else {
				res.Bytes = size
			}

			mu.Lock()
			records[pr.slug].add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]PluginRecord, 0, len(order))
	for _, slug := range order {
		r := records[slug]
		sort.SliceStable(r.Resources, func(i, j int) bool { return r.Resources[i].URL < r.Resources[j].URL })
		out = append(out, *r)
	}
	return out
}

func (r *PluginRecord) add(res Resource) {
	r.Resources = append(r.Resources, res)
	if res.Error != "" {
		return
	}
	r.RequestCount++
	r.TotalBytes += res.Bytes
	if res.Kind == KindCSS {
		r.CSSBytes += res.Bytes
	} else {
		r.JSBytes += res.Bytes
	}
	if res.Blocking {
		r.BlockingCount++
	}
}

// size tries HEAD for Content-Length, then falls back to a full GET.
func (a *Analyzer) size(ctx context.Context, target string) (int64, error) {
	if resp, err := a.Fetcher.Head(ctx, target); err == nil && resp.OK() {
		if n := resp.ContentLength(); n >= 0 {
			return n, nil
		}
	}
	resp, err := a.Fetcher.Fetch(ctx, target)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, &fetch.StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return int64(len(resp.Body)), nil
}
