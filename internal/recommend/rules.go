package recommend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/performance"
	"github.com/wpinspect/wpinspect/internal/wpversion"
)

// Rule thresholds.
const (
	MinSupportedCore  = "6.0"
	PluginAuditCount  = performance.PluginAuditCount
	HeavyPluginBytes  = 500 * 1024
	ExcessiveBlocking = 5
)

// overlapGroups are the plugin groups where two members usually means
// duplicated work.
var overlapGroups = []string{
	detector.GroupSEO,
	detector.GroupCaching,
	detector.GroupForms,
	detector.GroupPageBuilder,
	detector.GroupSecurity,
	detector.GroupAnalytics,
}

var groupLabels = map[string]string{
	detector.GroupSEO:         "SEO",
	detector.GroupCaching:     "caching",
	detector.GroupForms:       "form",
	detector.GroupPageBuilder: "page builder",
	detector.GroupSecurity:    "security",
	detector.GroupAnalytics:   "analytics",
}

type perfRule struct {
	priority Level
	effort   Level
	impact   Level
	actions  []string
}

var performanceRuleTable = map[string]perfRule{
	performance.OpportunityHighImpact: {High, Medium, High, []string{
		"Measure the plugin on a staging copy with and without it enabled",
		"Replace it with a lighter alternative or restrict where it loads",
	}},
	performance.OpportunityRenderBlocking: {Medium, Medium, Medium, []string{
		"Add defer or async to plugin scripts",
		"Load non-critical plugin stylesheets with a media query or preload",
	}},
	performance.OpportunityLargeAssets: {Medium, Low, Medium, []string{
		"Enable minification and compression for plugin assets",
		"Dequeue the assets on pages that do not use the plugin",
	}},
	performance.OpportunitySlowResponse: {High, High, High, []string{
		"Enable full page caching",
		"Review hosting resources and PHP version",
	}},
	performance.OpportunityPageSpeed: {High, Medium, High, []string{
		"Optimize the largest contentful paint element",
		"Reduce main-thread blocking JavaScript",
	}},
}

func performanceRules(in Input) []Recommendation {
	if in.Performance == nil {
		return nil
	}
	var out []Recommendation
	for _, r := range in.Performance.Recommendations {
		rule, ok := performanceRuleTable[r.Type]
		if !ok {
			// plugin_audit is covered by the optimization rules.
			continue
		}
		id := "performance-" + r.Type
		if r.Plugin != "" {
			id += "-" + r.Plugin
		}
		out = append(out, Recommendation{
			ID:        id,
			Category:  Performance,
			Priority:  rule.priority,
			Title:     r.Title,
			Rationale: r.Description,
			Effort:    rule.effort,
			Impact:    rule.impact,
			Plugin:    r.Plugin,
			Actions:   rule.actions,
		})
	}
	return out
}

func compatibilityRules(in Input) []Recommendation {
	var out []Recommendation
	core := wpversion.MajorMinor(in.CoreVersion)

	if outdated := wpversion.IsOutdated(in.CoreVersion, MinSupportedCore); outdated != nil && *outdated {
		out = append(out, Recommendation{
			ID:        "compatibility-core-outdated",
			Category:  Compatibility,
			Priority:  High,
			Title:     "Update WordPress core",
			Rationale: fmt.Sprintf("WordPress %s is older than %s and no longer receives regular security fixes.", in.CoreVersion, MinSupportedCore),
			Effort:    Medium,
			Impact:    High,
			Actions:   []string{"Back up the site", "Update core on staging and test plugins", "Update production"},
		})
	}

	for _, p := range in.Plugins {
		if p.IsOutdated != nil && *p.IsOutdated && p.Registry != nil {
			out = append(out, Recommendation{
				ID:        "compatibility-outdated-" + p.Slug,
				Category:  Compatibility,
				Priority:  High,
				Title:     fmt.Sprintf("Update %s", p.Name),
				Rationale: fmt.Sprintf("Installed version %s is behind the current release %s.", p.Version, p.Registry.Version),
				Effort:    Low,
				Impact:    High,
				Plugin:    p.Slug,
				Actions:   []string{fmt.Sprintf("Update %s to %s", p.Name, p.Registry.Version)},
			})
		}
	}

	if core != "" {
		for _, p := range in.Plugins {
			if p.Registry == nil || p.Registry.Tested == "" {
				continue
			}
			if cmp, ok := wpversion.Compare(wpversion.MajorMinor(p.Registry.Tested), core); ok && cmp < 0 {
				out = append(out, Recommendation{
					ID:        "compatibility-untested-" + p.Slug,
					Category:  Compatibility,
					Priority:  Medium,
					Title:     fmt.Sprintf("Verify %s on WordPress %s", p.Name, core),
					Rationale: fmt.Sprintf("%s is only tested up to WordPress %s.", p.Name, p.Registry.Tested),
					Effort:    Medium,
					Impact:    Medium,
					Plugin:    p.Slug,
					Actions:   []string{"Test the plugin on staging", "Look for a maintained alternative if it is abandoned"},
				})
			}
		}
	}

	if in.RegistryChecked {
		for _, p := range in.Plugins {
			if p.Registry != nil {
				continue
			}
			out = append(out, Recommendation{
				ID:        "compatibility-unlisted-" + p.Slug,
				Category:  Compatibility,
				Priority:  Low,
				Title:     fmt.Sprintf("Check the update source of %s", p.Name),
				Rationale: fmt.Sprintf("%s is not listed in the WordPress.org plugin directory, so updates must be tracked manually.", p.Name),
				Effort:    Low,
				Impact:    Low,
				Plugin:    p.Slug,
			})
		}
	}

	if t := in.Theme; t != nil && core != "" {
		if t.TestedUpTo != "" {
			if cmp, ok := wpversion.Compare(wpversion.MajorMinor(t.TestedUpTo), core); ok && cmp < 0 {
				out = append(out, Recommendation{
					ID:        "compatibility-theme-untested",
					Category:  Compatibility,
					Priority:  Medium,
					Title:     fmt.Sprintf("Verify theme %s on WordPress %s", themeName(t), core),
					Rationale: fmt.Sprintf("The theme declares it is tested up to WordPress %s.", t.TestedUpTo),
					Effort:    Medium,
					Impact:    Medium,
					Actions:   []string{"Check for a theme update", "Test templates on staging"},
				})
			}
		}
		if t.RequiresWP != "" {
			if cmp, ok := wpversion.Compare(t.RequiresWP, in.CoreVersion); ok && cmp > 0 {
				out = append(out, Recommendation{
					ID:        "compatibility-theme-requires",
					Category:  Compatibility,
					Priority:  Medium,
					Title:     fmt.Sprintf("Theme %s requires a newer WordPress", themeName(t)),
					Rationale: fmt.Sprintf("The theme requires WordPress %s but %s is installed.", t.RequiresWP, in.CoreVersion),
					Effort:    Medium,
					Impact:    Medium,
				})
			}
		}
	}
	return out
}

func functionalityRules(in Input) []Recommendation {
	if !in.PluginsAnalyzed {
		return nil
	}
	var out []Recommendation
	members := groupMembers(in.Plugins)

	for _, g := range overlapGroups {
		slugs := members[g]
		if len(slugs) < 2 {
			continue
		}
		out = append(out, Recommendation{
			ID:        "functionality-overlap-" + g,
			Category:  Functionality,
			Priority:  Medium,
			Title:     fmt.Sprintf("Consolidate %s plugins", groupLabels[g]),
			Rationale: fmt.Sprintf("%d %s plugins are active: %s. Overlapping plugins duplicate work and can conflict.", len(slugs), groupLabels[g], strings.Join(slugs, ", ")),
			Effort:    Medium,
			Impact:    Medium,
			Actions:   []string{"Keep the plugin that covers your needs", "Deactivate and remove the others"},
		})
	}

	if len(members[detector.GroupCaching]) == 0 {
		out = append(out, Recommendation{
			ID:        "functionality-missing-caching",
			Category:  Functionality,
			Priority:  Low,
			Title:     "Add a caching plugin",
			Rationale: "No page caching plugin was detected. Server-level caching may exist but is not visible.",
			Effort:    Low,
			Impact:    Medium,
		})
	}
	if len(members[detector.GroupSEO]) == 0 {
		out = append(out, Recommendation{
			ID:        "functionality-missing-seo",
			Category:  Functionality,
			Priority:  Low,
			Title:     "Add an SEO plugin",
			Rationale: "No SEO plugin was detected to manage metadata, sitemaps and structured data.",
			Effort:    Low,
			Impact:    Low,
		})
	}
	return out
}

func optimizationRules(in Input) []Recommendation {
	var out []Recommendation
	if n := len(in.Plugins); n > PluginAuditCount {
		out = append(out, Recommendation{
			ID:        "optimization-plugin-audit",
			Category:  Optimization,
			Priority:  Medium,
			Title:     "Audit installed plugins",
			Rationale: fmt.Sprintf("%d plugins were detected from the front end alone. Each one adds maintenance and attack surface.", n),
			Effort:    High,
			Impact:    Medium,
			Actions:   []string{"List what each plugin is used for", "Remove unused plugins", "Merge overlapping functionality"},
		})
	}
	if perf := in.Performance; perf != nil {
		if perf.TotalPluginBytes > HeavyPluginBytes {
			out = append(out, Recommendation{
				ID:        "optimization-plugin-weight",
				Category:  Optimization,
				Priority:  Medium,
				Title:     "Reduce total plugin asset weight",
				Rationale: fmt.Sprintf("Plugins ship %.0f KiB of CSS and JavaScript on this page.", float64(perf.TotalPluginBytes)/1024),
				Effort:    Medium,
				Impact:    Medium,
				Actions:   []string{"Use an asset manager to unload unused plugin assets per page"},
			})
		}
		if perf.TotalBlocking > ExcessiveBlocking {
			out = append(out, Recommendation{
				ID:        "optimization-blocking-resources",
				Category:  Optimization,
				Priority:  Medium,
				Title:     "Cut render-blocking plugin resources",
				Rationale: fmt.Sprintf("%d plugin resources block the first render.", perf.TotalBlocking),
				Effort:    Medium,
				Impact:    Medium,
			})
		}
	}
	for _, p := range in.Plugins {
		if p.Category != detector.GroupPageBuilder {
			continue
		}
		out = append(out, Recommendation{
			ID:        "optimization-page-builder-" + p.Slug,
			Category:  Optimization,
			Priority:  Low,
			Title:     fmt.Sprintf("Review the %s footprint", p.Name),
			Rationale: "Page builders add markup and assets to every page they render. Block themes can cover many layouts natively.",
			Effort:    High,
			Impact:    Medium,
			Plugin:    p.Slug,
		})
	}
	return out
}

func groupMembers(plugins []detector.PluginFinding) map[string][]string {
	out := make(map[string][]string)
	for _, p := range plugins {
		if p.Category != "" {
			out[p.Category] = append(out[p.Category], p.Slug)
		}
	}
	return out
}

func analyze(in Input) Analysis {
	a := Analysis{PluginCount: len(in.Plugins)}
	for _, p := range in.Plugins {
		if p.IsOutdated != nil && *p.IsOutdated {
			a.OutdatedPlugins++
		}
	}

	a.AssetScore = 100
	a.PerformanceScore = 100
	if perf := in.Performance; perf != nil {
		a.TotalPluginBytes = perf.TotalPluginBytes
		a.BlockingResources = perf.TotalBlocking
		a.AssetScore = clamp(100 - int(perf.TotalPluginBytes/(10*1024)) - perf.TotalBlocking*5)

		worst := 0
		for _, r := range perf.Plugins {
			if r.Score > worst {
				worst = r.Score
			}
		}
		a.PerformanceScore = 100 - worst
		if ps := perf.PageSpeed; ps != nil {
			switch {
			case ps.Mobile != nil:
				a.PerformanceScore = ps.Mobile.PerformanceScore
			case ps.Desktop != nil:
				a.PerformanceScore = ps.Desktop.PerformanceScore
			}
		}
	}

	a.FunctionalityScore = 100
	if in.PluginsAnalyzed {
		members := groupMembers(in.Plugins)
		for _, g := range overlapGroups {
			if len(members[g]) >= 2 {
				if a.Overlaps == nil {
					a.Overlaps = make(map[string][]string)
				}
				a.Overlaps[g] = members[g]
				a.FunctionalityScore -= 15
			}
		}
		for _, g := range []string{detector.GroupCaching, detector.GroupSEO} {
			if len(members[g]) == 0 {
				a.MissingGroups = append(a.MissingGroups, g)
				a.FunctionalityScore -= 10
			}
		}
		sort.Strings(a.MissingGroups)
		a.FunctionalityScore = clamp(a.FunctionalityScore)
	}
	return a
}

func themeName(t *detector.ThemeFinding) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Slug
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
