package performance

import (
	"fmt"
	"math"
	"sort"
)

// Thresholds for opportunities and recommendations.
const (
	HighImpactScore     = 50
	LargeAssetBytes     = 100 * 1024
	PluginAuditCount    = 20
	SlowResponseMS      = 3000
	PageSpeedPoorMobile = 50
)

// Opportunity categories.
const (
	OpportunityHighImpact     = "high_impact"
	OpportunityRenderBlocking = "render_blocking"
	OpportunityLargeAssets    = "large_assets"
	OpportunityPluginAudit    = "plugin_audit"
	OpportunitySlowResponse   = "slow_response"
	OpportunityPageSpeed      = "pagespeed_mobile"
)

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

const bytesPerMB = 1024 * 1024

// Score is floor(min(MB*20, 40) + min(requests*5, 20) + min(blocking*15, 30)).
// It never decreases when any input grows and stays within [0, 100].
func Score(totalBytes int64, requests, blocking int) int {
	if totalBytes < 0 {
		totalBytes = 0
	}
	if requests < 0 {
		requests = 0
	}
	if blocking < 0 {
		blocking = 0
	}
	size := math.Min(float64(totalBytes)/bytesPerMB*20, 40)
	reqs := math.Min(float64(requests)*5, 20)
	block := math.Min(float64(blocking)*15, 30)
	score := int(math.Floor(size + reqs + block))
	if score > 100 {
		return 100
	}
	return score
}

// Opportunity is a named condition found on one plugin.
type Opportunity struct {
	Category  string  `json:"category"`
	Plugin    string  `json:"plugin"`
	Magnitude float64 `json:"magnitude"`
}

// Recommendation is a plain-language performance action.
type Recommendation struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Plugin      string `json:"plugin,omitempty"`
}

// FindOpportunities lists high-impact, render-blocking and oversized plugins
// in record order.
func FindOpportunities(records []PluginRecord) []Opportunity {
	out := []Opportunity{}
	for _, r := range records {
		if r.Score > HighImpactScore {
			out = append(out, Opportunity{Category: OpportunityHighImpact, Plugin: r.Slug, Magnitude: float64(r.Score)})
		}
		if r.BlockingCount > 0 {
			out = append(out, Opportunity{Category: OpportunityRenderBlocking, Plugin: r.Slug, Magnitude: float64(r.BlockingCount)})
		}
		if r.TotalBytes > LargeAssetBytes {
			out = append(out, Opportunity{Category: OpportunityLargeAssets, Plugin: r.Slug, Magnitude: float64(r.TotalBytes) / 1024})
		}
	}
	return out
}

// Recommend turns the worst opportunity of each category into one
// recommendation, then adds audit, response time and PageSpeed advice.
func Recommend(res *Result, pluginCount int) []Recommendation {
	out := []Recommendation{}

	if o, ok := worst(res.Opportunities, OpportunityHighImpact); ok {
		out = append(out, Recommendation{
			Type:        OpportunityHighImpact,
			Priority:    PriorityHigh,
			Title:       fmt.Sprintf("Reduce the performance impact of %s", o.Plugin),
			Description: fmt.Sprintf("%s scores %.0f/100 on asset weight, request count and render blocking. Consider a lighter alternative or load its assets only where needed.", o.Plugin, o.Magnitude),
			Plugin:      o.Plugin,
		})
	}
	if o, ok := worst(res.Opportunities, OpportunityRenderBlocking); ok {
		out = append(out, Recommendation{
			Type:        OpportunityRenderBlocking,
			Priority:    PriorityMedium,
			Title:       fmt.Sprintf("Defer render-blocking assets from %s", o.Plugin),
			Description: fmt.Sprintf("%s loads %.0f render-blocking resource(s). Add defer or async to scripts and media queries or preload to stylesheets.", o.Plugin, o.Magnitude),
			Plugin:      o.Plugin,
		})
	}
	if o, ok := worst(res.Opportunities, OpportunityLargeAssets); ok {
		out = append(out, Recommendation{
			Type:        OpportunityLargeAssets,
			Priority:    PriorityMedium,
			Title:       fmt.Sprintf("Shrink assets shipped by %s", o.Plugin),
			Description: fmt.Sprintf("%s adds %.1f KiB of CSS and JavaScript. Enable minification and compression, or unload it on pages that do not use it.", o.Plugin, o.Magnitude),
			Plugin:      o.Plugin,
		})
	}
	if pluginCount > PluginAuditCount {
		out = append(out, Recommendation{
			Type:        OpportunityPluginAudit,
			Priority:    PriorityMedium,
			Title:       "Audit installed plugins",
			Description: fmt.Sprintf("%d plugins were detected. Remove unused plugins and consolidate overlapping ones.", pluginCount),
		})
	}
	if res.Page.LoadTimeMS > SlowResponseMS {
		out = append(out, Recommendation{
			Type:        OpportunitySlowResponse,
			Priority:    PriorityHigh,
			Title:       "Improve server response time",
			Description: fmt.Sprintf("The page took %d ms to load. Enable page caching and review hosting capacity.", res.Page.LoadTimeMS),
		})
	}
	if res.PageSpeed != nil && res.PageSpeed.Mobile != nil && res.PageSpeed.Mobile.PerformanceScore < PageSpeedPoorMobile {
		out = append(out, Recommendation{
			Type:        OpportunityPageSpeed,
			Priority:    PriorityHigh,
			Title:       "Improve mobile PageSpeed score",
			Description: fmt.Sprintf("Mobile PageSpeed performance is %d/100. Prioritize largest contentful paint and total blocking time.", res.PageSpeed.Mobile.PerformanceScore),
		})
	}
	return out
}

// worst returns the first opportunity with the largest magnitude.
func worst(list []Opportunity, category string) (Opportunity, bool) {
	var best Opportunity
	found := false
	for _, o := range list {
		if o.Category != category {
			continue
		}
		if !found || o.Magnitude > best.Magnitude {
			best, found = o, true
		}
	}
	return best, found
}

func sortRecords(records []PluginRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].Slug < records[j].Slug
	})
}
