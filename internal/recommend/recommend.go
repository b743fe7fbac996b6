// Package recommend fuses plugin, theme, core version and performance
// findings into categorized, prioritized and phased recommendations.
//
// Ranking is by priority only. Within a priority, recommendations keep the
// order in which the rules produced them: performance, compatibility,
// functionality, then optimization.
package recommend

import (
	"sort"

	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/performance"
)

// Category groups recommendations in the report.
type Category string

const (
	Performance   Category = "performance"
	Compatibility Category = "compatibility"
	Functionality Category = "functionality"
	Optimization  Category = "optimization"
)

// Categories lists every category in report order.
var Categories = []Category{Performance, Compatibility, Functionality, Optimization}

// Level is used for priority, effort and impact.
type Level string

const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

func (l Level) rank() int {
	switch l {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

// TopCount is how many recommendations TopRecommendations holds.
const TopCount = 5

// Recommendation is one actionable item. It is never mutated after Generate
// returns.
type Recommendation struct {
	ID        string   `json:"id"`
	Category  Category `json:"category"`
	Priority  Level    `json:"priority"`
	Title     string   `json:"title"`
	Rationale string   `json:"rationale"`
	Effort    Level    `json:"effort"`
	Impact    Level    `json:"impact"`
	Plugin    string   `json:"plugin,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// Summary counts recommendations by priority.
type Summary struct {
	Total           int    `json:"total"`
	High            int    `json:"high"`
	Medium          int    `json:"medium"`
	Low             int    `json:"low"`
	EstimatedImpact string `json:"estimated_impact"`
	EstimatedEffort string `json:"estimated_effort"`
}

// Guide phases recommendations by effort.
type Guide struct {
	Immediate []Recommendation `json:"immediate"`
	NearTerm  []Recommendation `json:"near_term"`
	LongTerm  []Recommendation `json:"long_term"`
}

// Analysis echoes the sub-scores behind the ranking.
type Analysis struct {
	AssetScore         int                 `json:"asset_score"`
	PerformanceScore   int                 `json:"performance_score"`
	FunctionalityScore int                 `json:"functionality_score"`
	PluginCount        int                 `json:"plugin_count"`
	OutdatedPlugins    int                 `json:"outdated_plugins"`
	TotalPluginBytes   int64               `json:"total_plugin_bytes"`
	BlockingResources  int                 `json:"blocking_resources"`
	Overlaps           map[string][]string `json:"overlaps,omitempty"`
	MissingGroups      []string            `json:"missing_groups,omitempty"`
}

// Report is the engine output.
type Report struct {
	Summary             Summary                       `json:"summary"`
	TopRecommendations  []Recommendation              `json:"top_recommendations"`
	Recommendations     map[Category][]Recommendation `json:"recommendations"`
	ImplementationGuide Guide                         `json:"implementation_guide"`
	Analysis            Analysis                      `json:"analysis"`
}

// Input carries everything the rules look at. Any field may be empty.
type Input struct {
	Plugins     []detector.PluginFinding
	Theme       *detector.ThemeFinding
	Performance *performance.Result
	CoreVersion string

	// PluginsAnalyzed is false when plugin detection did not run, which
	// suppresses rules about missing plugin groups.
	PluginsAnalyzed bool
	// RegistryChecked is true when plugins were looked up in the registry.
	RegistryChecked bool
}

// Generate runs every rule and assembles the report.
func Generate(in Input) *Report {
	var recs []Recommendation
	recs = append(recs, performanceRules(in)...)
	recs = append(recs, compatibilityRules(in)...)
	recs = append(recs, functionalityRules(in)...)
	recs = append(recs, optimizationRules(in)...)

	Rank(recs)

	report := &Report{
		TopRecommendations: []Recommendation{},
		Recommendations:    make(map[Category][]Recommendation, len(Categories)),
		ImplementationGuide: Guide{
			Immediate: []Recommendation{},
			NearTerm:  []Recommendation{},
			LongTerm:  []Recommendation{},
		},
	}
	for _, c := range Categories {
		report.Recommendations[c] = []Recommendation{}
	}

	for _, r := range recs {
		report.Recommendations[r.Category] = append(report.Recommendations[r.Category], r)
		switch r.Effort {
		case Low:
			report.ImplementationGuide.Immediate = append(report.ImplementationGuide.Immediate, r)
		case Medium:
			report.ImplementationGuide.NearTerm = append(report.ImplementationGuide.NearTerm, r)
		default:
			report.ImplementationGuide.LongTerm = append(report.ImplementationGuide.LongTerm, r)
		}
	}
	if len(recs) > TopCount {
		report.TopRecommendations = append(report.TopRecommendations, recs[:TopCount]...)
	} else {
		report.TopRecommendations = append(report.TopRecommendations, recs...)
	}

	report.Summary = summarize(recs)
	report.Analysis = analyze(in)
	return report
}

// Rank sorts by priority, keeping discovery order within a priority.
func Rank(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.rank() < recs[j].Priority.rank()
	})
}

func summarize(recs []Recommendation) Summary {
	s := Summary{Total: len(recs), EstimatedImpact: "none", EstimatedEffort: "none"}
	effortPoints := 0
	for _, r := range recs {
		switch r.Priority {
		case High:
			s.High++
		case Medium:
			s.Medium++
		default:
			s.Low++
		}
		effortPoints += 3 - r.Effort.rank()
	}
	switch {
	case s.High > 0:
		s.EstimatedImpact = string(High)
	case s.Medium > 0:
		s.EstimatedImpact = string(Medium)
	case s.Low > 0:
		s.EstimatedImpact = string(Low)
	}
	if s.Total > 0 {
		avg := float64(effortPoints) / float64(s.Total)
		switch {
		case avg >= 2.5:
			s.EstimatedEffort = string(High)
		case avg >= 1.5:
			s.EstimatedEffort = string(Medium)
		default:
			s.EstimatedEffort = string(Low)
		}
	}
	return s
}
