// Package evidence combines independent, noisy observations into a single
// confidence-scored verdict.
//
// Detectors emit Evidence items tagged with a type and a confidence tier. An
// Aggregator folds them into a Verdict: the tier is the strongest tier seen
// and the score sums a fixed per-type weight, counting each type once.
package evidence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is a coarse, ordered confidence level.
type Tier int

const (
	Low Tier = iota
	Medium
	High
)

func (t Tier) String() string {
	switch t {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// ParseTier converts a string into a Tier. Unknown values map to Low.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High
	case "medium":
		return Medium
	default:
		return Low
	}
}

// MarshalJSON encodes the tier as its string form.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier from its string form.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode tier: %w", err)
	}
	*t = ParseTier(s)
	return nil
}

// Evidence is one independent observation supporting a detection outcome.
type Evidence struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Tier  Tier   `json:"confidence"`
}

// New builds an Evidence item.
func New(kind, value string, tier Tier) Evidence {
	return Evidence{Type: kind, Value: value, Tier: tier}
}

// Verdict is the aggregated result of a list of evidence.
type Verdict struct {
	IsPositive bool       `json:"is_positive"`
	Confidence Tier       `json:"confidence"`
	Score      int        `json:"score"`
	Evidence   []Evidence `json:"evidence"`
}

// Types returns the distinct evidence types in the verdict, in first-seen order.
func (v Verdict) Types() []string {
	seen := make(map[string]struct{}, len(v.Evidence))
	types := make([]string, 0, len(v.Evidence))
	for _, e := range v.Evidence {
		if _, ok := seen[e.Type]; ok {
			continue
		}
		seen[e.Type] = struct{}{}
		types = append(types, e.Type)
	}
	return types
}
