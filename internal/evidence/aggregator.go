package evidence

// Default weights used when an evidence type is missing from the table.
const (
	DefaultHighWeight   = 30
	DefaultMediumWeight = 15
	DefaultLowWeight    = 5

	maxScore = 100
)

// Aggregator folds evidence into a Verdict using a per-type weight table.
type Aggregator struct {
	Weights map[string]int
}

// NewAggregator returns an Aggregator with the given weight table.
func NewAggregator(weights map[string]int) *Aggregator {
	return &Aggregator{Weights: weights}
}

// Aggregate combines the evidence list into a Verdict. An empty list is a
// valid negative result.
func (a *Aggregator) Aggregate(list []Evidence) Verdict {
	verdict := Verdict{
		Confidence: Low,
		Evidence:   make([]Evidence, 0, len(list)),
	}
	if len(list) == 0 {
		return verdict
	}

	type key struct{ kind, value string }
	seenItems := make(map[key]struct{}, len(list))
	typeTiers := make(map[string]Tier, len(list))
	order := make([]string, 0, len(list))

	for _, e := range list {
		k := key{e.Type, e.Value}
		if _, dup := seenItems[k]; dup {
			continue
		}
		seenItems[k] = struct{}{}
		verdict.Evidence = append(verdict.Evidence, e)

		if e.Tier > verdict.Confidence {
			verdict.Confidence = e.Tier
		}

		prev, counted := typeTiers[e.Type]
		if !counted {
			order = append(order, e.Type)
		}
		if !counted || e.Tier > prev {
			typeTiers[e.Type] = e.Tier
		}
	}

	score := 0
	for _, kind := range order {
		score += a.weight(kind, typeTiers[kind])
	}

	verdict.IsPositive = true
	verdict.Score = clamp(score)
	return verdict
}

// weight looks the type up in the table, falling back to the strongest tier
// observed for that type.
func (a *Aggregator) weight(kind string, tier Tier) int {
	if a != nil && a.Weights != nil {
		if w, ok := a.Weights[kind]; ok {
			return w
		}
	}
	switch tier {
	case High:
		return DefaultHighWeight
	case Medium:
		return DefaultMediumWeight
	default:
		return DefaultLowWeight
	}
}

// Aggregate is a convenience for aggregating with the default weights only.
func Aggregate(list []Evidence) Verdict {
	return (&Aggregator{}).Aggregate(list)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
