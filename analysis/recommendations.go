package analysis

import "sort"

// MaxPriorityRecommendations is how many recommendations Prioritize keeps.
const MaxPriorityRecommendations = 5

type recommendationTemplate struct {
	typ         RecommendationType
	priority    Priority
	description string
	actions     []string
}

var categoryRecommendations = map[string]recommendationTemplate{
	"frameRate": {
		typ:         TypeConfiguration,
		priority:    PriorityHigh,
		description: "Frame rate drop detected. Run rendering optimizations.",
		actions: []string{
			"Check automatic quality adjustment",
			"Review frame stabilizer settings",
			"Check object pool efficiency",
		},
	},
	"memory": {
		typ:         TypeArchitecture,
		priority:    PriorityHigh,
		description: "Memory usage problem detected. Review memory management.",
		actions: []string{
			"Run automatic cleanup",
			"Investigate memory leaks in detail",
			"Tune object pool sizes",
		},
	},
	"rendering": {
		typ:         TypeRefactoring,
		priority:    PriorityMedium,
		description: "Rendering efficiency degraded.",
		actions: []string{
			"Check dirty region management",
			"Optimize viewport culling",
			"Review layer composition",
		},
	},
	"network": {
		typ:         TypeSetting,
		priority:    PriorityMedium,
		description: "Network performance degraded.",
		actions: []string{
			"Review request batching and caching",
			"Check timeout and retry settings",
		},
	},
	"battery": {
		typ:         TypeSetting,
		priority:    PriorityLow,
		description: "Battery efficiency degraded.",
		actions: []string{
			"Enable power saving mode on low battery",
			"Reduce background work frequency",
		},
	},
}

// GenerateRecommendations returns one recommendation per regression.
func GenerateRecommendations(regressions []Regression) []Recommendation {
	out := make([]Recommendation, 0, len(regressions))
	for _, r := range regressions {
		out = append(out, recommendationFor(r))
	}
	return out
}

func recommendationFor(r Regression) Recommendation {
	tmpl, ok := categoryRecommendations[r.Category]
	if !ok {
		tmpl = recommendationTemplate{
			typ:         TypeRefactoring,
			priority:    priorityForSeverity(r.Severity),
			description: "Performance regression detected in " + r.Category + ".",
			actions:     []string{"Profile " + r.Category + "." + r.Test + " and compare with the previous run"},
		}
	}
	actions := make([]string, len(tmpl.actions))
	copy(actions, tmpl.actions)
	return Recommendation{
		Category:    r.Category,
		Test:        r.Test,
		Type:        tmpl.typ,
		Priority:    tmpl.priority,
		Description: tmpl.description,
		Actions:     actions,
	}
}

func priorityForSeverity(s Severity) Priority {
	switch s {
	case SeverityCritical, SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Prioritize sorts by priority weight, keeping input order among equals, and keeps the top five.
func Prioritize(recs []Recommendation) []Recommendation {
	sorted := make([]Recommendation, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.Weight() > sorted[j].Priority.Weight()
	})
	if len(sorted) > MaxPriorityRecommendations {
		sorted = sorted[:MaxPriorityRecommendations]
	}
	return sorted
}

// QuickFixes returns configuration and setting recommendations.
func QuickFixes(recs []Recommendation) []Recommendation {
	var out []Recommendation
	for _, r := range recs {
		if r.Type.QuickFix() {
			out = append(out, r)
		}
	}
	return out
}

// LongTermImprovements returns architecture and refactoring recommendations.
func LongTermImprovements(recs []Recommendation) []Recommendation {
	var out []Recommendation
	for _, r := range recs {
		if !r.Type.QuickFix() {
			out = append(out, r)
		}
	}
	return out
}
