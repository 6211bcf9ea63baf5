package analysis

import (
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
)

// Severity buckets the relative deviation of a failed test.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight returns the sort weight of a priority: high=3, medium=2, low=1, unknown=0.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// RecommendationType tells whether a recommendation is a quick fix or a long-term change.
type RecommendationType string

const (
	TypeConfiguration RecommendationType = "configuration"
	TypeSetting       RecommendationType = "setting"
	TypeArchitecture  RecommendationType = "architecture"
	TypeRefactoring   RecommendationType = "refactoring"
)

// QuickFix reports whether the type is configuration or setting.
func (t RecommendationType) QuickFix() bool {
	return t == TypeConfiguration || t == TypeSetting
}

// Regression is a failing test with its severity.
type Regression struct {
	Category string   `json:"category"`
	Test     string   `json:"test"`
	Result   float64  `json:"result"`
	Expected float64  `json:"expected"`
	Severity Severity `json:"severity"`
}

// Improvement is a test whose result is lower than in the previous run.
type Improvement struct {
	Category string  `json:"category"`
	Test     string  `json:"test"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	// Percentage improvement: (previous-current)/previous*100
	Improvement float64 `json:"improvement"`
}

// Recommendation is a suggested follow-up for a regression.
type Recommendation struct {
	Category    string             `json:"category"`
	Test        string             `json:"test"`
	Type        RecommendationType `json:"type"`
	Priority    Priority           `json:"priority"`
	Description string             `json:"description"`
	Actions     []string           `json:"actions"`
}

// BaselineComparison holds the deviation of a category from its baseline.
type BaselineComparison struct {
	Category string             `json:"category"`
	Passed   bool               `json:"passed"`
	Current  map[string]float64 `json:"current"`
	Baseline map[string]float64 `json:"baseline"`
	// Relative deviation per test: (result-baseline)/baseline
	Deviation map[string]float64 `json:"deviation"`
}

// CategoryStatistics aggregates one category.
type CategoryStatistics struct {
	Category string  `json:"category"`
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
}

// Statistics aggregates a whole session.
type Statistics struct {
	Total      int                  `json:"total"`
	Passed     int                  `json:"passed"`
	Failed     int                  `json:"failed"`
	PassRate   float64              `json:"pass_rate"`
	Categories []CategoryStatistics `json:"categories"`
}

// Analysis is derived from one session. It is recomputed on demand and never cached.
type Analysis struct {
	Session         *model.Session       `json:"session"`
	Previous        *model.Session       `json:"-"`
	Baselines       model.Baselines      `json:"baselines,omitempty"`
	OverallPassed   bool                 `json:"overall_passed"`
	Regressions     []Regression         `json:"regressions"`
	Improvements    []Improvement        `json:"improvements"`
	Recommendations []Recommendation     `json:"recommendations"`
	Comparison      []BaselineComparison `json:"comparison"`
	Statistics      Statistics           `json:"statistics"`
}

// Trend compares a category's mean result with the previous run.
type Trend struct {
	Category   string  `json:"category"`
	Direction  string  `json:"direction"`
	Magnitude  float64 `json:"magnitude"`
	Confidence float64 `json:"confidence"`
}

// Trend directions. Lower results are better.
const (
	TrendImproving = "improving"
	TrendDegrading = "degrading"
	TrendStable    = "stable"
)

// Correlation is the Pearson coefficient between two categories' result series.
type Correlation struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Coefficient float64 `json:"coefficient"`
}

// Outlier is a test result more than two standard deviations from its category mean.
type Outlier struct {
	Category string  `json:"category"`
	Test     string  `json:"test"`
	Value    float64 `json:"value"`
	ZScore   float64 `json:"z_score"`
	// "extreme" above three standard deviations, "moderate" otherwise
	Kind string `json:"kind"`
}

// CategoryScore is a category's pass rate used as a score.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Profile summarizes strengths and weaknesses across categories.
type Profile struct {
	Scores       []CategoryScore `json:"scores"`
	Strengths    []string        `json:"strengths"`
	Weaknesses   []string        `json:"weaknesses"`
	OverallScore float64         `json:"overall_score"`
}

// Advanced is the result of PerformAdvancedAnalysis.
type Advanced struct {
	Trends       []Trend       `json:"trends"`
	Correlations []Correlation `json:"correlations"`
	Outliers     []Outlier     `json:"outliers"`
	Profile      Profile       `json:"profile"`
	Metrics      []MetricStat  `json:"metrics,omitempty"`
}

// MetricStat summarizes one collected metric series in milliseconds.
type MetricStat struct {
	Name string `json:"name"`
	metrics.Summary
}
