package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testCase(name string, passed bool, result, expected float64) model.TestCase {
	return model.TestCase{
		Name:       name,
		TestResult: model.TestResult{Passed: passed, Result: result, Expected: expected},
	}
}

func newSession(cats ...model.CategoryResult) *model.Session {
	for i := range cats {
		passed := true
		for _, t := range cats[i].Tests {
			passed = passed && t.Passed
		}
		cats[i].Passed = passed
	}
	return &model.Session{
		ID:         "0b6f4b5e-9d43-4a8b-8f4b-1b0b6f4b5e9d",
		StartTime:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EndTime:    time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC),
		Status:     model.SessionCompleted,
		Categories: cats,
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name     string
		result   float64
		expected float64
		want     Severity
	}{
		{"60% above", 160, 100, SeverityCritical},
		{"35% above", 135, 100, SeverityHigh},
		{"15% below", 85, 100, SeverityMedium},
		{"5% above", 105, 100, SeverityLow},
		{"exactly 50%", 150, 100, SeverityHigh},
		{"zero expected", 3, 0, SeverityCritical},
		{"zero both", 0, 0, SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifySeverity(tt.result, tt.expected))
		})
	}
}

func TestDetectRegressions_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome model.TestOutcome
		want    Severity
	}{
		{
			name:    "timeout on every attempt",
			outcome: model.TestOutcome{Kind: model.OutcomeTimeout, Attempts: 3, Error: `test "leak" exceeded timeout 30s`},
			want:    SeverityCritical,
		},
		{
			name:    "error on every attempt",
			outcome: model.TestOutcome{Kind: model.OutcomeError, Attempts: 3, Error: "allocation failed"},
			want:    SeverityCritical,
		},
		{
			name:    "error with a measurement",
			outcome: model.TestOutcome{Kind: model.OutcomeError, Error: "flaky", Result: model.TestResult{Result: 105, Expected: 100}},
			want:    SeverityCritical,
		},
		{
			name:    "assertion failure",
			outcome: model.TestOutcome{Kind: model.OutcomeFail, Result: model.TestResult{Result: 105, Expected: 100}},
			want:    SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.outcome
			o.Suite, o.Test = "memory", "leak"
			session := newSession()
			session.AddOutcome(o)

			regressions := DetectRegressions(session)
			require.Len(t, regressions, 1)
			require.Equal(t, "memory", regressions[0].Category)
			require.Equal(t, "leak", regressions[0].Test)
			require.Equal(t, tt.want, regressions[0].Severity)
		})
	}
}

func TestAnalyzeResults(t *testing.T) {
	current := newSession(
		model.CategoryResult{Name: "frameRate", Tests: []model.TestCase{
			testCase("steadyState", true, 59, 60),
			testCase("underLoad", false, 30, 48),
		}},
		model.CategoryResult{Name: "memory", Tests: []model.TestCase{
			testCase("baselineUsage", true, 90, 150),
		}},
	)
	previous := newSession(
		model.CategoryResult{Name: "frameRate", Tests: []model.TestCase{
			testCase("steadyState", true, 58, 60),
			testCase("underLoad", true, 50, 48),
		}},
		model.CategoryResult{Name: "memory", Tests: []model.TestCase{
			testCase("baselineUsage", true, 120, 150),
		}},
	)
	baselines := model.Baselines{"memory": {"baselineUsage": 100}}

	e := New(zerolog.Nop(), baselines, nil)
	a := e.AnalyzeResults(current, previous)

	require.False(t, a.OverallPassed)
	require.Equal(t, []Regression{{
		Category: "frameRate",
		Test:     "underLoad",
		Result:   30,
		Expected: 48,
		Severity: SeverityHigh,
	}}, a.Regressions)

	require.Len(t, a.Improvements, 2)
	require.Equal(t, "underLoad", a.Improvements[0].Test)
	require.InDelta(t, 40, a.Improvements[0].Improvement, 1e-9)
	require.Equal(t, "baselineUsage", a.Improvements[1].Test)
	require.InDelta(t, 25, a.Improvements[1].Improvement, 1e-9)

	require.Len(t, a.Recommendations, 1)
	require.Equal(t, TypeConfiguration, a.Recommendations[0].Type)
	require.Equal(t, PriorityHigh, a.Recommendations[0].Priority)

	require.Len(t, a.Comparison, 1)
	require.Equal(t, "memory", a.Comparison[0].Category)
	require.InDelta(t, -0.1, a.Comparison[0].Deviation["baselineUsage"], 1e-9)

	require.Equal(t, 3, a.Statistics.Total)
	require.Equal(t, 2, a.Statistics.Passed)
	require.Equal(t, 1, a.Statistics.Failed)
	require.Len(t, a.Statistics.Categories, 2)
	require.InDelta(t, 50, a.Statistics.Categories[0].PassRate, 1e-9)
}

func TestAnalyzeResults_NoPrevious(t *testing.T) {
	s := newSession(model.CategoryResult{Name: "battery", Tests: []model.TestCase{
		testCase("efficiency", true, 0.9, 0.8),
	}})
	a := New(zerolog.Nop(), nil, nil).AnalyzeResults(s, nil)
	require.True(t, a.OverallPassed)
	require.Empty(t, a.Improvements)
	require.Empty(t, a.Regressions)
	require.Empty(t, a.Comparison)
}

func TestIsOverallPassed_Empty(t *testing.T) {
	require.True(t, IsOverallPassed(&model.Session{}))
}

func TestGenerateRecommendations(t *testing.T) {
	tests := []struct {
		category string
		severity Severity
		typ      RecommendationType
		priority Priority
	}{
		{"frameRate", SeverityLow, TypeConfiguration, PriorityHigh},
		{"memory", SeverityLow, TypeArchitecture, PriorityHigh},
		{"rendering", SeverityCritical, TypeRefactoring, PriorityMedium},
		{"network", SeverityCritical, TypeSetting, PriorityMedium},
		{"battery", SeverityCritical, TypeSetting, PriorityLow},
		{"custom", SeverityCritical, TypeRefactoring, PriorityHigh},
		{"custom", SeverityMedium, TypeRefactoring, PriorityMedium},
		{"custom", SeverityLow, TypeRefactoring, PriorityLow},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.category, tt.severity), func(t *testing.T) {
			recs := GenerateRecommendations([]Regression{{Category: tt.category, Test: "x", Severity: tt.severity}})
			require.Len(t, recs, 1)
			require.Equal(t, tt.typ, recs[0].Type)
			require.Equal(t, tt.priority, recs[0].Priority)
			require.NotEmpty(t, recs[0].Description)
			require.NotEmpty(t, recs[0].Actions)
		})
	}
}

func TestPrioritize(t *testing.T) {
	var recs []Recommendation
	for i, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityLow, PriorityHigh, PriorityMedium, PriorityLow} {
		recs = append(recs, Recommendation{Test: fmt.Sprint(i), Priority: p})
	}

	top := Prioritize(recs)
	require.Len(t, top, MaxPriorityRecommendations)

	var order []string
	for _, r := range top {
		order = append(order, r.Test)
	}
	require.Equal(t, []string{"2", "4", "1", "5", "0"}, order)
	require.Equal(t, "0", recs[0].Test, "input must not be reordered")
}

func TestQuickFixesAndLongTerm(t *testing.T) {
	recs := GenerateRecommendations([]Regression{
		{Category: "frameRate"},
		{Category: "memory"},
		{Category: "network"},
		{Category: "rendering"},
	})
	require.Len(t, QuickFixes(recs), 2)
	require.Len(t, LongTermImprovements(recs), 2)
}

func TestAnalyzeTrends(t *testing.T) {
	current := newSession(
		model.CategoryResult{Name: "a", Tests: []model.TestCase{testCase("x", true, 90, 0)}},
		model.CategoryResult{Name: "b", Tests: []model.TestCase{testCase("x", true, 102, 0)}},
		model.CategoryResult{Name: "c", Tests: []model.TestCase{testCase("x", true, 5, 0)}},
		model.CategoryResult{Name: "new", Tests: []model.TestCase{testCase("x", true, 5, 0)}},
	)
	previous := newSession(
		model.CategoryResult{Name: "a", Tests: []model.TestCase{testCase("x", true, 100, 0)}},
		model.CategoryResult{Name: "b", Tests: []model.TestCase{testCase("x", true, 100, 0)}},
		model.CategoryResult{Name: "c", Tests: []model.TestCase{testCase("x", true, 5, 0)}},
	)

	trends := AnalyzeTrends(current, previous)
	require.Len(t, trends, 3)

	require.Equal(t, TrendImproving, trends[0].Direction)
	require.InDelta(t, 0.1, trends[0].Magnitude, 1e-9)
	require.InDelta(t, 1, trends[0].Confidence, 1e-9)

	require.Equal(t, TrendDegrading, trends[1].Direction)
	require.InDelta(t, 0.2, trends[1].Confidence, 1e-9)

	require.Equal(t, TrendStable, trends[2].Direction)
	require.Zero(t, trends[2].Confidence)

	require.Nil(t, AnalyzeTrends(current, nil))
}

func TestAnalyzeCorrelations(t *testing.T) {
	s := newSession(
		model.CategoryResult{Name: "a", Tests: []model.TestCase{
			testCase("1", true, 1, 0), testCase("2", true, 2, 0), testCase("3", true, 3, 0),
		}},
		model.CategoryResult{Name: "b", Tests: []model.TestCase{
			testCase("1", true, 2, 0), testCase("2", true, 4, 0), testCase("3", true, 6, 0),
		}},
		model.CategoryResult{Name: "c", Tests: []model.TestCase{
			testCase("1", true, 3, 0), testCase("2", true, 2, 0), testCase("3", true, 1, 0),
		}},
	)
	corr := AnalyzeCorrelations(s)
	require.Len(t, corr, 3)
	require.Equal(t, "a", corr[0].A)
	require.Equal(t, "b", corr[0].B)
	require.InDelta(t, 1, corr[0].Coefficient, 1e-9)
	require.InDelta(t, -1, corr[1].Coefficient, 1e-9)
	require.InDelta(t, -1, corr[2].Coefficient, 1e-9)
}

func TestDetectOutliers(t *testing.T) {
	moderate := model.CategoryResult{Name: "moderate"}
	for i := 0; i < 9; i++ {
		moderate.Tests = append(moderate.Tests, testCase(fmt.Sprint(i), true, 10, 0))
	}
	moderate.Tests = append(moderate.Tests, testCase("spike", true, 100, 0))

	extreme := model.CategoryResult{Name: "extreme"}
	for i := 0; i < 19; i++ {
		extreme.Tests = append(extreme.Tests, testCase(fmt.Sprint(i), true, 10, 0))
	}
	extreme.Tests = append(extreme.Tests, testCase("spike", true, 200, 0))

	flat := model.CategoryResult{Name: "flat", Tests: []model.TestCase{
		testCase("a", true, 1, 0), testCase("b", true, 1, 0),
	}}

	outliers := DetectOutliers(newSession(moderate, extreme, flat))
	require.Len(t, outliers, 2)

	require.Equal(t, "moderate", outliers[0].Category)
	require.Equal(t, "spike", outliers[0].Test)
	require.InDelta(t, 3, outliers[0].ZScore, 1e-9)
	require.Equal(t, "moderate", outliers[0].Kind)

	require.Equal(t, "extreme", outliers[1].Category)
	require.Equal(t, "extreme", outliers[1].Kind)
	require.Greater(t, outliers[1].ZScore, ExtremeZScore)
}

func TestCreatePerformanceProfile(t *testing.T) {
	s := newSession(
		model.CategoryResult{Name: "strong", Tests: []model.TestCase{
			testCase("a", true, 0, 0), testCase("b", true, 0, 0),
		}},
		model.CategoryResult{Name: "middle", Tests: []model.TestCase{
			testCase("a", true, 0, 0), testCase("b", true, 0, 0), testCase("c", true, 0, 0), testCase("d", false, 0, 0),
		}},
		model.CategoryResult{Name: "weak", Tests: []model.TestCase{
			testCase("a", true, 0, 0), testCase("b", false, 0, 0),
		}},
	)
	p := CreatePerformanceProfile(s)
	require.Equal(t, []string{"strong"}, p.Strengths)
	require.Equal(t, []string{"weak"}, p.Weaknesses)
	require.InDelta(t, 75, p.OverallScore, 1e-9)

	require.Zero(t, CreatePerformanceProfile(&model.Session{}).OverallScore)
}

func TestPerformAdvancedAnalysis_Metrics(t *testing.T) {
	c := metrics.New(zerolog.Nop())
	c.Record("frameRate.steadyState", 10*time.Millisecond, nil)
	c.Record("frameRate.steadyState", 30*time.Millisecond, nil)

	adv := New(zerolog.Nop(), nil, c).PerformAdvancedAnalysis(newSession(), nil)
	require.Len(t, adv.Metrics, 1)
	require.Equal(t, "frameRate.steadyState", adv.Metrics[0].Name)
	require.InDelta(t, 20, adv.Metrics[0].Mean, 1e-9)
}
