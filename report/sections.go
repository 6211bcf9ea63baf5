package report

import (
	"context"
	"fmt"

	"github.com/perfgo/perfsuite/analysis"
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
)

// Number of stored runs shown in the history section.
const recentRuns = 10

var sectionTitles = map[string]string{
	SectionOverview:          "Performance Test Overview",
	SectionDetailedResults:   "Detailed Test Results",
	SectionAnalysis:          "Performance Analysis",
	SectionRecommendations:   "Recommendations",
	SectionHistory:           "Test History",
	SectionKeyMetrics:        "Key Performance Metrics",
	SectionCriticalIssues:    "Critical Issues",
	SectionRawData:           "Raw Test Data",
	SectionStatistics:        "Statistical Analysis",
	SectionCorrelations:      "Performance Correlations",
	SectionTechnicalAnalysis: "Technical Analysis",
}

// GenerateSection builds one section. Unknown names yield a SectionError instead of failing.
func (g *Generator) GenerateSection(ctx context.Context, name string, a *analysis.Analysis) Section {
	s := Section{Name: name, Title: sectionTitles[name]}
	switch name {
	case SectionOverview:
		s.Data = overview(a)
	case SectionDetailedResults:
		s.Data = detailedResults(a.Session)
	case SectionAnalysis:
		s.Data = analysisSection(a)
	case SectionRecommendations:
		s.Data = recommendations(a)
	case SectionHistory:
		s.Data = g.historySection(ctx)
	case SectionKeyMetrics:
		s.Data = keyMetrics(a.Session)
	case SectionCriticalIssues:
		s.Data = criticalIssues(a.Regressions)
	case SectionRawData:
		s.Data = g.rawData(a)
	case SectionStatistics:
		s.Data = statistics(a.Session)
	case SectionCorrelations:
		s.Data = correlations(a.Session)
	case SectionTechnicalAnalysis:
		s.Data = technicalAnalysis(a)
	default:
		s.Title = name
		s.Data = SectionError{Error: "Unknown section: " + name}
	}
	return s
}

// Overview is the data of the overview section.
type Overview struct {
	Summary         OverviewSummary   `json:"summary"`
	CategorySummary []CategorySummary `json:"category_summary"`
	KeyFindings     []string          `json:"key_findings"`
}

// OverviewSummary is the headline status of a run.
type OverviewSummary struct {
	OverallStatus   string `json:"overall_status"`
	PassRate        string `json:"pass_rate"`
	TotalCategories int    `json:"total_categories"`
	ExecutionTime   string `json:"execution_time"`
	Timestamp       string `json:"timestamp"`
}

// CategorySummary is one category row of the overview.
type CategorySummary struct {
	Category  string  `json:"category"`
	Status    string  `json:"status"`
	TestCount int     `json:"test_count"`
	PassRate  float64 `json:"pass_rate"`
}

func overview(a *analysis.Analysis) Overview {
	s := a.Session
	o := Overview{
		Summary: OverviewSummary{
			OverallStatus:   status(a.OverallPassed),
			PassRate:        fmt.Sprintf("%.1f%%", s.PassRate()),
			TotalCategories: len(s.Categories),
			ExecutionTime:   fmt.Sprintf("%.2fs", s.Duration().Seconds()),
			Timestamp:       s.StartTime.Format("2006-01-02T15:04:05.000Z07:00"),
		},
		CategorySummary: []CategorySummary{},
		KeyFindings:     []string{},
	}
	for i := range s.Categories {
		c := &s.Categories[i]
		o.CategorySummary = append(o.CategorySummary, CategorySummary{
			Category:  c.Name,
			Status:    status(c.Passed),
			TestCount: len(c.Tests),
			PassRate:  c.PassRate(),
		})
	}

	if n := len(a.Regressions); n > 0 {
		o.KeyFindings = append(o.KeyFindings, fmt.Sprintf("%d performance regressions detected", n))
	}
	if n := len(a.Improvements); n > 0 {
		o.KeyFindings = append(o.KeyFindings, fmt.Sprintf("%d performance improvements found", n))
	}
	if n := countSeverity(a.Regressions, analysis.SeverityCritical); n > 0 {
		o.KeyFindings = append(o.KeyFindings, fmt.Sprintf("%d critical performance issues require immediate attention", n))
	}
	return o
}

// DetailedResults is the data of the detailed_results section.
type DetailedResults struct {
	Results []CategoryDetail `json:"results"`
}

// CategoryDetail lists the tests of one category.
type CategoryDetail struct {
	Category       string       `json:"category"`
	CategoryStatus string       `json:"category_status"`
	Summary        string       `json:"summary"`
	Tests          []TestDetail `json:"tests"`
}

// TestDetail is one test with its deviation from the expected value in percent.
type TestDetail struct {
	Test     string         `json:"test"`
	Status   string         `json:"status"`
	Result   float64        `json:"result"`
	Expected float64        `json:"expected"`
	Details  map[string]any `json:"details,omitempty"`
	// Percent deviation from expected, 0 when expected is 0
	Deviation float64 `json:"deviation"`
}

func detailedResults(s *model.Session) DetailedResults {
	d := DetailedResults{Results: []CategoryDetail{}}
	for _, c := range s.Categories {
		cd := CategoryDetail{
			Category:       c.Name,
			CategoryStatus: status(c.Passed),
			Summary:        c.Summary,
			Tests:          []TestDetail{},
		}
		for _, t := range c.Tests {
			cd.Tests = append(cd.Tests, TestDetail{
				Test:      t.Name,
				Status:    status(t.Passed),
				Result:    t.Result,
				Expected:  t.Expected,
				Details:   t.Details,
				Deviation: percentDeviation(t.Result, t.Expected),
			})
		}
		d.Results = append(d.Results, cd)
	}
	return d
}

func percentDeviation(result, expected float64) float64 {
	if expected == 0 {
		return 0
	}
	return (result - expected) / expected * 100
}

// AnalysisSection is the data of the analysis section.
type AnalysisSection struct {
	Regressions        RegressionSummary  `json:"regressions"`
	Improvements       ImprovementSummary `json:"improvements"`
	BaselineComparison []BaselineStatus   `json:"baseline_comparison"`
	Trends             TrendSummary       `json:"trends"`
}

// RegressionSummary counts regressions by severity.
type RegressionSummary struct {
	Count    int                   `json:"count"`
	Critical int                   `json:"critical"`
	High     int                   `json:"high"`
	Details  []analysis.Regression `json:"details"`
}

// ImprovementSummary lists the tests that improved since the previous run.
type ImprovementSummary struct {
	Count   int                    `json:"count"`
	Details []analysis.Improvement `json:"details"`
}

// BaselineStatus compares one category against its baselines.
type BaselineStatus struct {
	Category  string             `json:"category"`
	Status    string             `json:"status"`
	Deviation map[string]float64 `json:"deviation"`
}

// TrendSummary weighs improvements against regressions.
type TrendSummary struct {
	OverallTrend     string `json:"overall_trend"`
	ImprovementCount int    `json:"improvement_count"`
	RegressionCount  int    `json:"regression_count"`
}

func analysisSection(a *analysis.Analysis) AnalysisSection {
	out := AnalysisSection{
		Regressions: RegressionSummary{
			Count:    len(a.Regressions),
			Critical: countSeverity(a.Regressions, analysis.SeverityCritical),
			High:     countSeverity(a.Regressions, analysis.SeverityHigh),
			Details:  nonNil(a.Regressions),
		},
		Improvements: ImprovementSummary{
			Count:   len(a.Improvements),
			Details: nonNil(a.Improvements),
		},
		BaselineComparison: []BaselineStatus{},
		Trends: TrendSummary{
			OverallTrend:     analysis.TrendDegrading,
			ImprovementCount: len(a.Improvements),
			RegressionCount:  len(a.Regressions),
		},
	}
	if len(a.Improvements) > len(a.Regressions) {
		out.Trends.OverallTrend = analysis.TrendImproving
	}
	for _, c := range a.Comparison {
		out.BaselineComparison = append(out.BaselineComparison, BaselineStatus{
			Category:  c.Category,
			Status:    status(c.Passed),
			Deviation: c.Deviation,
		})
	}
	return out
}

// RecommendationsSection is the data of the recommendations section.
type RecommendationsSection struct {
	PriorityRecommendations   []analysis.Recommendation `json:"priority_recommendations"`
	QuickFixes                []analysis.Recommendation `json:"quick_fixes"`
	LongTermImprovements      []analysis.Recommendation `json:"long_term_improvements"`
	OptimizationOpportunities []Opportunity             `json:"optimization_opportunities"`
}

// Opportunity is an area worth optimizing.
type Opportunity struct {
	Area        string            `json:"area"`
	Description string            `json:"description"`
	Priority    analysis.Priority `json:"priority"`
}

func recommendations(a *analysis.Analysis) RecommendationsSection {
	out := RecommendationsSection{
		PriorityRecommendations:   nonNil(analysis.Prioritize(a.Recommendations)),
		QuickFixes:                nonNil(analysis.QuickFixes(a.Recommendations)),
		LongTermImprovements:      nonNil(analysis.LongTermImprovements(a.Recommendations)),
		OptimizationOpportunities: []Opportunity{},
	}
	if c, ok := a.Session.Category("memory"); ok && !c.Passed {
		out.OptimizationOpportunities = append(out.OptimizationOpportunities, Opportunity{
			Area:        "memory",
			Description: "Memory usage optimization needed",
			Priority:    analysis.PriorityHigh,
		})
	}
	if c, ok := a.Session.Category("frameRate"); ok && !c.Passed {
		out.OptimizationOpportunities = append(out.OptimizationOpportunities, Opportunity{
			Area:        "rendering",
			Description: "Frame rate optimization needed",
			Priority:    analysis.PriorityHigh,
		})
	}
	return out
}

// HistorySection is the data of the history section.
type HistorySection struct {
	RecentRuns    []RunSummary `json:"recent_runs"`
	TrendAnalysis HistoryTrend `json:"trend_analysis"`
}

// RunSummary is one stored run.
type RunSummary struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	Passed     bool    `json:"passed"`
	TotalTests int     `json:"total_tests"`
	PassRate   float64 `json:"pass_rate"`
	Duration   string  `json:"duration"`
}

// HistoryTrend compares the pass rates of the stored runs.
type HistoryTrend struct {
	Trend      string `json:"trend"`
	DataPoints int    `json:"data_points"`
}

// Trend value when fewer than two runs are stored.
const TrendInsufficientData = "insufficient_data"

func (g *Generator) historySection(ctx context.Context) HistorySection {
	out := HistorySection{
		RecentRuns:    []RunSummary{},
		TrendAnalysis: HistoryTrend{Trend: TrendInsufficientData},
	}
	if g.history == nil {
		return out
	}

	entries, err := g.history.List(ctx, recentRuns)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to load history for report")
		return out
	}

	for _, h := range entries {
		rs := RunSummary{
			ID:        h.ID,
			Timestamp: h.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			Passed:    h.Passed,
			Duration:  h.Duration.String(),
		}
		if h.Session != nil {
			rs.TotalTests = h.Session.TotalTests()
			rs.PassRate = h.Session.PassRate()
		}
		out.RecentRuns = append(out.RecentRuns, rs)
	}
	out.TrendAnalysis = historyTrend(out.RecentRuns)
	return out
}

// historyTrend compares the pass rate of the newest run with the oldest listed one.
func historyTrend(runs []RunSummary) HistoryTrend {
	t := HistoryTrend{Trend: TrendInsufficientData, DataPoints: len(runs)}
	if len(runs) < 2 {
		return t
	}
	newest, oldest := runs[0].PassRate, runs[len(runs)-1].PassRate
	switch {
	case newest > oldest:
		t.Trend = analysis.TrendImproving
	case newest < oldest:
		t.Trend = analysis.TrendDegrading
	default:
		t.Trend = analysis.TrendStable
	}
	return t
}

// KeyMetrics is the data of the key_metrics section, one entry per known category.
type KeyMetrics struct {
	FrameRate            *CategoryMetrics `json:"frame_rate,omitempty"`
	MemoryUsage          *CategoryMetrics `json:"memory_usage,omitempty"`
	RenderingPerformance *CategoryMetrics `json:"rendering_performance,omitempty"`
	NetworkPerformance   *CategoryMetrics `json:"network_performance,omitempty"`
	BatteryEfficiency    *CategoryMetrics `json:"battery_efficiency,omitempty"`
}

// CategoryMetrics holds the results of one category.
type CategoryMetrics struct {
	Status   string             `json:"status"`
	PassRate float64            `json:"pass_rate"`
	Results  map[string]float64 `json:"results"`
}

func keyMetrics(s *model.Session) KeyMetrics {
	extract := func(name string) *CategoryMetrics {
		c, ok := s.Category(name)
		if !ok {
			return nil
		}
		m := &CategoryMetrics{
			Status:   status(c.Passed),
			PassRate: c.PassRate(),
			Results:  make(map[string]float64, len(c.Tests)),
		}
		for _, t := range c.Tests {
			m.Results[t.Name] = t.Result
		}
		return m
	}
	return KeyMetrics{
		FrameRate:            extract("frameRate"),
		MemoryUsage:          extract("memory"),
		RenderingPerformance: extract("rendering"),
		NetworkPerformance:   extract("network"),
		BatteryEfficiency:    extract("battery"),
	}
}

// CriticalIssues lists the critical and high severity regressions.
type CriticalIssues struct {
	Count  int     `json:"count"`
	Issues []Issue `json:"issues"`
}

// Issue is one critical or high severity regression.
type Issue struct {
	Category          string            `json:"category"`
	Test              string            `json:"test"`
	Severity          analysis.Severity `json:"severity"`
	Impact            string            `json:"impact"`
	RecommendedAction string            `json:"recommended_action"`
}

var (
	impacts = map[analysis.Severity]string{
		analysis.SeverityCritical: "Severe performance degradation",
		analysis.SeverityHigh:     "Significant performance impact",
		analysis.SeverityMedium:   "Moderate performance impact",
		analysis.SeverityLow:      "Minor performance impact",
	}
	actions = map[analysis.Severity]string{
		analysis.SeverityCritical: "Immediate investigation and fix required",
		analysis.SeverityHigh:     "Priority fix needed within 24 hours",
		analysis.SeverityMedium:   "Fix recommended in next release",
		analysis.SeverityLow:      "Monitor and fix when convenient",
	}
)

func criticalIssues(regressions []analysis.Regression) CriticalIssues {
	out := CriticalIssues{Issues: []Issue{}}
	for _, r := range regressions {
		if r.Severity != analysis.SeverityCritical && r.Severity != analysis.SeverityHigh {
			continue
		}
		out.Issues = append(out.Issues, Issue{
			Category:          r.Category,
			Test:              r.Test,
			Severity:          r.Severity,
			Impact:            impacts[r.Severity],
			RecommendedAction: actions[r.Severity],
		})
	}
	out.Count = len(out.Issues)
	return out
}

// RawData is the data of the raw_data section.
type RawData struct {
	SessionData      *model.Session  `json:"session_data"`
	BaselineData     model.Baselines `json:"baseline_data"`
	CollectedMetrics *metrics.Dump   `json:"collected_metrics,omitempty"`
}

func (g *Generator) rawData(a *analysis.Analysis) RawData {
	rd := RawData{SessionData: a.Session, BaselineData: a.Baselines}
	if g.collector != nil {
		d := g.collector.Dump()
		rd.CollectedMetrics = &d
	}
	return rd
}

// Statistics is the data of the statistics section.
type Statistics struct {
	CategoryStatistics []CategorySummaryStats `json:"category_statistics"`
	OverallStatistics  metrics.Summary        `json:"overall_statistics"`
}

// CategorySummaryStats summarizes the results of one category.
type CategorySummaryStats struct {
	Category string `json:"category"`
	metrics.Summary
}

func statistics(s *model.Session) Statistics {
	out := Statistics{CategoryStatistics: []CategorySummaryStats{}}
	var all []float64
	for i := range s.Categories {
		values := s.Categories[i].Values()
		all = append(all, values...)
		out.CategoryStatistics = append(out.CategoryStatistics, CategorySummaryStats{
			Category: s.Categories[i].Name,
			Summary:  metrics.Summarize(values),
		})
	}
	out.OverallStatistics = metrics.Summarize(all)
	return out
}

// Correlations is the data of the correlations section.
type Correlations struct {
	// Pearson coefficient keyed "<category>_<category>"
	Correlations map[string]float64 `json:"correlations"`
}

func correlations(s *model.Session) Correlations {
	out := Correlations{Correlations: map[string]float64{}}
	for _, c := range analysis.AnalyzeCorrelations(s) {
		out.Correlations[c.A+"_"+c.B] = c.Coefficient
	}
	return out
}

// TechnicalAnalysis is the data of the technical_analysis section.
type TechnicalAnalysis struct {
	PerformanceBottlenecks   map[string][]Bottleneck `json:"performance_bottlenecks"`
	OptimizationPotential    OptimizationPotential   `json:"optimization_potential"`
	TechnicalRecommendations []string                `json:"technical_recommendations"`
}

// Bottleneck is a failing test ranked by impact.
type Bottleneck struct {
	Test     string            `json:"test"`
	Impact   analysis.Severity `json:"impact"`
	Priority analysis.Priority `json:"priority"`
}

// OptimizationPotential rates how much each area can improve.
type OptimizationPotential struct {
	Rendering string `json:"rendering"`
	Memory    string `json:"memory"`
	Overall   string `json:"overall"`
}

func technicalAnalysis(a *analysis.Analysis) TechnicalAnalysis {
	out := TechnicalAnalysis{
		PerformanceBottlenecks: map[string][]Bottleneck{},
		OptimizationPotential: OptimizationPotential{
			Rendering: "low",
			Memory:    "low",
			Overall:   "medium",
		},
	}
	for _, r := range a.Regressions {
		if r.Severity != analysis.SeverityCritical && r.Severity != analysis.SeverityHigh {
			continue
		}
		out.PerformanceBottlenecks[r.Category] = append(out.PerformanceBottlenecks[r.Category], Bottleneck{
			Test:     r.Test,
			Impact:   r.Severity,
			Priority: analysis.PriorityHigh,
		})
	}
	if c, ok := a.Session.Category("rendering"); ok && !c.Passed {
		out.OptimizationPotential.Rendering = "high"
	}
	if c, ok := a.Session.Category("memory"); ok && !c.Passed {
		out.OptimizationPotential.Memory = "medium"
	}
	if len(a.Regressions) > 0 {
		out.TechnicalRecommendations = []string{"Investigate performance regressions"}
	} else {
		out.TechnicalRecommendations = []string{"Maintain current optimization strategies"}
	}
	return out
}

func countSeverity(regressions []analysis.Regression, sev analysis.Severity) int {
	n := 0
	for _, r := range regressions {
		if r.Severity == sev {
			n++
		}
	}
	return n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
