package analysis

import (
	"math"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/rs/zerolog"
)

// Score thresholds for the performance profile.
const (
	StrengthScore = 90.0
	WeaknessScore = 70.0
)

// Engine derives analyses from sessions against a fixed set of baselines.
type Engine struct {
	logger    zerolog.Logger
	baselines model.Baselines
	collector *metrics.Collector
}

// New creates an analysis engine. collector may be nil.
func New(logger zerolog.Logger, baselines model.Baselines, collector *metrics.Collector) *Engine {
	return &Engine{logger: logger, baselines: baselines, collector: collector}
}

// Baselines returns the baselines the engine compares against.
func (e *Engine) Baselines() model.Baselines {
	return e.baselines
}

// AnalyzeResults builds an Analysis of session. previous may be nil.
func (e *Engine) AnalyzeResults(session, previous *model.Session) *Analysis {
	a := &Analysis{
		Session:       session,
		Previous:      previous,
		Baselines:     e.baselines,
		OverallPassed: IsOverallPassed(session),
		Regressions:   DetectRegressions(session),
		Improvements:  DetectImprovements(session, previous),
		Comparison:    CompareWithBaseline(session, e.baselines),
		Statistics:    CalculateTestStatistics(session),
	}
	a.Recommendations = GenerateRecommendations(a.Regressions)

	e.logger.Debug().
		Bool("passed", a.OverallPassed).
		Int("regressions", len(a.Regressions)).
		Int("improvements", len(a.Improvements)).
		Msg("Analyzed results")
	return a
}

// PerformAdvancedAnalysis computes trends, correlations, outliers and the score profile.
func (e *Engine) PerformAdvancedAnalysis(session, previous *model.Session) Advanced {
	adv := Advanced{
		Trends:       AnalyzeTrends(session, previous),
		Correlations: AnalyzeCorrelations(session),
		Outliers:     DetectOutliers(session),
		Profile:      CreatePerformanceProfile(session),
	}
	if e.collector != nil {
		for _, name := range e.collector.Names() {
			adv.Metrics = append(adv.Metrics, MetricStat{Name: name, Summary: e.collector.Summary(name)})
		}
	}
	return adv
}

// IsOverallPassed is true iff every category passed.
func IsOverallPassed(session *model.Session) bool {
	for _, c := range session.Categories {
		if !c.Passed {
			return false
		}
	}
	return true
}

// ClassifySeverity buckets |result-expected|/expected: >50% critical, >30% high,
// >10% medium, else low. A zero expected value with a different result is critical.
func ClassifySeverity(result, expected float64) Severity {
	if expected == 0 {
		if result == 0 {
			return SeverityLow
		}
		return SeverityCritical
	}
	deviation := math.Abs(result-expected) / math.Abs(expected)
	switch {
	case deviation > 0.5:
		return SeverityCritical
	case deviation > 0.3:
		return SeverityHigh
	case deviation > 0.1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DetectRegressions lists every failing test. A test that timed out or errored on
// every attempt produced no measurement and is always critical.
func DetectRegressions(session *model.Session) []Regression {
	var out []Regression
	for _, c := range session.Categories {
		for _, t := range c.Tests {
			if t.Passed {
				continue
			}
			severity := ClassifySeverity(t.Result, t.Expected)
			if t.Outcome.Permanent() {
				severity = SeverityCritical
			}
			out = append(out, Regression{
				Category: c.Name,
				Test:     t.Name,
				Result:   t.Result,
				Expected: t.Expected,
				Severity: severity,
			})
		}
	}
	return out
}

// DetectImprovements lists tests whose result dropped since previous.
func DetectImprovements(session, previous *model.Session) []Improvement {
	if previous == nil {
		return nil
	}
	var out []Improvement
	for _, c := range session.Categories {
		prevCat, ok := previous.Category(c.Name)
		if !ok {
			continue
		}
		for _, t := range c.Tests {
			prevTest, ok := prevCat.Test(t.Name)
			if !ok || t.Result >= prevTest.Result {
				continue
			}
			imp := Improvement{
				Category: c.Name,
				Test:     t.Name,
				Previous: prevTest.Result,
				Current:  t.Result,
			}
			if prevTest.Result != 0 {
				imp.Improvement = (prevTest.Result - t.Result) / prevTest.Result * 100
			}
			out = append(out, imp)
		}
	}
	return out
}

// CompareWithBaseline computes per-test deviations for every category with a baseline.
func CompareWithBaseline(session *model.Session, baselines model.Baselines) []BaselineComparison {
	var out []BaselineComparison
	for _, c := range session.Categories {
		base := baselines.Category(c.Name)
		if base == nil {
			continue
		}
		current := make(map[string]float64, len(c.Tests))
		for _, t := range c.Tests {
			current[t.Name] = t.Result
		}
		out = append(out, BaselineComparison{
			Category:  c.Name,
			Passed:    c.Passed,
			Current:   current,
			Baseline:  base,
			Deviation: metrics.Deviation(current, base),
		})
	}
	return out
}

// CalculateTestStatistics aggregates pass counts and per-category result statistics.
func CalculateTestStatistics(session *model.Session) Statistics {
	var s Statistics
	for _, c := range session.Categories {
		values := c.Values()
		cs := CategoryStatistics{
			Category: c.Name,
			Total:    len(c.Tests),
			PassRate: c.PassRate(),
			Mean:     metrics.Mean(values),
			Variance: metrics.Variance(values),
			StdDev:   metrics.StdDev(values),
		}
		for _, t := range c.Tests {
			if t.Passed {
				cs.Passed++
			}
		}
		cs.Failed = cs.Total - cs.Passed

		s.Total += cs.Total
		s.Passed += cs.Passed
		s.Failed += cs.Failed
		s.Categories = append(s.Categories, cs)
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total) * 100
	}
	return s
}
