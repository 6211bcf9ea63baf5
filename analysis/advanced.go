package analysis

import (
	"math"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
)

// Z-score thresholds for outlier detection.
const (
	OutlierZScore = 2.0
	ExtremeZScore = 3.0
)

// AnalyzeTrends compares each category's mean result with the previous run.
// Categories missing from previous, or with a zero previous mean, are skipped.
func AnalyzeTrends(session, previous *model.Session) []Trend {
	if previous == nil {
		return nil
	}
	var out []Trend
	for _, c := range session.Categories {
		prevCat, ok := previous.Category(c.Name)
		if !ok {
			continue
		}
		prev := metrics.Mean(prevCat.Values())
		curr := metrics.Mean(c.Values())
		if prev == 0 {
			continue
		}

		magnitude := math.Abs(curr-prev) / math.Abs(prev)
		direction := TrendStable
		switch {
		case curr < prev:
			direction = TrendImproving
		case curr > prev:
			direction = TrendDegrading
		}
		out = append(out, Trend{
			Category:   c.Name,
			Direction:  direction,
			Magnitude:  magnitude,
			Confidence: math.Min(magnitude*10, 1),
		})
	}
	return out
}

// AnalyzeCorrelations computes the Pearson coefficient for every unordered pair of categories.
func AnalyzeCorrelations(session *model.Session) []Correlation {
	var out []Correlation
	cats := session.Categories
	for i := 0; i < len(cats); i++ {
		for j := i + 1; j < len(cats); j++ {
			out = append(out, Correlation{
				A:           cats[i].Name,
				B:           cats[j].Name,
				Coefficient: metrics.Pearson(cats[i].Values(), cats[j].Values()),
			})
		}
	}
	return out
}

// DetectOutliers flags results whose z-score within their category exceeds OutlierZScore.
func DetectOutliers(session *model.Session) []Outlier {
	var out []Outlier
	for _, c := range session.Categories {
		values := c.Values()
		sd := metrics.StdDev(values)
		if sd == 0 {
			continue
		}
		mean := metrics.Mean(values)
		for _, t := range c.Tests {
			z := math.Abs(t.Result-mean) / sd
			if z <= OutlierZScore {
				continue
			}
			kind := "moderate"
			if z > ExtremeZScore {
				kind = "extreme"
			}
			out = append(out, Outlier{
				Category: c.Name,
				Test:     t.Name,
				Value:    t.Result,
				ZScore:   z,
				Kind:     kind,
			})
		}
	}
	return out
}

// CreatePerformanceProfile scores each category by pass rate.
func CreatePerformanceProfile(session *model.Session) Profile {
	var p Profile
	total := 0.0
	for _, c := range session.Categories {
		score := c.PassRate()
		p.Scores = append(p.Scores, CategoryScore{Category: c.Name, Score: score})
		switch {
		case score >= StrengthScore:
			p.Strengths = append(p.Strengths, c.Name)
		case score < WeaknessScore:
			p.Weaknesses = append(p.Weaknesses, c.Name)
		}
		total += score
	}
	if len(p.Scores) > 0 {
		p.OverallScore = total / float64(len(p.Scores))
	}
	return p
}
