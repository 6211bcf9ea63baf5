package suites

import (
	"context"
	"time"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/runner"
)

const (
	frameInterval   = time.Second / 60
	sampledFrames   = 30
	spikeDuration   = 100 * time.Millisecond
	maxStabilizeFor = 2 * time.Second
)

func (s *Set) frameRate() runner.Suite {
	return runner.Tests{
		runner.NewTest("steadyState", s.steadyState),
		runner.NewTest("underLoad", s.frameRateUnderLoad),
		runner.NewTest("stabilityAfterSpike", s.stabilityAfterSpike),
		runner.NewTest("varianceAnalysis", s.frameRateVariance),
	}
}

// sampleFrames ticks at 60Hz and reads the collector's frame rate after each tick,
// running work inside every frame.
func sampleFrames(ctx context.Context, c *metrics.Collector, frames int, work func()) ([]float64, error) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	c.FrameRate()
	samples := make([]float64, 0, frames)
	for i := 0; i < frames; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if work != nil {
			work()
		}
		samples = append(samples, c.FrameRate())
	}
	return samples, nil
}

func (s *Set) steadyState(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	samples, err := sampleFrames(ctx, collector(tc), sampledFrames, nil)
	if err != nil {
		return model.TestResult{}, err
	}
	avg := metrics.Mean(samples)
	return model.TestResult{
		Passed:   avg >= MinimumFrameRate && avg <= MaximumFrameRate,
		Result:   avg,
		Expected: s.expected(FrameRate, "steadyState"),
		Details: map[string]any{
			"min_fps": metrics.Min(samples),
			"max_fps": metrics.Max(samples),
			"frames":  len(samples),
		},
		Performance: map[string]float64{"fps": avg},
	}, nil
}

func (s *Set) frameRateUnderLoad(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	samples, err := sampleFrames(ctx, collector(tc), sampledFrames, func() { burn(frameInterval / 2) })
	if err != nil {
		return model.TestResult{}, err
	}
	avg := metrics.Mean(samples)
	expected := s.expected(FrameRate, "underLoad")
	return model.TestResult{
		Passed:      avg >= expected,
		Result:      avg,
		Expected:    expected,
		Details:     map[string]any{"p5_fps": metrics.Percentile(samples, 5)},
		Performance: map[string]float64{"fps": avg},
	}, nil
}

// stabilityAfterSpike blocks one frame for spikeDuration and measures how long it takes
// until two consecutive frames are back within 10% of the target rate.
func (s *Set) stabilityAfterSpike(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	c := collector(tc)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	c.FrameRate()
	burn(spikeDuration)
	spikeEnd := time.Now()

	stable := 0
	var stabilized time.Duration
	for stabilized == 0 {
		select {
		case <-ctx.Done():
			return model.TestResult{}, ctx.Err()
		case <-ticker.C:
		}
		fps := c.FrameRate()
		if fps >= TargetFrameRate*0.9 && fps <= TargetFrameRate*1.1 {
			stable++
		} else {
			stable = 0
		}
		elapsed := time.Since(spikeEnd)
		if stable >= 2 || elapsed >= maxStabilizeFor {
			stabilized = elapsed
		}
	}

	result := ms(stabilized)
	expected := s.expected(FrameRate, "stabilityAfterSpike")
	return model.TestResult{
		Passed:      result <= expected,
		Result:      result,
		Expected:    expected,
		Details:     map[string]any{"spike_ms": ms(spikeDuration)},
		Performance: map[string]float64{"stabilization_ms": result},
	}, nil
}

func (s *Set) frameRateVariance(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	samples, err := sampleFrames(ctx, collector(tc), sampledFrames, nil)
	if err != nil {
		return model.TestResult{}, err
	}
	variance := metrics.Variance(samples)
	expected := s.expected(FrameRate, "varianceAnalysis")
	return model.TestResult{
		Passed:      variance <= expected,
		Result:      variance,
		Expected:    expected,
		Details:     map[string]any{"std_dev": metrics.StdDev(samples)},
		Performance: map[string]float64{"variance": variance},
	}, nil
}
