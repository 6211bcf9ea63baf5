// Package suites provides the built-in performance test categories.
package suites

import (
	"errors"
	"fmt"
	"time"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/runner"
	"github.com/perfgo/perfsuite/simulator"
)

// Category names, in registration order.
const (
	FrameRate = "frameRate"
	Memory    = "memory"
	Rendering = "rendering"
	Network   = "network"
	Battery   = "battery"
)

// Frame rate bounds for the steady state test.
const (
	TargetFrameRate  = 60.0
	MinimumFrameRate = 48.0
	MaximumFrameRate = 75.0
)

var errNoSimulator = errors.New("test requires a device simulator")

// DefaultBaselines returns the reference value of every built-in test.
func DefaultBaselines() model.Baselines {
	return model.Baselines{
		FrameRate: {
			"steadyState":         TargetFrameRate,
			"underLoad":           MinimumFrameRate,
			"stabilityAfterSpike": 2000, // ms
			"varianceAnalysis":    5,
		},
		Memory: {
			"baselineUsage":    150, // MB
			"leakDetection":    0,
			"gcEfficiency":     50,   // ms average pause
			"pressureHandling": 1000, // ms
		},
		Rendering: {
			"dirtyRegionEfficiency": 0.3,
			"viewportCulling":       0.7,
			"layerComposition":      8.33,  // ms
			"renderTime":            16.67, // ms
		},
		Network: {
			"throughput":  1000, // KB/s
			"latency":     100,  // ms
			"reliability": 0.01,
		},
		Battery: {
			"powerConsumption": 500, // mW
			"efficiency":       0.8,
		},
	}
}

// Set is the built-in categories bound to a set of baselines.
type Set struct {
	baselines model.Baselines
	defaults  model.Baselines
}

// New binds the built-in categories to baselines. Missing values fall back to DefaultBaselines.
func New(baselines model.Baselines) *Set {
	return &Set{baselines: baselines, defaults: DefaultBaselines()}
}

// Names lists the built-in categories in registration order.
func Names() []string {
	return []string{FrameRate, Memory, Rendering, Network, Battery}
}

// Register adds every built-in category to r.
func (s *Set) Register(r *runner.Runner) error {
	suites := map[string]runner.Suite{
		FrameRate: s.frameRate(),
		Memory:    s.memory(),
		Rendering: s.rendering(),
		Network:   s.network(),
		Battery:   s.battery(),
	}
	for _, name := range Names() {
		if err := r.Register(name, suites[name]); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	return nil
}

// expected returns the baseline for category/test.
func (s *Set) expected(category, test string) float64 {
	if v, ok := s.baselines.Category(category)[test]; ok {
		return v
	}
	return s.defaults[category][test]
}

func collector(tc *runner.TestContext) *metrics.Collector {
	if tc.Metrics != nil {
		return tc.Metrics
	}
	return metrics.New(tc.Logger)
}

func requireSimulator(tc *runner.TestContext) (*simulator.Simulator, error) {
	if tc.Simulator == nil {
		return nil, errNoSimulator
	}
	return tc.Simulator, nil
}

// burn keeps the CPU busy for d.
func burn(d time.Duration) {
	deadline := time.Now().Add(d)
	n := 0
	for time.Now().Before(deadline) {
		n++
	}
	_ = n
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
