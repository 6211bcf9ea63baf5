package suites

import (
	"context"
	"math"

	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/runner"
)

const (
	transferKB       = 1024
	latencyRequests  = 5
	reliabilityCalls = 200
)

// Simulated request failure probability per effective connection type.
var failureRates = map[string]float64{
	"slow-2g": 0.1,
	"2g":      0.05,
	"3g":      0.02,
	"4g":      0.005,
}

func (s *Set) network() runner.Suite {
	return runner.Tests{
		runner.NewTest("throughput", s.throughput),
		runner.NewTest("latency", s.latency),
		runner.NewTest("reliability", s.reliability),
	}
}

// throughput models a transferKB download over the current connection:
// one round trip plus the payload at the downlink rate.
func (s *Set) throughput(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	env := tc.Environment()
	if env == nil {
		return model.TestResult{}, errNoSimulator
	}
	conn := env.Connection()
	if conn.Downlink <= 0 {
		return model.TestResult{}, errNoConnection
	}

	seconds := transferKB*8/(conn.Downlink*1000) + conn.RTT.Seconds()
	kbps := transferKB / seconds

	expected := s.expected(Network, "throughput")
	return model.TestResult{
		Passed:   kbps >= expected,
		Result:   kbps,
		Expected: expected,
		Details: map[string]any{
			"effective_type": conn.EffectiveType,
			"downlink_mbps":  conn.Downlink,
		},
		Performance: map[string]float64{"throughput_kbps": kbps},
	}, nil
}

func (s *Set) latency(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	env := tc.Environment()
	if env == nil {
		return model.TestResult{}, errNoSimulator
	}

	samples := make([]float64, 0, latencyRequests)
	for i := 0; i < latencyRequests; i++ {
		if err := ctx.Err(); err != nil {
			return model.TestResult{}, err
		}
		samples = append(samples, ms(env.Connection().RTT))
	}
	avg := 0.0
	for _, v := range samples {
		avg += v
	}
	avg /= float64(len(samples))

	expected := s.expected(Network, "latency")
	return model.TestResult{
		Passed:      avg <= expected,
		Result:      avg,
		Expected:    expected,
		Details:     map[string]any{"requests": latencyRequests},
		Performance: map[string]float64{"latency_ms": avg},
	}, nil
}

func (s *Set) reliability(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	env := tc.Environment()
	if env == nil {
		return model.TestResult{}, errNoSimulator
	}
	conn := env.Connection()
	rate, ok := failureRates[conn.EffectiveType]
	if !ok {
		rate = failureRates["4g"]
	}
	failures := math.Round(reliabilityCalls * rate)
	errorRate := failures / reliabilityCalls

	expected := s.expected(Network, "reliability")
	return model.TestResult{
		Passed:   errorRate <= expected,
		Result:   errorRate,
		Expected: expected,
		Details: map[string]any{
			"requests": reliabilityCalls,
			"failures": int(failures),
		},
		Performance: map[string]float64{"error_rate": errorRate},
	}, nil
}
