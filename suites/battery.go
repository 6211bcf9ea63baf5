package suites

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/runner"
	"github.com/perfgo/perfsuite/simulator"
)

var (
	errNoScreen     = errors.New("simulated screen has no size")
	errNoConnection = errors.New("simulated connection has no downlink")
)

// Power model in mW.
const (
	basePower      = 200.0
	pixelsPerMW    = 2000.0
	vibrationPower = 50.0
	usefulPower    = 400.0
)

func (s *Set) battery() runner.Suite {
	return runner.Tests{
		runner.NewTest("powerConsumption", s.powerConsumption),
		runner.NewTest("efficiency", s.batteryEfficiency),
	}
}

// estimatePower models draw from screen area and one haptic pulse.
func estimatePower(sim *simulator.Simulator) (float64, error) {
	w, h := screen(sim)
	ok, err := sim.SimulateVibration(100 * time.Millisecond)
	if err != nil {
		return 0, err
	}
	power := basePower + float64(w*h)/pixelsPerMW
	if ok {
		power += vibrationPower
	}
	return power, nil
}

func (s *Set) powerConsumption(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	sim, err := requireSimulator(tc)
	if err != nil {
		return model.TestResult{}, err
	}
	power, err := estimatePower(sim)
	if err != nil {
		return model.TestResult{}, err
	}
	status := sim.BatteryStatus()

	expected := s.expected(Battery, "powerConsumption")
	return model.TestResult{
		Passed:   power <= expected,
		Result:   power,
		Expected: expected,
		Details: map[string]any{
			"battery_level": status.Level,
			"charging":      status.Charging,
		},
		Performance: map[string]float64{"power_mw": power},
	}, nil
}

// batteryEfficiency is the share of estimated draw spent on the workload.
func (s *Set) batteryEfficiency(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	sim, err := requireSimulator(tc)
	if err != nil {
		return model.TestResult{}, err
	}
	power, err := estimatePower(sim)
	if err != nil {
		return model.TestResult{}, err
	}
	efficiency := math.Min(usefulPower/power, 1)

	expected := s.expected(Battery, "efficiency")
	return model.TestResult{
		Passed:      efficiency >= expected,
		Result:      efficiency,
		Expected:    expected,
		Details:     map[string]any{"power_mw": power},
		Performance: map[string]float64{"efficiency": efficiency},
	}, nil
}
