package runner

import (
	"context"
	"time"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/simulator"
	"github.com/rs/zerolog"
)

// TestContext is created for every attempt and discarded afterwards.
type TestContext struct {
	Runner    *Runner
	Simulator *simulator.Simulator
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
	Suite     string
	Test      string
	Attempt   int
	StartTime time.Time
}

// Environment returns the simulated environment, or nil when the runner has no simulator.
func (tc *TestContext) Environment() *simulator.Environment {
	if tc.Simulator == nil {
		return nil
	}
	return tc.Simulator.Environment()
}

// Test is a single named test. Returning passed=false is a failed assertion;
// returning an error marks the attempt as failed and subject to retry.
type Test interface {
	Name() string
	Run(ctx context.Context, tc *TestContext) (model.TestResult, error)
}

// SetupHook is implemented by tests that prepare state before Run.
type SetupHook interface {
	Setup(ctx context.Context, tc *TestContext) error
}

// CleanupHook is implemented by tests that tear down state after a successful Run.
type CleanupHook interface {
	Cleanup(ctx context.Context, tc *TestContext) error
}

// ErrorCleanupHook is implemented by tests that tear down state after a failed attempt.
type ErrorCleanupHook interface {
	ErrorCleanup(ctx context.Context, tc *TestContext, err error) error
}

// Suite is a named collection of tests, registered with Runner.Register.
type Suite interface {
	Tests() []Test
}

// Tests is a Suite backed by a fixed list.
type Tests []Test

// Tests implements Suite.
func (t Tests) Tests() []Test {
	return t
}

// RunFunc is the body of a test.
type RunFunc func(ctx context.Context, tc *TestContext) (model.TestResult, error)

type funcTest struct {
	name string
	run  RunFunc
}

// NewTest returns a Test without lifecycle hooks.
func NewTest(name string, run RunFunc) Test {
	return &funcTest{name: name, run: run}
}

func (f *funcTest) Name() string { return f.name }

func (f *funcTest) Run(ctx context.Context, tc *TestContext) (model.TestResult, error) {
	return f.run(ctx, tc)
}
