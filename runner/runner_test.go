package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/simulator"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func newTestRunner(t *testing.T, cfg Config, opts ...Option) (*Runner, *[]time.Duration) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	r := New(zerolog.Nop(), append([]Option{WithConfig(cfg)}, opts...)...)

	var mu sync.Mutex
	delays := &[]time.Duration{}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return r, delays
}

func passing(name string) Test {
	return NewTest(name, func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
		return model.TestResult{Passed: true, Result: 1, Expected: 1}, nil
	})
}

func TestRunner_RetriesThenPermanentFailure(t *testing.T) {
	r, delays := newTestRunner(t, testConfig())
	boom := errors.New("boom")

	var attempts atomic.Int32
	require.NoError(t, r.Register("memory", Tests{
		NewTest("leakDetection", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			attempts.Add(1)
			return model.TestResult{}, boom
		}),
		passing("never"),
	}))

	session, err := r.RunAllTests(context.Background())

	var suiteErr *SuiteExecutionError
	require.ErrorAs(t, err, &suiteErr)
	require.Equal(t, "memory", suiteErr.Suite)
	require.Equal(t, "leakDetection", suiteErr.Test)
	require.ErrorIs(t, err, boom)

	require.Equal(t, int32(3), attempts.Load())
	require.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, *delays)

	stats := r.Stats()
	require.Equal(t, 2, stats.Retries)
	require.Equal(t, 0, stats.Timeouts)
	require.Equal(t, 1, stats.TotalTestsRun)
	require.Equal(t, 1, stats.Failed)

	require.NotNil(t, session)
	require.Equal(t, model.SessionAborted, session.Status)
	require.Equal(t, 1, session.TotalTests())
	cat, ok := session.Category("memory")
	require.True(t, ok)
	require.False(t, cat.Passed)
	require.Equal(t, "boom", cat.Tests[0].Details["error"])
	require.False(t, r.ExecutionState().IsRunning)

	require.Equal(t, 2.0, testutil.ToFloat64(r.instr.retries.WithLabelValues("memory")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.instr.testsTotal.WithLabelValues("memory", "error")))
}

func TestRunner_FailedAssertionIsNotRetried(t *testing.T) {
	r, delays := newTestRunner(t, testConfig())

	var attempts atomic.Int32
	require.NoError(t, r.Register("frameRate", Tests{
		NewTest("steadyState", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			attempts.Add(1)
			return model.TestResult{Passed: false, Result: 40, Expected: 60}, nil
		}),
	}))

	session, err := r.RunAllTests(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), attempts.Load())
	require.Empty(t, *delays)
	require.Equal(t, 0, r.Stats().Retries)
	require.Equal(t, model.SessionCompleted, session.Status)

	cat, ok := session.Category("frameRate")
	require.True(t, ok)
	require.False(t, cat.Passed)
	require.Equal(t, "frameRate tests: 0/1 passed", cat.Summary)
	require.Equal(t, 40.0, cat.Tests[0].Result)
}

func TestRunner_RecordsEveryOutcome(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
	}{
		{name: "sequential", concurrent: false},
		{name: "chunked", concurrent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Retries = 2
			cfg.ContinueOnError = true
			cfg.Concurrent = tt.concurrent
			cfg.ParallelLimit = 2
			r, _ := newTestRunner(t, cfg)

			suite := Tests{
				passing("a"),
				NewTest("b", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
					return model.TestResult{Passed: false}, nil
				}),
				NewTest("c", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
					return model.TestResult{}, errors.New("always")
				}),
				passing("d"),
				passing("e"),
			}
			require.NoError(t, r.Register("rendering", suite))

			session, err := r.RunAllTests(context.Background())
			require.NoError(t, err)

			cat, ok := session.Category("rendering")
			require.True(t, ok)
			names := make([]string, 0, len(cat.Tests))
			for _, tc := range cat.Tests {
				names = append(names, tc.Name)
			}
			require.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
			require.Equal(t, 3, session.PassedTests())

			stats := r.Stats()
			require.Equal(t, 5, stats.TotalTestsRun)
			require.Equal(t, 3, stats.Passed)
			require.Equal(t, 2, stats.Failed)
			require.Equal(t, 1, stats.Retries)
			require.Equal(t, 1, stats.SuitesExecuted)
		})
	}
}

func TestRunner_ChunksBoundConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrent = true
	cfg.ParallelLimit = 2
	r, _ := newTestRunner(t, cfg)

	var inFlight, maxInFlight atomic.Int32
	body := func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return model.TestResult{Passed: true}, nil
	}

	var suite Tests
	for _, name := range []string{"t1", "t2", "t3", "t4", "t5"} {
		suite = append(suite, NewTest(name, body))
	}
	require.NoError(t, r.Register("network", suite))

	session, err := r.RunAllTests(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, session.TotalTests())
	require.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestRunner_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.Retries = 2
	r, _ := newTestRunner(t, cfg)

	require.NoError(t, r.Register("network", Tests{
		NewTest("latency", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			return model.TestResult{Passed: true}, nil
		}),
	}))

	session, err := r.RunAllTests(context.Background())
	var timeout *TestTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, "latency", timeout.Test)
	require.Equal(t, 10*time.Millisecond, timeout.Timeout)

	stats := r.Stats()
	require.Equal(t, 2, stats.Timeouts)
	require.Equal(t, 1, stats.Retries)
	require.Equal(t, 1, session.TotalTests())
	require.Equal(t, 2.0, testutil.ToFloat64(r.instr.timeouts.WithLabelValues("network")))
}

func TestRunner_ConcurrentRunRejected(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, r.Register("battery", Tests{
		NewTest("powerConsumption", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			close(started)
			<-release
			return model.TestResult{Passed: true}, nil
		}),
	}))

	done := make(chan error, 1)
	go func() {
		_, err := r.RunAllTests(context.Background())
		done <- err
	}()

	<-started
	state := r.ExecutionState()
	require.True(t, state.IsRunning)
	require.Equal(t, "battery", state.CurrentSuite)
	require.Equal(t, "powerConsumption", state.CurrentTest)
	require.Equal(t, 1.0, testutil.ToFloat64(r.instr.runActive))

	_, err := r.RunAllTests(context.Background())
	require.ErrorIs(t, err, ErrConcurrentRun)
	_, err = r.RunSpecificSuite(context.Background(), "battery")
	require.ErrorIs(t, err, ErrConcurrentRun)

	close(release)
	require.NoError(t, <-done)
	require.False(t, r.ExecutionState().IsRunning)
	require.Equal(t, 0.0, testutil.ToFloat64(r.instr.runActive))
}

func TestRunner_AbortAtTestBoundary(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())

	var ran []string
	var runningDuringAbort bool
	require.NoError(t, r.Register("frameRate", Tests{
		NewTest("first", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			ran = append(ran, "first")
			tc.Runner.AbortTests()
			runningDuringAbort = tc.Runner.ExecutionState().IsRunning
			return model.TestResult{Passed: true}, nil
		}),
		NewTest("second", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			ran = append(ran, "second")
			return model.TestResult{Passed: true}, nil
		}),
	}))
	require.NoError(t, r.Register("memory", Tests{passing("never")}))

	session, err := r.RunAllTests(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	require.Equal(t, []string{"first"}, ran)
	require.True(t, runningDuringAbort)

	state := r.ExecutionState()
	require.False(t, state.IsRunning)
	require.True(t, state.Cancelled)

	// Partial results survive the abort
	require.Equal(t, model.SessionAborted, session.Status)
	require.Equal(t, 1, session.TotalTests())
	require.Equal(t, 1, r.Stats().TotalTestsRun)

	// A new run starts with a fresh token
	session, err = r.RunSpecificSuite(context.Background(), "memory")
	require.NoError(t, err)
	require.Equal(t, model.SessionCompleted, session.Status)
	require.False(t, r.ExecutionState().Cancelled)
}

func TestRunner_AbortWhenIdleIsNoop(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())
	require.NoError(t, r.Register("memory", Tests{passing("baselineUsage")}))

	r.AbortTests()
	_, err := r.RunAllTests(context.Background())
	require.NoError(t, err)
}

func TestRunner_ContextCancelledIsAbort(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())
	require.NoError(t, r.Register("memory", Tests{passing("baselineUsage")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunAllTests(ctx)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunner_AbortDuringRetryBackoff(t *testing.T) {
	tests := []struct {
		name            string
		concurrent      bool
		continueOnError bool
	}{
		{name: "sequential"},
		{name: "sequential continue on error", continueOnError: true},
		{name: "chunked", concurrent: true},
		{name: "chunked continue on error", concurrent: true, continueOnError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Retries = 3
			cfg.RetryDelay = time.Hour
			cfg.Concurrent = tt.concurrent
			cfg.ContinueOnError = tt.continueOnError
			r, _ := newTestRunner(t, cfg)

			// The backoff only returns once the abort cancels it
			r.sleep = func(ctx context.Context, d time.Duration) error {
				r.AbortTests()
				<-ctx.Done()
				return ctx.Err()
			}

			var attempts atomic.Int32
			require.NoError(t, r.Register("network", Tests{
				NewTest("latency", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
					attempts.Add(1)
					return model.TestResult{}, errors.New("connection reset")
				}),
			}))
			require.NoError(t, r.Register("memory", Tests{passing("never")}))

			session, err := r.RunAllTests(context.Background())
			require.ErrorIs(t, err, ErrAborted)
			var suiteErr *SuiteExecutionError
			require.False(t, errors.As(err, &suiteErr))

			require.Equal(t, int32(1), attempts.Load())
			require.Equal(t, model.SessionAborted, session.Status)
			require.Equal(t, 1, session.TotalTests())
			require.Equal(t, 1, r.Stats().SuitesExecuted)
			require.True(t, r.ExecutionState().Cancelled)
		})
	}
}

func TestRunner_AbortBetweenChunks(t *testing.T) {
	tests := []struct {
		name     string
		abortIn  string
		wantRuns []string
	}{
		{name: "first chunk", abortIn: "t1", wantRuns: []string{"t1", "t2"}},
		{name: "second chunk", abortIn: "t4", wantRuns: []string{"t1", "t2", "t3", "t4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Concurrent = true
			cfg.ParallelLimit = 2
			r, _ := newTestRunner(t, cfg)

			var mu sync.Mutex
			var ran []string
			var suite Tests
			for _, name := range []string{"t1", "t2", "t3", "t4", "t5"} {
				suite = append(suite, NewTest(name, func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
					mu.Lock()
					ran = append(ran, name)
					mu.Unlock()
					if name == tt.abortIn {
						tc.Runner.AbortTests()
					}
					return model.TestResult{Passed: true, Result: 1, Expected: 1}, nil
				}))
			}
			require.NoError(t, r.Register("network", suite))

			session, err := r.RunAllTests(context.Background())
			require.ErrorIs(t, err, ErrAborted)
			require.ElementsMatch(t, tt.wantRuns, ran)

			// The chunk in flight completes and its results are kept
			require.Equal(t, model.SessionAborted, session.Status)
			require.Equal(t, len(tt.wantRuns), session.TotalTests())
			require.Equal(t, len(tt.wantRuns), session.PassedTests())
		})
	}
}

type hookedTest struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (h *hookedTest) record(s string) {
	h.mu.Lock()
	h.calls = append(h.calls, s)
	h.mu.Unlock()
}

func (h *hookedTest) Name() string { return "hooked" }

func (h *hookedTest) Setup(ctx context.Context, tc *TestContext) error {
	h.record("setup")
	return nil
}

func (h *hookedTest) Run(ctx context.Context, tc *TestContext) (model.TestResult, error) {
	h.record("run")
	if h.fail {
		return model.TestResult{}, errors.New("failed")
	}
	return model.TestResult{Passed: true}, nil
}

func (h *hookedTest) Cleanup(ctx context.Context, tc *TestContext) error {
	h.record("cleanup")
	return nil
}

func (h *hookedTest) ErrorCleanup(ctx context.Context, tc *TestContext, err error) error {
	h.record("errorCleanup")
	return nil
}

func TestRunner_LifecycleHooks(t *testing.T) {
	tests := []struct {
		name string
		fail bool
		want []string
	}{
		{name: "success", fail: false, want: []string{"setup", "run", "cleanup"}},
		{name: "failure", fail: true, want: []string{
			"setup", "run", "errorCleanup",
			"setup", "run", "errorCleanup",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Retries = 2
			cfg.ContinueOnError = true
			r, _ := newTestRunner(t, cfg)

			test := &hookedTest{fail: tt.fail}
			require.NoError(t, r.Register("rendering", Tests{test}))
			_, err := r.RunAllTests(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, test.calls)
		})
	}
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	cfg := testConfig()
	cfg.Retries = 1
	r, _ := newTestRunner(t, cfg)

	require.NoError(t, r.Register("memory", Tests{
		NewTest("gcEfficiency", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			panic("nil map")
		}),
	}))

	_, err := r.RunAllTests(context.Background())
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	require.Equal(t, "nil map", panicErr.Value)
}

func TestRunner_ForwardsPerformanceAndResetsDevice(t *testing.T) {
	catalog, err := simulator.DefaultCatalog()
	require.NoError(t, err)
	sim, err := simulator.New(zerolog.Nop(), simulator.NewEnvironment(simulator.DefaultHost()), catalog)
	require.NoError(t, err)
	require.NoError(t, sim.StartSimulation(""))
	defer sim.StopSimulation()

	collector := metrics.New(zerolog.Nop())
	r, _ := newTestRunner(t, testConfig(), WithSimulator(sim), WithCollector(collector))

	var attempts atomic.Int32
	require.NoError(t, r.Register("battery", Tests{
		NewTest("efficiency", func(ctx context.Context, tc *TestContext) (model.TestResult, error) {
			if _, err := tc.Simulator.SimulateVibration(time.Millisecond); err != nil {
				return model.TestResult{}, err
			}
			if attempts.Add(1) == 1 {
				return model.TestResult{}, errors.New("flaky")
			}
			return model.TestResult{Passed: tc.Attempt == 2, Result: 0.9, Performance: map[string]float64{"mw": 420}}, nil
		}),
	}))

	session, err := r.RunAllTests(context.Background())
	require.NoError(t, err)
	require.Equal(t, "iPhone 12", session.Device)
	require.NotEmpty(t, session.ID)
	require.Equal(t, 1, session.PassedTests())

	// Device state was reset between attempts
	require.Len(t, sim.VibrationCalls(), 1)

	entries := collector.Entries("battery.efficiency")
	require.Len(t, entries, 1)
	require.Equal(t, 420.0, entries[0].Detail["mw"])
}

func TestRunner_SpecificSuiteAndTest(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())
	require.NoError(t, r.Register("network", Tests{passing("throughput"), passing("latency")}))
	require.Error(t, r.Register("network", Tests{}))
	require.Equal(t, []string{"network"}, r.SuiteNames())

	session, err := r.RunSpecificTest(context.Background(), "network", "latency")
	require.NoError(t, err)
	require.Equal(t, 1, session.TotalTests())
	cat, _ := session.Category("network")
	require.Equal(t, "latency", cat.Tests[0].Name)

	_, err = r.RunSpecificTest(context.Background(), "network", "jitter")
	require.ErrorIs(t, err, ErrUnknownTest)

	_, err = r.RunSpecificSuite(context.Background(), "gpu")
	require.ErrorIs(t, err, ErrUnknownSuite)
}

func TestRunner_UpdateConfig(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())

	timeout := 5 * time.Second
	concurrent := true
	require.NoError(t, r.UpdateConfig(ConfigUpdate{Timeout: &timeout, Concurrent: &concurrent}))
	require.Equal(t, timeout, r.Config().Timeout)
	require.True(t, r.Config().Concurrent)
	require.Equal(t, 3, r.Config().Retries)

	zero := 0
	require.Error(t, r.UpdateConfig(ConfigUpdate{Retries: &zero}))
	require.Error(t, r.UpdateConfig(ConfigUpdate{ParallelLimit: &zero}))
	require.Equal(t, 3, r.Config().Retries)
}

func TestRunner_AverageTestTime(t *testing.T) {
	r, _ := newTestRunner(t, testConfig())
	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		r.finishTest(model.TestOutcome{Suite: "s", Test: "t", Kind: model.OutcomePass, Duration: d})
	}
	require.Equal(t, 20*time.Millisecond, r.Stats().AverageTestTime)
	require.Equal(t, 3, r.Stats().TotalTestsRun)
}
