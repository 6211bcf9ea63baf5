package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/simulator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CancellationToken is polled at test and chunk boundaries. It also interrupts a
// retry backoff in progress. The zero value is ready to use.
type CancellationToken struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

func (t *CancellationToken) init() {
	t.once.Do(func() { t.done = make(chan struct{}) })
}

// Cancel requests cancellation.
func (t *CancellationToken) Cancel() {
	t.init()
	if t.cancelled.CompareAndSwap(false, true) {
		close(t.done)
	}
}

// Cancelled reports whether cancellation was requested.
func (t *CancellationToken) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once cancellation is requested.
func (t *CancellationToken) Done() <-chan struct{} {
	t.init()
	return t.done
}

// bind returns a child of ctx that is also cancelled by the token.
func (t *CancellationToken) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if t.Cancelled() {
		cancel()
		return ctx, cancel
	}
	go func() {
		select {
		case <-t.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfig sets the initial configuration.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		r.cfg = cfg
	}
}

// WithSimulator attaches the environment simulator handed to every test.
func WithSimulator(sim *simulator.Simulator) Option {
	return func(r *Runner) {
		r.simulator = sim
	}
}

// WithCollector attaches the collector that receives performance samples.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Runner) {
		r.collector = c
	}
}

type registeredSuite struct {
	name  string
	suite Suite
}

type plan struct {
	suite string
	tests []Test
}

// Runner schedules registered suites. Only one run may be active at a time.
type Runner struct {
	logger    zerolog.Logger
	simulator *simulator.Simulator
	collector *metrics.Collector
	instr     *instrumentation
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	cfg     Config
	suites  []registeredSuite
	state   model.ExecutionState
	token   *CancellationToken
	stats   model.ExecutionStats
	session *model.Session
}

// New creates a runner.
func New(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger: logger,
		instr:  newInstrumentation(),
		now:    time.Now,
		sleep:  sleepContext,
		cfg:    DefaultConfig(),
		token:  &CancellationToken{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a suite. Suites run in registration order.
func (r *Runner) Register(name string, suite Suite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.suites {
		if s.name == name {
			return fmt.Errorf("suite %q already registered", name)
		}
	}
	r.suites = append(r.suites, registeredSuite{name: name, suite: suite})
	return nil
}

// SuiteNames returns registered suite names in registration order.
func (r *Runner) SuiteNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.suites))
	for _, s := range r.suites {
		names = append(names, s.name)
	}
	return names
}

// Registry returns the Prometheus registry holding the runner's metrics.
func (r *Runner) Registry() *prometheus.Registry {
	return r.instr.registry
}

// Config returns the current configuration.
func (r *Runner) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// UpdateConfig applies a partial configuration change. A run in progress keeps
// the configuration it started with.
func (r *Runner) UpdateConfig(u ConfigUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := u.apply(r.cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid runner config: %w", err)
	}
	r.cfg = cfg
	return nil
}

// ExecutionState returns what the runner is doing right now.
func (r *Runner) ExecutionState() model.ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state
	state.Cancelled = r.token.Cancelled()
	return state
}

// Stats returns the counters of the current or last run.
func (r *Runner) Stats() model.ExecutionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// AbortTests requests cancellation of the active run. The test in flight finishes;
// no new test or chunk starts.
func (r *Runner) AbortTests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.IsRunning {
		return
	}
	r.token.Cancel()
	r.logger.Info().Msg("Abort requested")
}

// RunAllTests runs every registered suite in registration order.
func (r *Runner) RunAllTests(ctx context.Context) (*model.Session, error) {
	r.mu.Lock()
	plans := make([]plan, 0, len(r.suites))
	for _, s := range r.suites {
		plans = append(plans, plan{suite: s.name, tests: s.suite.Tests()})
	}
	r.mu.Unlock()

	return r.run(ctx, plans)
}

// RunSpecificSuite runs one registered suite.
func (r *Runner) RunSpecificSuite(ctx context.Context, name string) (*model.Session, error) {
	suite, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, []plan{{suite: name, tests: suite.Tests()}})
}

// RunSpecificTest runs one test of a registered suite.
func (r *Runner) RunSpecificTest(ctx context.Context, suiteName, testName string) (*model.Session, error) {
	suite, err := r.lookup(suiteName)
	if err != nil {
		return nil, err
	}
	for _, t := range suite.Tests() {
		if t.Name() == testName {
			return r.run(ctx, []plan{{suite: suiteName, tests: []Test{t}}})
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTest, suiteName, testName)
}

func (r *Runner) lookup(name string) (Suite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.suites {
		if s.name == name {
			return s.suite, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSuite, name)
}

func (r *Runner) run(ctx context.Context, plans []plan) (*model.Session, error) {
	cfg, token, session, err := r.begin()
	if err != nil {
		return nil, err
	}

	r.logger.Info().Str("session", session.ID).Int("suites", len(plans)).Msg("Starting test run")
	runErr := r.execute(ctx, cfg, token, plans)
	return r.complete(session, runErr)
}

func (r *Runner) begin() (Config, *CancellationToken, *model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsRunning {
		return Config{}, nil, nil, ErrConcurrentRun
	}

	now := r.now()
	r.token = &CancellationToken{}
	r.state = model.ExecutionState{IsRunning: true, StartTime: now}
	r.stats = model.ExecutionStats{}
	r.session = &model.Session{
		ID:        uuid.NewString(),
		StartTime: now,
		Status:    model.SessionRunning,
	}
	if r.simulator != nil {
		r.session.Device = r.simulator.CurrentDevice().Name
	}
	r.instr.setActive(true)
	return r.cfg, r.token, r.session, nil
}

func (r *Runner) complete(session *model.Session, runErr error) (*model.Session, error) {
	r.mu.Lock()
	session.EndTime = r.now()
	session.Stats = r.stats
	session.Status = model.SessionCompleted
	if runErr != nil {
		session.Status = model.SessionAborted
	}
	r.state.IsRunning = false
	r.state.CurrentSuite = ""
	r.state.CurrentTest = ""
	stats := r.stats
	r.instr.setActive(false)
	r.mu.Unlock()

	event := r.logger.Info()
	if runErr != nil {
		event = r.logger.Warn().Err(runErr)
	}
	event.
		Str("session", session.ID).
		Str("status", string(session.Status)).
		Int("tests", stats.TotalTestsRun).
		Int("passed", stats.Passed).
		Int("failed", stats.Failed).
		Int("retries", stats.Retries).
		Int("timeouts", stats.Timeouts).
		Dur("duration", session.Duration()).
		Msg("Test run finished")

	return session, runErr
}

func (r *Runner) execute(ctx context.Context, cfg Config, token *CancellationToken, plans []plan) error {
	for _, p := range plans {
		if err := stopRequested(ctx, token); err != nil {
			return err
		}
		if err := r.runTestSuite(ctx, cfg, token, p.suite, p.tests); err != nil {
			return err
		}
	}
	return nil
}

func stopRequested(ctx context.Context, token *CancellationToken) error {
	if token.Cancelled() {
		return ErrAborted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// runTestSuite executes one suite sequentially or in chunks of cfg.ParallelLimit.
func (r *Runner) runTestSuite(ctx context.Context, cfg Config, token *CancellationToken, suite string, tests []Test) error {
	r.mu.Lock()
	r.state.CurrentSuite = suite
	r.stats.SuitesExecuted++
	r.mu.Unlock()

	logger := r.logger.With().Str("suite", suite).Logger()
	logger.Info().Int("tests", len(tests)).Bool("concurrent", cfg.Concurrent).Msg("Running suite")

	var err error
	if cfg.Concurrent {
		err = r.runChunks(ctx, cfg, token, suite, tests)
	} else {
		err = r.runSequential(ctx, cfg, token, suite, tests)
	}
	if err != nil {
		var suiteErr *SuiteExecutionError
		if errors.As(err, &suiteErr) {
			logger.Error().Err(suiteErr.Err).Str("test", suiteErr.Test).Msg("Suite failed")
		}
		return err
	}
	return nil
}

func (r *Runner) runSequential(ctx context.Context, cfg Config, token *CancellationToken, suite string, tests []Test) error {
	for _, test := range tests {
		if err := stopRequested(ctx, token); err != nil {
			return err
		}
		outcome, err := r.runSingleTest(ctx, cfg, token, suite, test)
		r.recordOutcome(outcome)
		if errors.Is(err, ErrAborted) {
			return err
		}
		if err != nil && !cfg.ContinueOnError {
			return &SuiteExecutionError{Suite: suite, Test: test.Name(), Err: err}
		}
	}
	return nil
}

// runChunks dispatches tests in chunks. Chunks run in order; tests within a chunk run
// concurrently and share the same simulator.
func (r *Runner) runChunks(ctx context.Context, cfg Config, token *CancellationToken, suite string, tests []Test) error {
	for start := 0; start < len(tests); start += cfg.ParallelLimit {
		if err := stopRequested(ctx, token); err != nil {
			return err
		}

		end := min(start+cfg.ParallelLimit, len(tests))
		chunk := tests[start:end]
		outcomes := make([]model.TestOutcome, len(chunk))

		var g errgroup.Group
		for i, test := range chunk {
			g.Go(func() error {
				outcome, err := r.runSingleTest(ctx, cfg, token, suite, test)
				outcomes[i] = outcome
				if errors.Is(err, ErrAborted) {
					return err
				}
				if err != nil && !cfg.ContinueOnError {
					return &SuiteExecutionError{Suite: suite, Test: test.Name(), Err: err}
				}
				return nil
			})
		}
		err := g.Wait()

		for _, o := range outcomes {
			r.recordOutcome(o)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// runSingleTest runs a test until it passes, fails an assertion, or exhausts its attempts.
// The returned error is non-nil only for a permanent timeout or error, or ErrAborted
// when the run stops during a retry backoff.
func (r *Runner) runSingleTest(ctx context.Context, cfg Config, token *CancellationToken, suite string, test Test) (model.TestOutcome, error) {
	name := test.Name()
	logger := r.logger.With().Str("suite", suite).Str("test", name).Logger()
	start := r.now()

	r.mu.Lock()
	r.state.CurrentTest = name
	r.mu.Unlock()

	outcome := model.TestOutcome{Suite: suite, Test: name}
	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt
		attemptStart := r.now()
		result, err := r.attempt(ctx, cfg, logger, suite, test, attempt)
		elapsed := r.now().Sub(attemptStart)

		if err == nil {
			outcome.Result = result
			outcome.Kind = model.OutcomeFail
			if result.Passed {
				outcome.Kind = model.OutcomePass
			}
			if result.Performance != nil && r.collector != nil {
				r.collector.Record(outcome.Key(), elapsed, result.Performance)
			}
			outcome.Duration = r.now().Sub(start)
			r.finishTest(outcome)
			logger.Debug().Str("outcome", string(outcome.Kind)).Int("attempts", attempt).Msg("Test finished")
			return outcome, nil
		}

		var timeout *TestTimeoutError
		if errors.As(err, &timeout) {
			outcome.Kind = model.OutcomeTimeout
			r.mu.Lock()
			r.stats.Timeouts++
			r.mu.Unlock()
			r.instr.recordTimeout(suite)
		} else {
			outcome.Kind = model.OutcomeError
		}
		outcome.Error = err.Error()

		if attempt >= cfg.Retries {
			outcome.Duration = r.now().Sub(start)
			r.finishTest(outcome)
			logger.Warn().Err(err).Int("attempts", attempt).Msg("Test failed permanently")
			return outcome, err
		}

		r.mu.Lock()
		r.stats.Retries++
		r.mu.Unlock()
		r.instr.recordRetry(suite)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", cfg.RetryDelay).Msg("Retrying test")

		sleepCtx, cancel := token.bind(ctx)
		serr := r.sleep(sleepCtx, cfg.RetryDelay)
		cancel()
		if serr == nil {
			serr = stopRequested(ctx, token)
		}
		if serr != nil {
			outcome.Duration = r.now().Sub(start)
			r.finishTest(outcome)
			logger.Info().Int("attempts", attempt).Msg("Retry abandoned")
			if err := stopRequested(ctx, token); err != nil {
				return outcome, err
			}
			return outcome, fmt.Errorf("retry of %s.%s cancelled: %w", suite, name, serr)
		}
		if r.simulator != nil {
			r.simulator.ResetDeviceState()
		}
	}
}

type attemptResult struct {
	result model.TestResult
	err    error
}

// attempt races one execution of the test body against cfg.Timeout. A timed-out body
// keeps running in the background; its context is cancelled and its result discarded.
func (r *Runner) attempt(ctx context.Context, cfg Config, logger zerolog.Logger, suite string, test Test, attempt int) (model.TestResult, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tc := &TestContext{
		Runner:    r,
		Simulator: r.simulator,
		Metrics:   r.collector,
		Logger:    logger.With().Int("attempt", attempt).Logger(),
		Suite:     suite,
		Test:      test.Name(),
		Attempt:   attempt,
		StartTime: r.now(),
	}

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptResult{err: &PanicError{Value: p}}
			}
		}()
		result, err := invoke(attemptCtx, tc, test)
		done <- attemptResult{result: result, err: err}
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.result, res.err
	case <-timer.C:
		return model.TestResult{}, &TestTimeoutError{Suite: suite, Test: test.Name(), Timeout: cfg.Timeout}
	}
}

// invoke runs setup, body and cleanup. Any error runs the error cleanup hook instead.
func invoke(ctx context.Context, tc *TestContext, test Test) (model.TestResult, error) {
	result, err := invokeHooks(ctx, tc, test)
	if err != nil {
		if h, ok := test.(ErrorCleanupHook); ok {
			if cerr := h.ErrorCleanup(ctx, tc, err); cerr != nil {
				tc.Logger.Warn().Err(cerr).Msg("Error cleanup failed")
			}
		}
		return result, err
	}
	return result, nil
}

func invokeHooks(ctx context.Context, tc *TestContext, test Test) (model.TestResult, error) {
	if h, ok := test.(SetupHook); ok {
		if err := h.Setup(ctx, tc); err != nil {
			return model.TestResult{}, fmt.Errorf("setup: %w", err)
		}
	}
	result, err := test.Run(ctx, tc)
	if err != nil {
		return result, err
	}
	if h, ok := test.(CleanupHook); ok {
		if err := h.Cleanup(ctx, tc); err != nil {
			return result, fmt.Errorf("cleanup: %w", err)
		}
	}
	return result, nil
}

// finishTest updates the run counters for a settled test.
func (r *Runner) finishTest(o model.TestOutcome) {
	r.mu.Lock()
	r.stats.TotalTestsRun++
	n := r.stats.TotalTestsRun
	avg := r.stats.AverageTestTime
	r.stats.AverageTestTime = time.Duration((float64(avg)*float64(n-1) + float64(o.Duration)) / float64(n))
	if o.Kind == model.OutcomePass {
		r.stats.Passed++
	} else {
		r.stats.Failed++
	}
	r.mu.Unlock()

	r.instr.recordOutcome(o)
}

func (r *Runner) recordOutcome(o model.TestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.AddOutcome(o)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
