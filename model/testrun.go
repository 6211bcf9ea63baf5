package model

import "time"

// OutcomeKind classifies how a single test ended after all attempts.
type OutcomeKind string

const (
	// OutcomePass means the test body returned a passing result
	OutcomePass OutcomeKind = "pass"
	// OutcomeFail means the test body returned passed=false without an error
	OutcomeFail OutcomeKind = "fail"
	// OutcomeTimeout means the last attempt exceeded the per-test timeout
	OutcomeTimeout OutcomeKind = "timeout"
	// OutcomeError means the last attempt returned an error or panicked
	OutcomeError OutcomeKind = "error"
)

// Permanent reports whether the outcome is a failure that survived every retry.
func (k OutcomeKind) Permanent() bool {
	return k == OutcomeTimeout || k == OutcomeError
}

// TestResult is the value a test body produces for one attempt.
type TestResult struct {
	// Whether the test assertion held
	Passed bool `json:"passed"`
	// Measured value (lower is better unless the test says otherwise)
	Result float64 `json:"result"`
	// Reference value the result is judged against
	Expected float64 `json:"expected"`
	// Free-form measurement details
	Details map[string]any `json:"details,omitempty"`
	// Named performance samples forwarded to the metrics collector
	Performance map[string]float64 `json:"performance,omitempty"`
}

// TestOutcome is the recorded result of a test after the retry policy settled.
type TestOutcome struct {
	Suite    string        `json:"suite"`
	Test     string        `json:"test"`
	Kind     OutcomeKind   `json:"kind"`
	Result   TestResult    `json:"result"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Key returns the "{suite}.{test}" name used for metrics.
func (o TestOutcome) Key() string {
	return o.Suite + "." + o.Test
}

// ExecutionState describes what the runner is doing right now.
type ExecutionState struct {
	IsRunning    bool      `json:"is_running"`
	CurrentSuite string    `json:"current_suite,omitempty"`
	CurrentTest  string    `json:"current_test,omitempty"`
	StartTime    time.Time `json:"start_time"`
	// Set once an abort was requested for the current run
	Cancelled bool `json:"cancelled"`
}

// ExecutionStats are counters accumulated over one top-level run.
type ExecutionStats struct {
	TotalTestsRun   int           `json:"total_tests_run"`
	AverageTestTime time.Duration `json:"average_test_time"`
	SuitesExecuted  int           `json:"suites_executed"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	Timeouts        int           `json:"timeouts"`
	Retries         int           `json:"retries"`
}

// Baselines maps category -> test -> reference value.
type Baselines map[string]map[string]float64

// Category returns the baseline for a category, or nil.
func (b Baselines) Category(name string) map[string]float64 {
	if b == nil {
		return nil
	}
	return b[name]
}
