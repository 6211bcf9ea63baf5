package runner

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConcurrentRun is returned when a run is started while another is active.
	ErrConcurrentRun = errors.New("a test run is already active")
	// ErrAborted is returned when a run stopped because AbortTests was called.
	ErrAborted = errors.New("test run aborted")
	// ErrUnknownSuite is returned for suite names that were never registered.
	ErrUnknownSuite = errors.New("unknown suite")
	// ErrUnknownTest is returned for test names a suite does not declare.
	ErrUnknownTest = errors.New("unknown test")
)

// TestTimeoutError is returned when one attempt exceeds the configured timeout.
type TestTimeoutError struct {
	Suite   string
	Test    string
	Timeout time.Duration
}

func (e *TestTimeoutError) Error() string {
	return fmt.Sprintf("test %s.%s timed out after %s", e.Suite, e.Test, e.Timeout)
}

// SuiteExecutionError wraps the error of a test that failed after every retry.
type SuiteExecutionError struct {
	Suite string
	Test  string
	Err   error
}

func (e *SuiteExecutionError) Error() string {
	return fmt.Sprintf("suite %s failed at test %s: %v", e.Suite, e.Test, e.Err)
}

func (e *SuiteExecutionError) Unwrap() error {
	return e.Err
}

// PanicError is the error recorded when a test body panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("test panicked: %v", e.Value)
}
