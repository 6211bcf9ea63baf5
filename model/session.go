package model

import (
	"fmt"
	"time"
)

// SessionStatus is the terminal (or current) state of a run.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// Session is the result set of one top-level run, grouped by category (suite).
type Session struct {
	// Unique ID for this run (UUID)
	ID string `json:"id"`
	// Time the run started
	StartTime time.Time `json:"start_time"`
	// Time the run ended
	EndTime time.Time `json:"end_time"`
	// Final status
	Status SessionStatus `json:"status"`
	// Device profile active while the run executed
	Device string `json:"device,omitempty"`
	// Results per category, in execution order
	Categories []CategoryResult `json:"categories"`
	// Execution counters captured at the end of the run
	Stats ExecutionStats `json:"stats"`
}

// CategoryResult groups the outcomes of one suite.
type CategoryResult struct {
	Name    string     `json:"name"`
	Passed  bool       `json:"passed"`
	Summary string     `json:"summary"`
	Tests   []TestCase `json:"tests"`
}

// TestCase is a named test result inside a category.
type TestCase struct {
	Name string `json:"name"`
	// How the test ended, empty for cases not recorded through AddOutcome
	Outcome OutcomeKind `json:"outcome,omitempty"`
	TestResult
}

// Duration returns the wall-clock duration of the session.
func (s *Session) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Category looks up a category by name.
func (s *Session) Category(name string) (*CategoryResult, bool) {
	for i := range s.Categories {
		if s.Categories[i].Name == name {
			return &s.Categories[i], true
		}
	}
	return nil, false
}

// TotalTests counts every test case in the session.
func (s *Session) TotalTests() int {
	total := 0
	for _, c := range s.Categories {
		total += len(c.Tests)
	}
	return total
}

// PassedTests counts the passing test cases in the session.
func (s *Session) PassedTests() int {
	passed := 0
	for _, c := range s.Categories {
		for _, t := range c.Tests {
			if t.Passed {
				passed++
			}
		}
	}
	return passed
}

// PassRate returns passed/total*100, or 0 for an empty session.
func (s *Session) PassRate() float64 {
	total := s.TotalTests()
	if total == 0 {
		return 0
	}
	return float64(s.PassedTests()) / float64(total) * 100
}

// AddOutcome records an outcome under its suite's category, creating the category on first use.
func (s *Session) AddOutcome(o TestOutcome) {
	cat, ok := s.Category(o.Suite)
	if !ok {
		s.Categories = append(s.Categories, CategoryResult{Name: o.Suite, Passed: true})
		cat = &s.Categories[len(s.Categories)-1]
	}

	tr := o.Result
	if o.Kind != OutcomePass {
		tr.Passed = false
	}
	if o.Error != "" {
		if tr.Details == nil {
			tr.Details = map[string]any{}
		}
		tr.Details["error"] = o.Error
	}
	cat.Tests = append(cat.Tests, TestCase{Name: o.Test, Outcome: o.Kind, TestResult: tr})
	cat.Passed = cat.Passed && tr.Passed
	cat.Summary = summarize(cat)
}

// PassRate returns the category pass rate in percent.
func (c *CategoryResult) PassRate() float64 {
	if len(c.Tests) == 0 {
		return 0
	}
	passed := 0
	for _, t := range c.Tests {
		if t.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(c.Tests)) * 100
}

// Values returns the numeric results of the category in test order.
func (c *CategoryResult) Values() []float64 {
	values := make([]float64, 0, len(c.Tests))
	for _, t := range c.Tests {
		values = append(values, t.Result)
	}
	return values
}

// Test looks up a test case by name.
func (c *CategoryResult) Test(name string) (*TestCase, bool) {
	for i := range c.Tests {
		if c.Tests[i].Name == name {
			return &c.Tests[i], true
		}
	}
	return nil, false
}

func summarize(c *CategoryResult) string {
	passed := 0
	for _, t := range c.Tests {
		if t.Passed {
			passed++
		}
	}
	return fmt.Sprintf("%s tests: %d/%d passed", c.Name, passed, len(c.Tests))
}
