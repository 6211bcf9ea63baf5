package runner

import (
	"fmt"
	"time"
)

// Config controls how tests are scheduled and retried.
type Config struct {
	// Per-attempt timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Total attempts per test (1 try plus Retries-1 retries)
	Retries int `yaml:"retries" json:"retries"`
	// Wait between attempts
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// Dispatch the tests of a suite in concurrent chunks
	Concurrent bool `yaml:"concurrent" json:"concurrent"`
	// Chunk size in concurrent mode
	ParallelLimit int `yaml:"parallel_limit" json:"parallel_limit"`
	// Record permanent test failures and keep going instead of aborting the run
	ContinueOnError bool `yaml:"continue_on_error" json:"continue_on_error"`
}

// DefaultConfig returns the default scheduling configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		Retries:       3,
		RetryDelay:    time.Second,
		Concurrent:    false,
		ParallelLimit: 4,
	}
}

// Validate checks the configuration for values the runner cannot work with.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay)
	}
	if c.ParallelLimit < 1 {
		return fmt.Errorf("parallel_limit must be at least 1, got %d", c.ParallelLimit)
	}
	return nil
}

// ConfigUpdate is a partial configuration change. Nil fields are left unchanged.
type ConfigUpdate struct {
	Timeout       *time.Duration
	Retries       *int
	Concurrent    *bool
	ParallelLimit *int
}

func (u ConfigUpdate) apply(c Config) Config {
	if u.Timeout != nil {
		c.Timeout = *u.Timeout
	}
	if u.Retries != nil {
		c.Retries = *u.Retries
	}
	if u.Concurrent != nil {
		c.Concurrent = *u.Concurrent
	}
	if u.ParallelLimit != nil {
		c.ParallelLimit = *u.ParallelLimit
	}
	return c
}
