package model

import (
	"time"

	"github.com/perfgo/perfsuite/metrics"
)

// History represents a single recorded perfsuite run.
type History struct {
	// Unique ID for this run (same as the session ID)
	ID string `json:"id"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Working directory where the command was run
	WorkDir string `json:"workdir"`
	// Whether every category passed
	Passed bool `json:"passed"`
	// Duration of the run
	Duration time.Duration `json:"duration"`
	// Git information
	Git *Git `json:"git,omitempty"`
	// Execution environment
	Target *Target `json:"target,omitempty"`
	// Results of the run
	Session *Session `json:"session,omitempty"`
	// Samples recorded by the metrics collector
	Metrics *metrics.Dump `json:"metrics,omitempty"`
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
	// Repository name
	Repo string `json:"repo,omitempty"`
}

// Target contains information about the execution environment
type Target struct {
	// Operating system of the execution environment
	OS string `json:"os,omitempty"`
	// CPU architecture of the execution environment
	Arch string `json:"arch,omitempty"`
	// Number of logical CPUs
	CPUs int `json:"cpus,omitempty"`
	// Simulated device profile name
	Device string `json:"device,omitempty"`
}

// ShortID returns the first 8 characters of the ID.
func (h *History) ShortID() string {
	if len(h.ID) > 8 {
		return h.ID[:8]
	}
	return h.ID
}
