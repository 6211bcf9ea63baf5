package cli

// This file contains Git integration utilities for retrieving
// repository information.

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

func gitOutput(args ...string) (string, error) {
	output, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (a *App) getGitInfo() (commit, branch, repo string, err error) {
	// Get current commit hash
	commit, err = gitOutput("rev-parse", "HEAD")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get git commit: %w", err)
	}

	// Get current branch
	branch, err = gitOutput("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get git branch: %w", err)
	}

	// Repository name is the top-level directory name
	toplevel, err := gitOutput("rev-parse", "--show-toplevel")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get git toplevel: %w", err)
	}

	return commit, branch, filepath.Base(toplevel), nil
}
