// Package config loads perfsuite settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/perfgo/perfsuite/history"
	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/report"
	"github.com/perfgo/perfsuite/runner"
	"github.com/perfgo/perfsuite/simulator"
	"github.com/perfgo/perfsuite/suites"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the state directory.
const FileName = "config.yaml"

// Config is the complete perfsuite configuration.
type Config struct {
	Runner    runner.Config   `yaml:"runner"`
	Simulator Simulator       `yaml:"simulator"`
	Baselines model.Baselines `yaml:"baselines"`
	History   History         `yaml:"history"`
	Report    Report          `yaml:"report"`
}

// Simulator selects the simulated device.
type Simulator struct {
	// Device profile name, empty for the catalog default
	Device string `yaml:"device"`
	// Optional YAML device catalog merged over the built-in devices
	Catalog string `yaml:"catalog"`
}

// History selects where runs are recorded.
type History struct {
	// dir or sqlite
	Backend string `yaml:"backend"`
	// State directory, empty for the repository's .perfsuite
	Path string `yaml:"path"`
}

// Report selects how results are rendered.
type Report struct {
	Template string `yaml:"template"`
	Format   string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Runner:    runner.DefaultConfig(),
		Baselines: suites.DefaultBaselines(),
		History:   History{Backend: history.BackendDir},
		Report:    Report{Template: report.DefaultTemplate, Format: report.ExportJSON},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their default value;
// a category under baselines replaces that category's defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load for a path that may not exist, in which case the defaults are returned.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks every section and reports the first invalid field.
func (c Config) Validate() error {
	if err := c.Runner.Validate(); err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	switch c.History.Backend {
	case history.BackendDir, history.BackendSQLite:
	default:
		return fmt.Errorf("history.backend: unknown backend %q", c.History.Backend)
	}
	if !slices.Contains(report.TemplateNames(), c.Report.Template) {
		return fmt.Errorf("report.template: unknown template %q", c.Report.Template)
	}
	if !slices.Contains(report.ExportFormats(), c.Report.Format) {
		return fmt.Errorf("report.format: %w", &report.UnsupportedExportFormatError{Format: c.Report.Format})
	}
	for category, tests := range c.Baselines {
		if len(tests) == 0 {
			return fmt.Errorf("baselines.%s: no tests", category)
		}
	}
	return nil
}

// Catalog returns the built-in device catalog with the configured catalog file merged in.
func (c Config) Catalog() (*simulator.Catalog, error) {
	catalog, err := simulator.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if c.Simulator.Catalog == "" {
		return catalog, nil
	}

	f, err := os.Open(c.Simulator.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to open device catalog: %w", err)
	}
	defer f.Close()

	extra, err := simulator.LoadCatalog(f)
	if err != nil {
		return nil, err
	}
	if err := catalog.Merge(extra); err != nil {
		return nil, fmt.Errorf("failed to merge device catalog: %w", err)
	}
	return catalog, nil
}
