package report

import (
	"context"
	"runtime"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/perfgo/perfsuite/analysis"
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/model"
	"github.com/rs/zerolog"
)

// Format is the presentation style a template renders into.
type Format string

const (
	FormatDetailed  Format = "detailed"
	FormatCondensed Format = "condensed"
	FormatTechnical Format = "technical"
)

// Section keys.
const (
	SectionOverview          = "overview"
	SectionDetailedResults   = "detailed_results"
	SectionAnalysis          = "analysis"
	SectionRecommendations   = "recommendations"
	SectionHistory           = "history"
	SectionKeyMetrics        = "key_metrics"
	SectionCriticalIssues    = "critical_issues"
	SectionRawData           = "raw_data"
	SectionStatistics        = "statistics"
	SectionCorrelations      = "correlations"
	SectionTechnicalAnalysis = "technical_analysis"
)

// Template names an ordered list of sections and the format they render into.
type Template struct {
	Name     string
	Sections []string
	Format   Format
}

// DefaultTemplate is used when a template name is unknown.
const DefaultTemplate = "comprehensive"

var templates = map[string]Template{
	"comprehensive": {
		Name:     "comprehensive",
		Sections: []string{SectionOverview, SectionDetailedResults, SectionAnalysis, SectionRecommendations, SectionHistory},
		Format:   FormatDetailed,
	},
	"summary": {
		Name:     "summary",
		Sections: []string{SectionOverview, SectionKeyMetrics, SectionCriticalIssues},
		Format:   FormatCondensed,
	},
	"technical": {
		Name:     "technical",
		Sections: []string{SectionRawData, SectionStatistics, SectionCorrelations, SectionTechnicalAnalysis},
		Format:   FormatTechnical,
	},
}

// LookupTemplate returns the named template, falling back to comprehensive.
func LookupTemplate(name string) Template {
	if t, ok := templates[name]; ok {
		return t
	}
	return templates[DefaultTemplate]
}

// TemplateNames lists the known template names.
func TemplateNames() []string {
	return []string{"comprehensive", "summary", "technical"}
}

// Environment describes where the report was generated.
type Environment struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUs      int    `json:"cpus"`
	GoVersion string `json:"go_version"`
	Device    string `json:"device,omitempty"`
}

// Metadata heads every report.
type Metadata struct {
	GeneratedAt   time.Time   `json:"generated_at"`
	OverallResult string      `json:"overall_result"`
	TotalTests    int         `json:"total_tests"`
	PassedTests   int         `json:"passed_tests"`
	ToolVersion   string      `json:"tool_version"`
	Environment   Environment `json:"environment"`
	SessionID     string      `json:"session_id,omitempty"`
	Template      string      `json:"template"`
	// Shell-quoted command line that reproduces the run
	Command string `json:"command,omitempty"`
}

// Section is one rendered report section.
type Section struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Data  any    `json:"data"`
}

// SectionError replaces the data of an unknown section.
type SectionError struct {
	Error string `json:"error"`
}

// Report is the structured result of GenerateReport. It is not cached.
type Report struct {
	Metadata Metadata  `json:"metadata"`
	Format   Format    `json:"format"`
	Sections []Section `json:"sections"`
	// HTML rendering matching Format
	FormattedOutput string `json:"formatted_output,omitempty"`
}

// Section returns the named section.
func (r *Report) Section(name string) (*Section, bool) {
	for i := range r.Sections {
		if r.Sections[i].Name == name {
			return &r.Sections[i], true
		}
	}
	return nil, false
}

// HistorySource lists stored runs, newest first.
type HistorySource interface {
	List(ctx context.Context, limit int) ([]*model.History, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithHistory sets the source for the history section.
func WithHistory(h HistorySource) Option {
	return func(g *Generator) { g.history = h }
}

// WithCollector sets the collector dumped into raw_data.
func WithCollector(c *metrics.Collector) Option {
	return func(g *Generator) { g.collector = c }
}

// WithVersion sets the tool version written into metadata.
func WithVersion(v string) Option {
	return func(g *Generator) { g.version = v }
}

// WithCommand records the command line that produced the run.
func WithCommand(args []string) Option {
	return func(g *Generator) { g.command = args }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator builds reports from analyses.
type Generator struct {
	logger    zerolog.Logger
	history   HistorySource
	collector *metrics.Collector
	version   string
	command   []string
	now       func() time.Time
}

// New creates a report generator.
func New(logger zerolog.Logger, opts ...Option) *Generator {
	g := &Generator{
		logger:  logger,
		version: "dev",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateReport builds a report from a using the named template.
// Unknown templates fall back to comprehensive.
func (g *Generator) GenerateReport(ctx context.Context, a *analysis.Analysis, template string) *Report {
	tmpl := LookupTemplate(template)

	r := &Report{
		Metadata: g.metadata(a, tmpl.Name),
		Format:   tmpl.Format,
	}
	for _, name := range tmpl.Sections {
		r.Sections = append(r.Sections, g.GenerateSection(ctx, name, a))
	}

	out, err := renderFormatted(r)
	if err != nil {
		g.logger.Warn().Err(err).Str("format", string(r.Format)).Msg("Failed to render formatted output")
	}
	r.FormattedOutput = out

	g.logger.Debug().
		Str("template", tmpl.Name).
		Int("sections", len(r.Sections)).
		Msg("Generated report")
	return r
}

func (g *Generator) metadata(a *analysis.Analysis, template string) Metadata {
	m := Metadata{
		GeneratedAt:   g.now(),
		OverallResult: status(a.OverallPassed),
		TotalTests:    a.Session.TotalTests(),
		PassedTests:   a.Session.PassedTests(),
		ToolVersion:   g.version,
		Environment: Environment{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUs:      runtime.NumCPU(),
			GoVersion: runtime.Version(),
			Device:    a.Session.Device,
		},
		SessionID: a.Session.ID,
		Template:  template,
	}
	if len(g.command) > 0 {
		m.Command = shellescape.QuoteCommand(g.command)
	}
	return m
}

func status(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}
