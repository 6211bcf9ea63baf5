package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/perfgo/perfsuite/analysis"
)

// Export formats.
const (
	ExportJSON     = "json"
	ExportCSV      = "csv"
	ExportHTML     = "html"
	ExportMarkdown = "markdown"
)

// ExportFormats lists the supported export formats.
func ExportFormats() []string {
	return []string{ExportJSON, ExportCSV, ExportHTML, ExportMarkdown}
}

// UnsupportedExportFormatError is returned for an unknown export format.
type UnsupportedExportFormatError struct {
	Format string
}

func (e *UnsupportedExportFormatError) Error() string {
	return fmt.Sprintf("unsupported export format: %q", e.Format)
}

// ExportResults generates a report with the named template and encodes it.
// The format is checked before anything is generated.
func (g *Generator) ExportResults(ctx context.Context, a *analysis.Analysis, format, template string) ([]byte, error) {
	switch format {
	case ExportJSON, ExportCSV, ExportHTML, ExportMarkdown:
	default:
		return nil, &UnsupportedExportFormatError{Format: format}
	}

	r := g.GenerateReport(ctx, a, template)
	var buf bytes.Buffer
	if err := r.Write(&buf, format, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes r to w. The csv format lists every test of a's session.
func (r *Report) Write(w io.Writer, format string, a *analysis.Analysis) error {
	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	case ExportCSV:
		return writeCSV(w, detailedResults(a.Session))
	case ExportHTML:
		if err := htmlReport.Execute(w, r); err != nil {
			return fmt.Errorf("failed to render html report: %w", err)
		}
		return nil
	case ExportMarkdown:
		return writeMarkdown(w, r)
	default:
		return &UnsupportedExportFormatError{Format: format}
	}
}

func writeCSV(w io.Writer, d DetailedResults) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Category", "Test", "Status", "Result", "Expected", "Deviation"}); err != nil {
		return err
	}
	for _, c := range d.Results {
		for _, t := range c.Tests {
			row := []string{
				c.Category,
				t.Test,
				t.Status,
				formatFloat(t.Result),
				formatFloat(t.Expected),
				formatFloat(t.Deviation),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeMarkdown(w io.Writer, r *Report) error {
	var b strings.Builder
	b.WriteString("# Performance Test Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", r.Metadata.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Overall Result:** %s\n", r.Metadata.OverallResult)
	fmt.Fprintf(&b, "**Total Tests:** %d | **Passed:** %d\n\n", r.Metadata.TotalTests, r.Metadata.PassedTests)
	if r.Metadata.Command != "" {
		fmt.Fprintf(&b, "Reproduce with `%s`\n\n", r.Metadata.Command)
	}

	for _, s := range r.Sections {
		data, err := json.MarshalIndent(s.Data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode section %s: %w", s.Name, err)
		}
		fmt.Fprintf(&b, "## %s\n\n```json\n%s\n```\n\n", sectionHeading(s), data)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sectionHeading(s Section) string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		return string(data), err
	},
	"lower":   strings.ToLower,
	"heading": sectionHeading,
	"rfc3339": func(t time.Time) string { return t.Format(time.RFC3339) },
}

var htmlReport = template.Must(template.New("report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Performance Test Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background: #f5f5f5; padding: 20px; border-radius: 5px; }
        .section { margin: 20px 0; }
        .passed { color: green; font-weight: bold; }
        .failed { color: red; font-weight: bold; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Performance Test Report</h1>
        <p>Generated: {{rfc3339 .Metadata.GeneratedAt}}</p>
        <p>Overall Result: <span class="{{lower .Metadata.OverallResult}}">{{.Metadata.OverallResult}}</span></p>
        <p>Total Tests: {{.Metadata.TotalTests}} | Passed: {{.Metadata.PassedTests}}</p>
        {{- if .Metadata.Command}}
        <p>Reproduce: <code>{{.Metadata.Command}}</code></p>
        {{- end}}
    </div>
{{- range .Sections}}
    <div class="section">
        <h2>{{heading .}}</h2>
        <pre>{{json .Data}}</pre>
    </div>
{{- end}}
</body>
</html>
`))

var condensedReport = template.Must(template.New("condensed").Parse(`<div class="condensed-report">
    <h2>Performance Summary</h2>
    <p>Status: {{.Metadata.OverallResult}}</p>
    <p>Tests: {{.Metadata.PassedTests}}/{{.Metadata.TotalTests}}</p>
</div>
`))

var technicalReport = template.Must(template.New("technical").Funcs(funcs).Parse(`<div class="technical-report">
    <h2>Technical Analysis</h2>
    <pre>{{json .Sections}}</pre>
</div>
`))

func renderFormatted(r *Report) (string, error) {
	var tmpl *template.Template
	switch r.Format {
	case FormatDetailed:
		tmpl = htmlReport
	case FormatCondensed:
		tmpl = condensedReport
	case FormatTechnical:
		tmpl = technicalReport
	default:
		return "", nil
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}
