package metrics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export formats understood by ExportMetrics and WriteMetrics.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatPprof = "pprof"
)

// UnsupportedFormatError is returned by WriteMetrics for unknown formats.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported metrics export format %q", e.Format)
}

// ExportMetrics encodes the collected samples.
// "json" yields a pretty-printed string, "csv" a string with one header row,
// "pprof" the gzipped profile bytes; any other format yields the Dump itself.
func (c *Collector) ExportMetrics(format string) (any, error) {
	switch format {
	case FormatJSON, FormatCSV, FormatPprof:
		var buf bytes.Buffer
		if err := c.WriteMetrics(&buf, format); err != nil {
			return nil, err
		}
		if format == FormatPprof {
			return buf.Bytes(), nil
		}
		return buf.String(), nil
	default:
		return c.Dump(), nil
	}
}

// WriteMetrics writes the collected samples to w in one of the encoded formats.
func (c *Collector) WriteMetrics(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(c.Dump(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		return nil
	case FormatCSV:
		return c.writeCSV(w)
	case FormatPprof:
		if err := c.Profile().Write(w); err != nil {
			return fmt.Errorf("failed to write profile: %w", err)
		}
		return nil
	default:
		return &UnsupportedFormatError{Format: format}
	}
}

func (c *Collector) writeCSV(w io.Writer) error {
	dump := c.Dump()
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "metric", "duration", "detail"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, name := range c.Names() {
		for _, e := range dump.Metrics[name] {
			detail := ""
			if len(e.Detail) > 0 {
				data, err := json.Marshal(e.Detail)
				if err != nil {
					return fmt.Errorf("failed to marshal detail of %s: %w", name, err)
				}
				detail = string(data)
			}
			row := []string{
				e.Timestamp.Format(time.RFC3339Nano),
				name,
				strconv.FormatFloat(float64(e.Duration)/float64(time.Millisecond), 'f', -1, 64),
				detail,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
