// Package output renders command results as a table, JSON, YAML or bare
// values.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatValue Format = "value"
)

// Formats lists the accepted --format values.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatValue}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q: must be one of table, json, yaml, value", s)
}

// Printer writes records in a fixed format.
type Printer struct {
	Format  Format
	Flatten bool
}

// PrintList writes records as a list (a JSON array or YAML sequence).
func (p Printer) PrintList(w io.Writer, records []*Record) error {
	records = p.prepare(records)
	switch p.Format {
	case FormatJSON:
		return writeJSON(w, records)
	case FormatYAML:
		return writeYAML(w, records)
	case FormatValue:
		return writeValues(w, records)
	}
	return writeTable(w, records)
}

// PrintRecord writes a single record (a JSON or YAML mapping).
func (p Printer) PrintRecord(w io.Writer, record *Record) error {
	records := p.prepare([]*Record{record})
	switch p.Format {
	case FormatJSON:
		return writeJSON(w, records[0])
	case FormatYAML:
		return writeYAML(w, records[0])
	case FormatValue:
		return writeValues(w, records)
	}
	return writeTable(w, records)
}

func (p Printer) prepare(records []*Record) []*Record {
	if !p.Flatten {
		return records
	}
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.Flatten()
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func writeValues(w io.Writer, records []*Record) error {
	header := columns(records)
	for _, r := range records {
		cells := make([]string, len(header))
		for i, k := range header {
			v, _ := r.Get(k)
			cells[i] = Cell(v)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, " ")); err != nil {
			return err
		}
	}
	return nil
}

// writeTable draws a bordered table. Numeric columns are right aligned.
func writeTable(w io.Writer, records []*Record) error {
	header := columns(records)
	if len(header) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)

	numeric := make([]bool, len(header))
	for i := range numeric {
		numeric[i] = true
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, k := range header {
			v, ok := rec.Get(k)
			row[i] = Cell(v)
			if ok && v != nil && !isNumber(v) {
				numeric[i] = false
			}
		}
		table.Append(row)
	}

	alignment := make([]int, len(header))
	for i, n := range numeric {
		alignment[i] = tablewriter.ALIGN_LEFT
		if n {
			alignment[i] = tablewriter.ALIGN_RIGHT
		}
	}
	table.SetColumnAlignment(alignment)

	table.Render()
	return nil
}

func columns(records []*Record) []string {
	var header []string
	seen := map[string]bool{}
	for _, r := range records {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	return header
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int64, float64:
		return true
	}
	return false
}
