// Package csvimport parses inventory CSV uploads into rows for the import pipeline.
package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matanuska/fleetsync/services"
	"github.com/matanuska/fleetsync/services/normalize"
)

// Format selects how the first CSV line is interpreted
type Format string

const (
	FormatAuto       Format = "auto"
	FormatPositional Format = "positional"
	FormatHeader     Format = "header"
)

// HeaderlessPrefixes are first-line prefixes of exports known to carry no header row
var HeaderlessPrefixes = []string{"SCRAPPED TYRES", "VEHICLE STORE", "USED TYRES"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFormat validates a caller-supplied format. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatPositional:
		return FormatPositional, nil
	case FormatHeader:
		return FormatHeader, nil
	default:
		return "", services.Validationf("unknown CSV format %q: use auto, positional or header", s)
	}
}

// Result is a parsed upload
type Result struct {
	Format Format
	Header []string
	// Rows are []string for positional data and map[string]any for header data.
	Rows []any
}

// Parse reads csvData and returns rows in the chosen format.
// known holds the folded header names that mark a header row in auto mode.
func Parse(csvData string, format Format, known map[string]bool) (*Result, error) {
	data := bytes.TrimPrefix([]byte(csvData), utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, services.ErrEmptyCSV
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Validationf("unparseable CSV: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, services.ErrEmptyCSV
	}

	if format == "" || format == FormatAuto {
		format = Detect(records[0], known)
	}

	res := &Result{Format: format}
	switch format {
	case FormatPositional:
		for _, rec := range records {
			res.Rows = append(res.Rows, rec)
		}
	case FormatHeader:
		res.Header = records[0]
		for _, rec := range records[1:] {
			row := make(map[string]any, len(res.Header))
			for i, name := range res.Header {
				if strings.TrimSpace(name) == "" || i >= len(rec) {
					continue
				}
				row[name] = rec[i]
			}
			res.Rows = append(res.Rows, row)
		}
	default:
		return nil, fmt.Errorf("unsupported CSV format %q", format)
	}

	if len(res.Rows) == 0 {
		return nil, services.Validationf("CSV contains a header row but no data rows")
	}
	return res, nil
}

// Detect picks a format from the first record. Known header-less prefixes force
// positional; otherwise the row is a header only if one of its cells is a known
// header name. Anything else is treated as data.
func Detect(first []string, known map[string]bool) Format {
	line := strings.ToUpper(strings.TrimSpace(strings.Join(first, ",")))
	for _, p := range HeaderlessPrefixes {
		if strings.HasPrefix(line, p) {
			return FormatPositional
		}
	}
	for _, cell := range first {
		if known[normalize.HeaderKey(cell)] {
			return FormatHeader
		}
	}
	return FormatPositional
}
