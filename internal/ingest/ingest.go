// Package ingest parses uploaded question lists out of plain text and CSV.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// headerKeywords are first-cell values treated as a column header rather
// than a question.
var headerKeywords = map[string]struct{}{
	"question":  {},
	"questions": {},
	"query":     {},
	"queries":   {},
	"text":      {},
	"prompt":    {},
	"input":     {},
}

// FromText splits raw text into one question per non-empty line.
func FromText(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(strings.TrimSuffix(line, "\r")); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// FromCSV reads questions from the first column of a CSV stream. A first row
// whose first cell is a known header keyword is skipped. Rows with ragged
// field counts are tolerated; only the first column matters.
func FromCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []string
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		cell := strings.TrimSpace(record[0])
		if first {
			first = false
			if _, isHeader := headerKeywords[strings.ToLower(cell)]; isHeader {
				continue
			}
		}
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out, nil
}
