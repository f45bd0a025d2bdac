// Package export renders batch results as downloadable CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/eeselapp/chatgpt-batch-query/internal/models"
)

// csvHeader is the fixed column layout of an exported batch.
var csvHeader = []string{"Question", "Answer", "Sources"}

// WriteCSV streams results as CSV with a header row. Quoting and embedded
// newlines are handled by encoding/csv.
func WriteCSV(w io.Writer, results []models.ScrapeResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write([]string{r.Question, r.Answer, r.Sources}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
