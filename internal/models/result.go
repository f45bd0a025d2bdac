// Package models defines API request, response, and result types.
package models

// ScrapeResult is one question/answer/sources triple. On failure the answer
// field carries an "Error: ..." message and Sources is empty. Results are
// never mutated after creation.
type ScrapeResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Sources  string `json:"sources"` // comma-joined URL list
}

// ErrorResult builds the synthetic result recorded for a failed question.
func ErrorResult(question string, err error) ScrapeResult {
	return ScrapeResult{
		Question: question,
		Answer:   "Error: " + err.Error(),
		Sources:  "",
	}
}

// IsError reports whether the result records a per-question failure.
func (r ScrapeResult) IsError() bool {
	return len(r.Answer) >= 6 && r.Answer[:6] == "Error:"
}
