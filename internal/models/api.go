package models

// StartBatchRequest starts a batch scrape. Questions may be given directly
// or as raw text to be split on newlines.
type StartBatchRequest struct {
	Questions []string `json:"questions,omitempty" doc:"Ordered list of questions"`
	Text      string   `json:"text,omitempty" doc:"Raw text, one question per line"`
}

// StartBatchResponse acknowledges a started batch.
type StartBatchResponse struct {
	SessionID string `json:"sessionId"`
	Total     int    `json:"total"`
}

// ProgressResponse is the polled progress snapshot for one batch session.
type ProgressResponse struct {
	SessionID            string         `json:"sessionId"`
	Current              int            `json:"current"`
	Total                int            `json:"total"`
	ProgressPercent      float64        `json:"progressPercent"`
	ElapsedMs            int64          `json:"elapsedMs"`
	EstimatedRemainingMs int64          `json:"estimatedRemainingMs"`
	CurrentQuestion      string         `json:"currentQuestion,omitempty"`
	Status               string         `json:"status"`
	Done                 bool           `json:"done"`
	Results              []ScrapeResult `json:"results,omitempty"`
}

// LoginStateResponse reports the inferred login state.
type LoginStateResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Method   string `json:"method"` // "heuristic" or "live"
}

// LoginStartResponse acknowledges an initiated login flow.
type LoginStartResponse struct {
	AlreadyLoggedIn bool   `json:"alreadyLoggedIn"`
	Message         string `json:"message"`
}

// ResetResponse acknowledges a session reset.
type ResetResponse struct {
	Message string `json:"message"`
}

// UploadResponse returns the questions parsed from an uploaded file.
type UploadResponse struct {
	Questions []string `json:"questions"`
	Count     int      `json:"count"`
}
