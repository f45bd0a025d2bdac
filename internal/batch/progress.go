// Package batch coordinates sequential scraping of a question list and
// tracks per-session progress.
package batch

import (
	"sync"
	"time"

	"github.com/eeselapp/chatgpt-batch-query/internal/models"
)

// Batch statuses, in rough lifecycle order. "completed" and "error" record
// each question's outcome as it lands; a session ends in either "finished"
// or, when cancelled, "error".
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusWaiting    = "waiting"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusFinished   = "finished"
)

// session is the mutable tracking state for one batch.
type session struct {
	id              string
	total           int
	current         int
	currentQuestion string
	status          string
	done            bool
	startedAt       time.Time
	results         []models.ScrapeResult
}

// Tracker holds progress state for all live batch sessions. Sessions are
// kept for a grace period after finishing so late progress polls still get
// an answer instead of a 404.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*session
	grace    time.Duration
	now      func() time.Time
	after    func(time.Duration, func()) // schedules deferred deletion
}

// NewTracker creates a Tracker with the given post-completion grace period.
func NewTracker(grace time.Duration) *Tracker {
	return &Tracker{
		sessions: make(map[string]*session),
		grace:    grace,
		now:      time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Start registers a new session.
func (t *Tracker) Start(id string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = &session{
		id:        id,
		total:     total,
		status:    StatusStarting,
		startedAt: t.now(),
	}
}

// Update moves a session to a question index and status. current is the
// 1-based index of the question in flight.
func (t *Tracker) Update(id string, current int, question, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return
	}
	s.current = current
	s.currentQuestion = question
	s.status = status
}

// Append records a finished question's result row.
func (t *Tracker) Append(id string, r models.ScrapeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		s.results = append(s.results, r)
	}
}

// Finish marks a session terminal and schedules its removal after the grace
// period.
func (t *Tracker) Finish(id, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return
	}
	s.status = status
	s.currentQuestion = ""
	s.done = true
	t.after(t.grace, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.sessions, id)
	})
}

// Busy reports whether any session is still running. Terminality comes from
// Finish, not from the status string: a failed question marks its session
// "error" while the batch keeps going.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		if !s.done {
			return true
		}
	}
	return false
}

// Snapshot returns the progress view for one session. ok is false when the
// session is unknown (never started, or past its grace period).
func (t *Tracker) Snapshot(id string) (models.ProgressResponse, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return models.ProgressResponse{}, false
	}

	elapsed := t.now().Sub(s.startedAt)
	resp := models.ProgressResponse{
		SessionID:       s.id,
		Current:         s.current,
		Total:           s.total,
		ElapsedMs:       elapsed.Milliseconds(),
		CurrentQuestion: s.currentQuestion,
		Status:          s.status,
		Done:            s.done,
		Results:         append([]models.ScrapeResult(nil), s.results...),
	}
	if s.total > 0 {
		resp.ProgressPercent = float64(s.current) / float64(s.total) * 100
	}
	// Naive linear estimate from average per-question time so far.
	if s.current > 0 && s.current < s.total {
		perQuestion := elapsed / time.Duration(s.current)
		resp.EstimatedRemainingMs = (perQuestion * time.Duration(s.total-s.current)).Milliseconds()
	}
	return resp, true
}
