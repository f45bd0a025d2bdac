package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeScraper answers from a script keyed by question text.
type fakeScraper struct {
	fail  map[string]error
	calls []string
}

func (f *fakeScraper) ScrapeOne(_ context.Context, q string) (models.ScrapeResult, error) {
	f.calls = append(f.calls, q)
	if err, ok := f.fail[q]; ok {
		return models.ScrapeResult{}, err
	}
	return models.ScrapeResult{Question: q, Answer: "answer to " + q, Sources: "https://example.org"}, nil
}

func newTestCoordinator(scraper Scraper, loggedIn bool, closed *int) (*Coordinator, *Tracker) {
	cfg := &config.Config{JitterMin: 5 * time.Second, JitterMax: 10 * time.Second, ProgressGrace: time.Minute}
	tracker := NewTracker(cfg.ProgressGrace)
	tracker.after = func(time.Duration, func()) {} // no deferred deletion in tests
	c := NewCoordinator(cfg, tracker, scraper, nil,
		func(context.Context) bool { return loggedIn },
		func() {
			if closed != nil {
				*closed++
			}
		},
		testLogger(),
	)
	c.sleep = func(time.Duration) {}
	return c, tracker
}

func TestRunProducesOneRowPerQuestionInOrder(t *testing.T) {
	questions := []string{"q1", "q2", "q3"}
	closed := 0
	c, tracker := newTestCoordinator(&fakeScraper{}, true, &closed)

	results, err := c.Run(context.Background(), "s1", questions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(questions) {
		t.Fatalf("results = %d rows, want %d", len(results), len(questions))
	}
	for i, q := range questions {
		if results[i].Question != q {
			t.Errorf("row %d question = %q, want %q", i, results[i].Question, q)
		}
	}
	if closed != 1 {
		t.Errorf("browser closes = %d, want 1", closed)
	}

	snap, ok := tracker.Snapshot("s1")
	if !ok {
		t.Fatal("session should still be visible within grace period")
	}
	if snap.Status != StatusFinished {
		t.Errorf("status = %q, want %q", snap.Status, StatusFinished)
	}
	if len(snap.Results) != len(questions) {
		t.Errorf("tracked results = %d, want %d", len(snap.Results), len(questions))
	}
}

func TestRunContinuesPastFailedQuestion(t *testing.T) {
	scraper := &fakeScraper{fail: map[string]error{"q2": errors.New("page exploded")}}
	c, _ := newTestCoordinator(scraper, true, nil)

	results, err := c.Run(context.Background(), "s1", []string{"q1", "q2", "q3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d rows, want 3", len(results))
	}
	if results[0].IsError() {
		t.Error("q1 should have succeeded")
	}
	if !results[1].IsError() {
		t.Error("q2 should be an error row")
	}
	if !strings.Contains(results[1].Answer, "page exploded") {
		t.Errorf("error row should carry the failure reason, got %q", results[1].Answer)
	}
	if results[2].IsError() {
		t.Error("q3 should have run despite q2 failing")
	}
	if len(scraper.calls) != 3 {
		t.Errorf("scraper calls = %d, want 3 (batch must continue)", len(scraper.calls))
	}
}

// recordingProgress keeps the full lifecycle transition sequence.
type recordingProgress struct {
	statuses []string
}

func (r *recordingProgress) Start(id string, total int) { r.statuses = append(r.statuses, "start") }
func (r *recordingProgress) Update(id string, current int, question, status string) {
	r.statuses = append(r.statuses, status)
}
func (r *recordingProgress) Append(id string, res models.ScrapeResult) {}
func (r *recordingProgress) Finish(id, status string)                  { r.statuses = append(r.statuses, "finish:"+status) }

// Every question's outcome is reported the moment it lands: "completed"
// after a success, "error" after a failure, before any inter-question pause.
func TestRunReportsPerQuestionOutcome(t *testing.T) {
	cfg := &config.Config{JitterMin: time.Second, JitterMax: 2 * time.Second}
	scraper := &fakeScraper{fail: map[string]error{"q2": errors.New("page exploded")}}
	progress := &recordingProgress{}
	c := NewCoordinator(cfg, progress, scraper, nil,
		func(context.Context) bool { return true }, nil, testLogger())
	c.sleep = func(time.Duration) {}

	if _, err := c.Run(context.Background(), "s1", []string{"q1", "q2", "q3"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"start",
		StatusProcessing, StatusCompleted, StatusWaiting,
		StatusProcessing, StatusError, StatusWaiting,
		StatusProcessing, StatusCompleted,
		StatusCompleted,
		"finish:" + StatusFinished,
	}
	if len(progress.statuses) != len(want) {
		t.Fatalf("transitions = %v, want %v", progress.statuses, want)
	}
	for i := range want {
		if progress.statuses[i] != want[i] {
			t.Fatalf("transition %d = %q, want %q (full: %v)", i, progress.statuses[i], want[i], progress.statuses)
		}
	}
}

// A failed question marks its session "error" without ending it; the batch
// stays busy until Finish.
func TestBusySurvivesPerQuestionError(t *testing.T) {
	tracker := NewTracker(time.Minute)
	tracker.after = func(time.Duration, func()) {}
	tracker.Start("s1", 2)
	tracker.Update("s1", 1, "q1", StatusError)
	if !tracker.Busy() {
		t.Error("session with a failed question should still be busy")
	}
	tracker.Finish("s1", StatusFinished)
	if tracker.Busy() {
		t.Error("finished session should not be busy")
	}
}

func TestRunFailsFastWhenNotLoggedIn(t *testing.T) {
	scraper := &fakeScraper{}
	c, tracker := newTestCoordinator(scraper, false, nil)

	_, err := c.Run(context.Background(), "s1", []string{"q1"})
	if !errors.Is(err, readiness.ErrLoginRequired) {
		t.Fatalf("error = %v, want ErrLoginRequired", err)
	}
	if len(scraper.calls) != 0 {
		t.Errorf("no question should run, got %d calls", len(scraper.calls))
	}
	if _, ok := tracker.Snapshot("s1"); ok {
		t.Error("no session record should exist after a fail-fast")
	}
}

func TestRunPausesBetweenQuestionsButNotAfterLast(t *testing.T) {
	c, _ := newTestCoordinator(&fakeScraper{}, true, nil)
	var pauses []time.Duration
	c.sleep = func(d time.Duration) { pauses = append(pauses, d) }
	c.jitter = func() time.Duration { return 7 * time.Second }

	if _, err := c.Run(context.Background(), "s1", []string{"q1", "q2", "q3"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pauses) != 2 {
		t.Fatalf("pauses = %d, want 2 (between questions only)", len(pauses))
	}
	for i, d := range pauses {
		if d != 7*time.Second {
			t.Errorf("pause[%d] = %v, want 7s", i, d)
		}
	}
}

func TestJitterStaysInRange(t *testing.T) {
	cfg := &config.Config{JitterMin: 5 * time.Second, JitterMax: 10 * time.Second}
	c := NewCoordinator(cfg, NewTracker(time.Minute), &fakeScraper{}, nil,
		func(context.Context) bool { return true }, nil, testLogger())
	for i := 0; i < 100; i++ {
		d := c.jitter()
		if d < cfg.JitterMin || d >= cfg.JitterMax {
			t.Fatalf("jitter %v outside [%v, %v)", d, cfg.JitterMin, cfg.JitterMax)
		}
	}
}

func TestTrackerSnapshotEstimates(t *testing.T) {
	tracker := NewTracker(time.Minute)
	base := time.Unix(1000, 0)
	tracker.now = func() time.Time { return base }
	tracker.Start("s1", 4)

	tracker.now = func() time.Time { return base.Add(20 * time.Second) }
	tracker.Update("s1", 2, "q2", StatusProcessing)

	snap, ok := tracker.Snapshot("s1")
	if !ok {
		t.Fatal("session missing")
	}
	if snap.ProgressPercent != 50 {
		t.Errorf("progress = %v%%, want 50", snap.ProgressPercent)
	}
	if snap.ElapsedMs != 20000 {
		t.Errorf("elapsed = %dms, want 20000", snap.ElapsedMs)
	}
	// 10s per question so far, 2 questions left.
	if snap.EstimatedRemainingMs != 20000 {
		t.Errorf("estimated remaining = %dms, want 20000", snap.EstimatedRemainingMs)
	}
	if snap.CurrentQuestion != "q2" {
		t.Errorf("current question = %q, want q2", snap.CurrentQuestion)
	}
}

func TestTrackerUnknownSession(t *testing.T) {
	tracker := NewTracker(time.Minute)
	if _, ok := tracker.Snapshot("nope"); ok {
		t.Error("unknown session should not snapshot")
	}
}
