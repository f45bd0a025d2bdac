package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
)

// Scraper runs one question end to end.
type Scraper interface {
	ScrapeOne(ctx context.Context, question string) (models.ScrapeResult, error)
}

// Store persists batch rows as they complete, so a crash mid-batch loses at
// most the question in flight.
type Store interface {
	CreateBatch(ctx context.Context, id string, total int) error
	SaveResult(ctx context.Context, id string, idx int, r models.ScrapeResult) error
	FinishBatch(ctx context.Context, id, status string) error
}

// Progress receives the batch's lifecycle transitions. *Tracker implements
// it.
type Progress interface {
	Start(id string, total int)
	Update(id string, current int, question, status string)
	Append(id string, r models.ScrapeResult)
	Finish(id, status string)
}

// Coordinator runs batches strictly sequentially: one question at a time,
// with a randomized pause between questions.
type Coordinator struct {
	cfg     *config.Config
	tracker Progress
	scraper Scraper
	store   Store // may be nil
	logger  *slog.Logger

	// loggedIn is the pre-flight authentication check.
	loggedIn func(ctx context.Context) bool
	// closeBrowser shuts the shared browser down once the batch ends.
	closeBrowser func()

	sleep  func(time.Duration)
	jitter func() time.Duration
}

// NewCoordinator wires a batch coordinator.
func NewCoordinator(cfg *config.Config, tracker Progress, scraper Scraper, store Store, loggedIn func(ctx context.Context) bool, closeBrowser func(), logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		tracker:      tracker,
		scraper:      scraper,
		store:        store,
		logger:       logger,
		loggedIn:     loggedIn,
		closeBrowser: closeBrowser,
		sleep:        time.Sleep,
	}
	c.jitter = func() time.Duration {
		span := cfg.JitterMax - cfg.JitterMin
		if span <= 0 {
			return cfg.JitterMin
		}
		return cfg.JitterMin + time.Duration(rand.Int63n(int64(span)))
	}
	return c
}

// Run executes a batch. It fails fast with ErrLoginRequired before creating
// any session record when the profile is not authenticated; after that every
// per-question failure becomes an error row and the batch continues. The
// returned slice always has exactly one row per question, in input order.
func (c *Coordinator) Run(ctx context.Context, sessionID string, questions []string) ([]models.ScrapeResult, error) {
	if !c.loggedIn(ctx) {
		return nil, fmt.Errorf("cannot start batch: %w", readiness.ErrLoginRequired)
	}

	total := len(questions)
	c.tracker.Start(sessionID, total)
	if c.store != nil {
		if err := c.store.CreateBatch(ctx, sessionID, total); err != nil {
			c.logger.Warn("persist batch record", "session", sessionID, "error", err)
		}
	}
	c.logger.Info("batch started", "session", sessionID, "total", total)

	results := make([]models.ScrapeResult, 0, total)
	status := StatusFinished

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("batch cancelled", "session", sessionID, "at", i)
			status = StatusError
			break
		}

		c.tracker.Update(sessionID, i+1, q, StatusProcessing)
		res, err := c.scraper.ScrapeOne(ctx, q)
		if err != nil {
			c.logger.Error("question failed", "session", sessionID, "index", i+1, "error", err)
			res = models.ErrorResult(q, err)
		}
		results = append(results, res)
		c.tracker.Append(sessionID, res)
		if res.IsError() {
			c.tracker.Update(sessionID, i+1, q, StatusError)
		} else {
			c.tracker.Update(sessionID, i+1, q, StatusCompleted)
		}
		if c.store != nil {
			if err := c.store.SaveResult(ctx, sessionID, i, res); err != nil {
				c.logger.Warn("persist result", "session", sessionID, "index", i, "error", err)
			}
		}

		if i < total-1 {
			d := c.jitter()
			c.tracker.Update(sessionID, i+1, q, StatusWaiting)
			c.logger.Debug("pausing before next question", "session", sessionID, "pause", d)
			c.sleep(d)
		}
	}

	c.tracker.Update(sessionID, len(results), "", StatusCompleted)
	if c.store != nil {
		if err := c.store.FinishBatch(ctx, sessionID, status); err != nil {
			c.logger.Warn("persist batch finish", "session", sessionID, "error", err)
		}
	}
	if c.closeBrowser != nil {
		c.closeBrowser()
	}
	c.tracker.Finish(sessionID, status)
	c.logger.Info("batch finished", "session", sessionID, "results", len(results), "status", status)
	return results, nil
}
