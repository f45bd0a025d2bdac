// Package scrape runs a single question through the live page: navigate,
// verify readiness, submit, wait for generation to finish, extract.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/eeselapp/chatgpt-batch-query/internal/browser"
	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/extract"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
)

// generationPollInterval is how often the stop control is re-checked while
// waiting for generation to start and finish.
const generationPollInterval = 500 * time.Millisecond

// ErrScrape wraps pipeline failures that are neither a login problem nor an
// extraction problem (navigation, submission, browser acquisition).
var ErrScrape = errors.New("scrape failed")

// stopButtonPresentJS reports whether the model is still generating.
const stopButtonPresentJS = `() => {
	return !!(document.querySelector('button[data-testid="stop-button"]') ||
		document.querySelector('button[aria-label="Stop generating"]') ||
		document.querySelector('button[aria-label="Stop streaming"]'));
}`

// browserSource hands out the shared page under the single in-use slot.
// *browser.Manager implements it.
type browserSource interface {
	Acquire(ctx context.Context) (*rod.Page, bool, error)
	Release()
}

// Orchestrator drives one question end to end against the shared browser.
// The pipeline steps are held as function fields so tests can script them;
// NewOrchestrator binds them all to the live implementations.
type Orchestrator struct {
	cfg    *config.Config
	source browserSource
	logger *slog.Logger

	navigate    func(page *rod.Page) error
	waitUsable  func(ctx context.Context, page *rod.Page) error
	submit      func(page *rod.Page, question string) error
	check       func(page *rod.Page) readiness.State
	stopPresent func(page *rod.Page) (bool, error)
	extract     func(ctx context.Context, page *rod.Page) (extract.Extraction, error)
	sleep       func(time.Duration)
}

// NewOrchestrator wires the scrape pipeline together.
func NewOrchestrator(cfg *config.Config, manager *browser.Manager, detector *readiness.Detector, dismisser *readiness.Dismisser, engine *extract.Engine, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		source: manager,
		logger: logger,
		sleep:  time.Sleep,
	}
	o.navigate = o.navigatePage
	o.waitUsable = func(ctx context.Context, page *rod.Page) error {
		return detector.WaitUsable(ctx, page, dismisser, cfg.ReadinessAttempts, cfg.ReadinessDelay)
	}
	o.submit = o.submitQuestion
	o.check = func(page *rod.Page) readiness.State { return detector.Check(page) }
	o.stopPresent = func(page *rod.Page) (bool, error) {
		res, err := page.Eval(stopButtonPresentJS)
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	}
	o.extract = func(ctx context.Context, page *rod.Page) (extract.Extraction, error) {
		return engine.Extract(ctx, page)
	}
	return o
}

// ScrapeOne runs a single question through the full pipeline and returns its
// result row. The in-use slot is released on every exit path. A login
// interstitial at any stage surfaces as readiness.ErrLoginRequired.
func (o *Orchestrator) ScrapeOne(ctx context.Context, question string) (models.ScrapeResult, error) {
	page, isNew, err := o.source.Acquire(ctx)
	if err != nil {
		return models.ScrapeResult{}, fmt.Errorf("%w: acquire browser: %w", ErrScrape, err)
	}
	defer o.source.Release()

	o.logger.Info("scraping question", "new_browser", isNew, "question_chars", len(question))

	if err := o.navigate(page); err != nil {
		return models.ScrapeResult{}, fmt.Errorf("%w: %w", ErrScrape, err)
	}

	if err := o.waitUsable(ctx, page); err != nil {
		return models.ScrapeResult{}, err
	}

	if err := o.submit(page, question); err != nil {
		return models.ScrapeResult{}, fmt.Errorf("%w: %w", ErrScrape, err)
	}

	// Submission can bounce straight to a login interstitial; catch that
	// before burning the generation timeout.
	if o.check(page) == readiness.StateLoginRequired {
		return models.ScrapeResult{}, fmt.Errorf("login interstitial after submission: %w", readiness.ErrLoginRequired)
	}

	o.awaitGeneration(ctx, page)
	o.sleep(o.cfg.SettleDelay)

	// Generation may have ended on a login interstitial rather than an
	// answer; Extract re-checks before reading.
	ext, err := o.extract(ctx, page)
	if err != nil {
		return models.ScrapeResult{}, err
	}

	return models.ScrapeResult{
		Question: question,
		Answer:   ext.Answer,
		Sources:  extract.JoinSources(ext.Sources),
	}, nil
}

// navigatePage opens a fresh conversation. Every question starts from the
// target root so answers never bleed between questions.
func (o *Orchestrator) navigatePage(page *rod.Page) error {
	p := page.Timeout(o.cfg.NavTimeout)
	if err := p.Navigate(o.cfg.TargetURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", o.cfg.TargetURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for page load: %w", err)
	}
	return nil
}

// submitQuestion types the question into the prompt field and sends it. It
// targets the same selector set the readiness classifier matched, so a page
// accepted on a fallback input variant is submitted into that same element.
func (o *Orchestrator) submitQuestion(page *rod.Page, question string) error {
	p := page.Timeout(o.cfg.NavTimeout)
	el, err := p.Element(readiness.PromptInputSelector)
	if err != nil {
		return fmt.Errorf("prompt field not found: %w", err)
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus prompt field: %w", err)
	}
	if err := p.InsertText(question); err != nil {
		return fmt.Errorf("type question: %w", err)
	}
	if err := p.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("send question: %w", err)
	}
	return nil
}

// awaitGeneration waits for the stop control to appear and then disappear.
// Both waits are bounded and tolerated on timeout: a fast answer can finish
// before the control is ever observed, and a stuck stream is handled by
// extraction failing downstream.
func (o *Orchestrator) awaitGeneration(ctx context.Context, page *rod.Page) {
	if !o.waitStopButton(ctx, page, true, o.cfg.GenStartTimeout) {
		o.logger.Debug("stop control never appeared, assuming generation already finished")
		return
	}
	if !o.waitStopButton(ctx, page, false, o.cfg.GenTimeout) {
		o.logger.Warn("generation still running at timeout, extracting what is there",
			"timeout", o.cfg.GenTimeout)
	}
}

// waitStopButton polls until the stop control's presence matches want, or the
// deadline passes. Returns whether the wanted state was observed.
func (o *Orchestrator) waitStopButton(ctx context.Context, page *rod.Page, want bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(generationPollInterval):
		}
		present, err := o.stopPresent(page)
		if err != nil {
			o.logger.Debug("stop control read failed", "error", err)
			continue
		}
		if present == want {
			return true
		}
	}
	return false
}
