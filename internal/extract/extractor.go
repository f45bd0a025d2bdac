// Package extract pulls the rendered answer and its source URLs out of the
// conversation DOM once generation has finished.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
)

// Page is the slice of *rod.Page the engine needs: JS evaluation plus a
// screenshot for failure diagnosis.
type Page interface {
	readiness.Evaluator
	Screenshot(fullPage bool, req *proto.PageCaptureScreenshot) ([]byte, error)
}

// ErrExtractionFailed indicates no plausible answer content could be read
// from the page after all attempts.
var ErrExtractionFailed = errors.New("extraction failed")

const extractAttempts = 3

// Extraction is the content read from the last answer in the conversation.
type Extraction struct {
	Answer  string
	Sources []string
}

// revealSourcesJS clicks the source/citation disclosure controls inside the
// last answer so that hidden citation links get rendered. Best effort: a page
// without such controls simply returns 0.
const revealSourcesJS = `() => {
	const answers = document.querySelectorAll('div[data-message-author-role="assistant"]');
	if (answers.length === 0) return 0;
	const last = answers[answers.length - 1];
	const labels = ['sources', 'citations', 'search results'];
	let clicked = 0;
	for (const btn of last.querySelectorAll('button, [role="button"]')) {
		const label = ((btn.getAttribute('aria-label') || '') + ' ' + btn.textContent).trim().toLowerCase();
		if (labels.some(l => label.includes(l))) {
			try { btn.click(); clicked++; } catch (e) {}
		}
	}
	return clicked;
}`

// readAnswerJS clones the last answer node and reads its text and hyperlink
// targets. The clone keeps the live DOM untouched while links are walked.
const readAnswerJS = `() => {
	const answers = document.querySelectorAll('div[data-message-author-role="assistant"]');
	if (answers.length === 0) return null;
	const last = answers[answers.length - 1];
	const prose = last.querySelector('.markdown') || last;
	const clone = prose.cloneNode(true);

	const links = [];
	for (const a of clone.querySelectorAll('a[href]')) {
		try {
			links.push(new URL(a.getAttribute('href'), window.location.href).href);
		} catch (e) {}
	}

	return { text: prose.innerText || prose.textContent || '', links: links };
}`

const scrollToBottomJS = `() => {
	window.scrollTo(0, document.body.scrollHeight);
	const main = document.querySelector('main');
	if (main) main.scrollTop = main.scrollHeight;
}`

// Engine reads answers out of the live page.
type Engine struct {
	cfg      *config.Config
	detector *readiness.Detector
	logger   *slog.Logger
	sleep    func(time.Duration)
}

// NewEngine creates an extraction engine.
func NewEngine(cfg *config.Config, detector *readiness.Detector, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, detector: detector, logger: logger, sleep: time.Sleep}
}

// Extract reads the last answer from the page. It makes up to three attempts,
// scrolling between them; a login interstitial on any attempt aborts
// immediately with ErrLoginRequired since retrying cannot help. On final
// failure a screenshot is saved for diagnosis and ErrExtractionFailed is
// returned.
func (e *Engine) Extract(ctx context.Context, page Page) (Extraction, error) {
	var lastErr error
	for attempt := 1; attempt <= extractAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Extraction{}, err
		}

		if e.detector.Check(page) == readiness.StateLoginRequired {
			return Extraction{}, fmt.Errorf("login interstitial during extraction: %w", readiness.ErrLoginRequired)
		}

		ext, err := e.attempt(page)
		if err == nil {
			e.logger.Debug("extraction succeeded",
				"attempt", attempt,
				"answer_chars", len(ext.Answer),
				"sources", len(ext.Sources),
			)
			return ext, nil
		}
		lastErr = err
		e.logger.Warn("extraction attempt failed", "attempt", attempt, "error", err)

		if attempt < extractAttempts {
			if _, err := page.Eval(scrollToBottomJS); err != nil {
				e.logger.Debug("scroll before retry failed", "error", err)
			}
			e.sleep(e.cfg.SettleDelay)
		}
	}

	e.saveFailureScreenshot(page)
	return Extraction{}, fmt.Errorf("no answer content after %d attempts (%v): %w", extractAttempts, lastErr, ErrExtractionFailed)
}

// attempt performs one DOM read.
func (e *Engine) attempt(page Page) (Extraction, error) {
	if res, err := page.Eval(revealSourcesJS); err == nil && res.Value.Int() > 0 {
		e.logger.Debug("revealed source controls", "clicked", res.Value.Int())
		e.sleep(e.cfg.SettleDelay)
	}

	res, err := page.Eval(readAnswerJS)
	if err != nil {
		return Extraction{}, fmt.Errorf("read answer node: %w", err)
	}
	if res.Value.Nil() {
		return Extraction{}, errors.New("no answer node present")
	}

	answer := NormalizeWhitespace(res.Value.Get("text").Str())
	if len(answer) < e.cfg.MinAnswerChars {
		return Extraction{}, fmt.Errorf("answer too short (%d chars)", len(answer))
	}

	rawLinks := res.Value.Get("links").Arr()
	links := make([]string, 0, len(rawLinks))
	for _, l := range rawLinks {
		links = append(links, l.Str())
	}

	return Extraction{
		Answer:  answer,
		Sources: CollectSources(links, answer, e.cfg.InternalHosts),
	}, nil
}

// saveFailureScreenshot captures the page for post-mortem when all attempts
// are spent. Failures here are only logged.
func (e *Engine) saveFailureScreenshot(page Page) {
	if e.cfg.ScreenshotDir == "" {
		return
	}
	if err := os.MkdirAll(e.cfg.ScreenshotDir, 0755); err != nil {
		e.logger.Warn("screenshot dir", "error", err)
		return
	}
	buf, err := page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		e.logger.Warn("failure screenshot capture", "error", err)
		return
	}
	name := filepath.Join(e.cfg.ScreenshotDir, fmt.Sprintf("extract-failure-%s.png", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(name, buf, 0644); err != nil {
		e.logger.Warn("failure screenshot write", "error", err)
		return
	}
	e.logger.Info("saved failure screenshot", "path", name)
}
