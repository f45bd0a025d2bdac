package readiness

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// dismissTexts are the known labels of the "stay logged out" control, most
// specific first.
var dismissTexts = []string{
	"Stay logged out",
	"stay logged out",
	"Keep me logged out",
}

// Dismisser attempts to close the "stay logged out" interstitial the target
// application injects for unauthenticated or soft-logged-out visitors.
// Dismissal is best-effort: it feeds the classifier but is never required.
type Dismisser struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewDismisser creates a new interstitial dismisser.
func NewDismisser(logger *slog.Logger) *Dismisser {
	return &Dismisser{
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

// strategy is one independent way to locate and click the dismiss control.
// Strategies are tried in order until one succeeds; a failing strategy never
// aborts the others.
type strategy struct {
	name string
	run  func(d *Dismisser, ctx context.Context, page *rod.Page) bool
}

var dismissStrategies = []strategy{
	{"exact_text", (*Dismisser).byExactText},
	{"modal_link", (*Dismisser).byModalLink},
	{"style_heuristic", (*Dismisser).byStyleHeuristic},
}

// Dismiss tries each strategy in order and returns true if any control was
// clicked.
func (d *Dismisser) Dismiss(ctx context.Context, page *rod.Page) bool {
	for _, s := range dismissStrategies {
		if s.run(d, ctx, page) {
			d.logger.Info("dismissed stay-logged-out interstitial", "strategy", s.name)
			// Give the overlay a moment to unmount.
			time.Sleep(300 * time.Millisecond)
			return true
		}
	}
	return false
}

// byExactText clicks any link or button whose trimmed text matches a known
// dismiss label exactly.
func (d *Dismisser) byExactText(ctx context.Context, page *rod.Page) bool {
	js := `(texts) => {
		for (const el of document.querySelectorAll('a, button, div[role="button"]')) {
			const t = el.textContent.trim();
			if (texts.includes(t)) {
				const rect = el.getBoundingClientRect();
				if (rect.width > 0 && rect.height > 0) {
					el.click();
					return true;
				}
			}
		}
		return false;
	}`
	res, err := page.Timeout(d.timeout).Eval(js, dismissTexts)
	if err != nil {
		d.logger.Debug("exact text dismissal failed", "error", err)
		return false
	}
	return res.Value.Bool()
}

// byModalLink searches links inside dialog containers for "logged out"
// wording.
func (d *Dismisser) byModalLink(ctx context.Context, page *rod.Page) bool {
	js := `() => {
		for (const dialog of document.querySelectorAll('div[role="dialog"], [data-state="open"]')) {
			for (const link of dialog.querySelectorAll('a, button')) {
				if (link.textContent.toLowerCase().includes('logged out')) {
					link.click();
					return true;
				}
			}
		}
		return false;
	}`
	res, err := page.Timeout(d.timeout).Eval(js)
	if err != nil {
		d.logger.Debug("modal link dismissal failed", "error", err)
		return false
	}
	return res.Value.Bool()
}

// byStyleHeuristic falls back to the interstitial's visual signature: a small
// underlined link at the bottom of a visible dialog.
func (d *Dismisser) byStyleHeuristic(ctx context.Context, page *rod.Page) bool {
	js := `() => {
		const dialogs = Array.from(document.querySelectorAll('div[role="dialog"]')).filter(el => {
			const rect = el.getBoundingClientRect();
			return rect.width > 0 && rect.height > 0;
		});
		for (const dialog of dialogs) {
			const links = Array.from(dialog.querySelectorAll('a')).filter(a => {
				const style = window.getComputedStyle(a);
				return style.textDecorationLine.includes('underline') || style.fontSize.replace('px','') <= 14;
			});
			// The dismiss link renders below the primary call-to-action.
			links.sort((a, b) => a.getBoundingClientRect().top - b.getBoundingClientRect().top);
			const last = links[links.length - 1];
			if (last) {
				last.click();
				return true;
			}
		}
		return false;
	}`
	res, err := page.Timeout(d.timeout).Eval(js)
	if err != nil {
		d.logger.Debug("style heuristic dismissal failed", "error", err)
		return false
	}
	return res.Value.Bool()
}
