// Package readiness classifies the target page's state: whether a question
// can be submitted, whether a login interstitial is blocking, or whether the
// page is still in a transitional state.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Evaluator runs JS in the live page. *rod.Page implements it; tests
// substitute scripted fakes.
type Evaluator interface {
	Eval(js string, params ...interface{}) (*proto.RuntimeRemoteObject, error)
}

// PromptInputSelector matches the question input field, with fallbacks for
// markup variants. Submission must target the same element set the
// classifier accepted, so both share this selector.
const PromptInputSelector = `#prompt-textarea, textarea[data-testid="prompt-textarea"], form textarea, div[contenteditable="true"]`

// ErrLoginRequired indicates authentication is missing or a login
// interstitial appeared. It is never retried automatically; the only remedy
// is the interactive login flow.
var ErrLoginRequired = errors.New("login required")

// State is the classification of one DOM read.
type State string

const (
	// StateUsable means a question can be submitted right now.
	StateUsable State = "usable"
	// StateLoginRequired means a login affordance or blocking modal is present.
	StateLoginRequired State = "login_required"
	// StateIndeterminate covers transitional states (page still loading).
	StateIndeterminate State = "indeterminate"
)

// Snapshot is an ephemeral classification input from one DOM read. It is
// recomputed on every check and never persisted.
type Snapshot struct {
	HasLoginButton bool   `json:"hasLoginButton"`
	HasEmailInput  bool   `json:"hasEmailInput"`
	HasUsableInput bool   `json:"hasUsableInput"`
	HasModal       bool   `json:"hasModal"`
	URL            string `json:"url"`
}

// Classify maps a snapshot onto the closed state enum.
//
// Usable requires a visible input field AND no login affordance AND no
// blocking modal. LoginRequired requires a login affordance or modal with no
// usable input. Everything else is Indeterminate.
func Classify(s Snapshot) State {
	loginAffordance := s.HasLoginButton || s.HasEmailInput
	switch {
	case s.HasUsableInput && !loginAffordance && !s.HasModal:
		return StateUsable
	case (loginAffordance || s.HasModal) && !s.HasUsableInput:
		return StateLoginRequired
	default:
		return StateIndeterminate
	}
}

// snapshotJS probes the live DOM for the classification flags. The input
// field only counts when visibly rendered (non-zero rect, not hidden via
// style); login affordances cover email/password inputs and textual
// login/signup/continue-with-provider prompts.
const snapshotJS = `(inputSelector) => {
	const visible = (el) => {
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};

	const input = document.querySelector(inputSelector);

	const emailInput = document.querySelector('input[type="email"], input[name="email"], input[type="password"]');

	let loginButton = !!document.querySelector('button[data-testid="login-button"], a[data-testid="login-button"]');
	if (!loginButton) {
		const prompts = ['log in', 'sign up', 'continue with google', 'continue with microsoft', 'continue with apple', 'welcome back'];
		const text = (document.body ? document.body.innerText : '').toLowerCase();
		for (const b of document.querySelectorAll('button, a[role="button"]')) {
			const t = b.textContent.trim().toLowerCase();
			if (prompts.some(p => t === p || t.startsWith(p))) { loginButton = true; break; }
		}
		if (!loginButton && (text.includes('welcome back') && text.includes('log in'))) loginButton = true;
	}

	const modal = Array.from(document.querySelectorAll('div[role="dialog"], [data-state="open"][role="dialog"]')).some(visible);

	return {
		hasLoginButton: loginButton,
		hasEmailInput: !!(emailInput && visible(emailInput)),
		hasUsableInput: visible(input),
		hasModal: modal,
		url: window.location.href,
	};
}`

// Detector inspects page DOM snapshots.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a new readiness detector.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{logger: logger}
}

// Snapshot reads the classification flags out of the live page.
func (d *Detector) Snapshot(page Evaluator) (Snapshot, error) {
	res, err := page.Eval(snapshotJS, PromptInputSelector)
	if err != nil {
		return Snapshot{}, fmt.Errorf("readiness snapshot: %w", err)
	}
	v := res.Value
	return Snapshot{
		HasLoginButton: v.Get("hasLoginButton").Bool(),
		HasEmailInput:  v.Get("hasEmailInput").Bool(),
		HasUsableInput: v.Get("hasUsableInput").Bool(),
		HasModal:       v.Get("hasModal").Bool(),
		URL:            v.Get("url").Str(),
	}, nil
}

// Check snapshots the page and classifies it. A snapshot failure is reported
// as Indeterminate so transient evaluation faults do not escalate.
func (d *Detector) Check(page Evaluator) State {
	snap, err := d.Snapshot(page)
	if err != nil {
		d.logger.Debug("readiness snapshot failed", "error", err)
		return StateIndeterminate
	}
	state := Classify(snap)
	d.logger.Debug("readiness check",
		"state", state,
		"login_button", snap.HasLoginButton,
		"email_input", snap.HasEmailInput,
		"usable_input", snap.HasUsableInput,
		"modal", snap.HasModal,
	)
	return state
}

// WaitUsable polls the classifier until the page is Usable, a login
// affordance appears, or attempts are exhausted. Indeterminate readings get a
// dismissal attempt (the interstitial may be the only thing in the way) and a
// short sleep before the next check. Exhausting attempts is reported as
// ErrLoginRequired: nothing client-side will make the page usable.
func (d *Detector) WaitUsable(ctx context.Context, page *rod.Page, dismisser *Dismisser, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch d.Check(page) {
		case StateUsable:
			return nil
		case StateLoginRequired:
			return fmt.Errorf("page shows a login affordance: %w", ErrLoginRequired)
		case StateIndeterminate:
			if dismisser != nil {
				dismisser.Dismiss(ctx, page)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("page never became usable after %d checks: %w", attempts, ErrLoginRequired)
}
