// Package login runs the interactive authentication flow: a visible browser
// on the persistent profile where the user logs in by hand while the service
// watches for the session to become usable.
package login

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/eeselapp/chatgpt-batch-query/internal/browser"
	"github.com/eeselapp/chatgpt-batch-query/internal/config"
	"github.com/eeselapp/chatgpt-batch-query/internal/readiness"
)

// ErrFlowActive is returned when a login flow is already running.
var ErrFlowActive = errors.New("login flow already in progress")

// ErrBusy is returned when a batch holds the browser; the flow would have to
// kill the scraping session to take the profile lock.
var ErrBusy = errors.New("a batch is in progress")

// confirmationRun is how many consecutive positive checks are needed before
// the login is considered confirmed. A single positive read can be a
// transient mid-redirect state.
const confirmationRun = 3

// Flow states reported to the API.
const (
	StateIdle         = "idle"
	StateWaiting      = "waiting_for_login"
	StateConfirmed    = "confirmed"
	StateTimeout      = "timeout"
	StateWindowClosed = "window_closed"
	StateFailed       = "failed"
)

// authPathMarkers identify URLs belonging to the login journey rather than
// the application proper.
var authPathMarkers = []string{"/auth", "auth.openai.com", "auth0", "accounts.google.com", "login.microsoftonline.com", "appleid.apple.com"}

// Controller owns the interactive login flow. At most one flow runs at a
// time.
type Controller struct {
	cfg       *config.Config
	manager   *browser.Manager
	detector  *readiness.Detector
	dismisser *readiness.Dismisser
	logger    *slog.Logger

	// busy reports whether a batch holds the browser right now.
	busy func() bool

	launch       func(ctx context.Context) (*rod.Page, func(), error)
	closeScraper func()
	prepare      func(ctx context.Context, page *rod.Page) error
	checkPage    func(page *rod.Page) (bool, error)
	sleep        func(time.Duration)

	mu     sync.Mutex
	active bool
	state  string
}

// NewController creates a login flow controller. busy guards the flow from
// stealing the browser out from under a running batch.
func NewController(cfg *config.Config, manager *browser.Manager, detector *readiness.Detector, dismisser *readiness.Dismisser, busy func() bool, logger *slog.Logger) *Controller {
	c := &Controller{
		cfg:       cfg,
		manager:   manager,
		detector:  detector,
		dismisser: dismisser,
		busy:      busy,
		logger:    logger,
		sleep:     time.Sleep,
		state:     StateIdle,
	}
	c.launch = func(ctx context.Context) (*rod.Page, func(), error) {
		return browser.LaunchInteractive(ctx, cfg, logger)
	}
	c.closeScraper = manager.CloseBrowser
	c.prepare = c.navigateAndDismiss
	c.checkPage = c.check
	return c
}

// State returns the current flow state.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the interactive flow in the background. It returns
// ErrFlowActive when one is already running and ErrBusy while a batch holds
// the browser. alreadyLoggedIn is a fast profile-heuristic answer so callers
// can skip opening a window for nothing.
func (c *Controller) Start(ctx context.Context) (alreadyLoggedIn bool, err error) {
	if c.busy != nil && c.busy() {
		return false, ErrBusy
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return false, ErrFlowActive
	}
	c.active = true
	c.state = StateWaiting
	c.mu.Unlock()

	if c.manager.Profile().IsLoggedIn() && c.manager.Connected() {
		c.setDone(StateConfirmed)
		return true, nil
	}

	go c.run(ctx)
	return false, nil
}

// run drives the flow to completion.
func (c *Controller) run(ctx context.Context) {
	// The scraping browser holds the profile lock; it must go first. Start
	// refuses while a batch is running, so nothing is mid-question here.
	c.closeScraper()

	page, cleanup, err := c.launch(ctx)
	if err != nil {
		c.logger.Error("interactive browser launch failed", "error", err)
		c.setDone(StateFailed)
		return
	}
	closeWindow := true
	defer func() {
		if closeWindow {
			cleanup()
		}
	}()

	if err := c.prepare(ctx, page); err != nil {
		c.logger.Error("login navigation failed", "error", err)
		c.setDone(StateFailed)
		return
	}

	// The profile may already carry a valid session. No manual step happened,
	// so there is nothing to flush; the window stays open for the user to
	// close themselves.
	if ok, err := c.checkPage(page); err == nil && ok {
		c.logger.Info("session already authenticated, no manual login needed")
		closeWindow = false
		c.setDone(StateConfirmed)
		return
	}

	c.logger.Info("waiting for manual login",
		"poll", c.cfg.LoginPollInterval,
		"timeout", c.cfg.LoginTimeout,
	)
	outcome := watchLogin(ctx, func() (bool, error) { return c.checkPage(page) },
		c.cfg.LoginPollInterval, c.cfg.LoginTimeout, confirmationRun, c.sleep)

	switch outcome {
	case OutcomeConfirmed:
		c.finishConfirmed()
	case OutcomeWindowClosed:
		// The user closing the window is an expected way to end the flow.
		c.logger.Info("login window closed by user")
		c.setDone(StateWindowClosed)
	case OutcomeTimeout:
		c.logger.Warn("login not confirmed before timeout", "timeout", c.cfg.LoginTimeout)
		c.setDone(StateTimeout)
	default:
		c.setDone(StateFailed)
	}
}

// navigateAndDismiss opens the target and clears any interstitial.
func (c *Controller) navigateAndDismiss(ctx context.Context, page *rod.Page) error {
	if err := page.Timeout(c.cfg.NavTimeout).Navigate(c.cfg.TargetURL); err != nil {
		return err
	}
	_ = page.Timeout(c.cfg.NavTimeout).WaitLoad()
	c.dismisser.Dismiss(ctx, page)
	return nil
}

// finishConfirmed waits out the cookie flush grace before the deferred
// cleanup closes the browser, so the session lands on disk.
func (c *Controller) finishConfirmed() {
	c.logger.Info("login confirmed", "flush_grace", c.cfg.LoginFlushGrace)
	c.sleep(c.cfg.LoginFlushGrace)
	c.setDone(StateConfirmed)
}

func (c *Controller) setDone(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.state = state
}

// check reads one login verdict off the live page. Logged in means the page
// is usable, shows no credential inputs, and sits outside the auth journey.
func (c *Controller) check(page *rod.Page) (bool, error) {
	snap, err := c.detector.Snapshot(page)
	if err != nil {
		return false, err
	}
	if isAuthURL(snap.URL) {
		return false, nil
	}
	return readiness.Classify(snap) == readiness.StateUsable && !snap.HasEmailInput, nil
}

// isAuthURL reports whether the URL belongs to the login journey.
func isAuthURL(u string) bool {
	lower := strings.ToLower(u)
	for _, m := range authPathMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Outcome is the terminal result of a login watch.
type Outcome int

const (
	OutcomeTimeout Outcome = iota
	OutcomeConfirmed
	OutcomeWindowClosed
)

// watchLogin polls check until needed consecutive positive reads occur, the
// check starts erroring (the window is gone), the timeout passes, or the
// context ends. A failed read resets the consecutive counter.
func watchLogin(ctx context.Context, check func() (bool, error), interval, timeout time.Duration, needed int, sleep func(time.Duration)) Outcome {
	deadline := time.Now().Add(timeout)
	consecutive := 0
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return OutcomeTimeout
		default:
		}

		ok, err := check()
		switch {
		case err != nil:
			return OutcomeWindowClosed
		case ok:
			consecutive++
			if consecutive >= needed {
				return OutcomeConfirmed
			}
		default:
			consecutive = 0
		}

		sleep(interval)
	}
	return OutcomeTimeout
}
