package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

const (
	launchAttempts = 3

	// Backoff bases. Transport-class faults (dead sockets, resets) get a
	// longer base because the old Chromium usually needs time to die.
	genericBaseDelay   = 2 * time.Second
	transportBaseDelay = 5 * time.Second
	maxLaunchDelay     = 20 * time.Second
)

// launchFn starts a browser process and connects to it. The returned cleanup
// tears down whatever the attempt started, successful or not.
type launchFn func(ctx context.Context) (b *rod.Browser, cleanup func(), err error)

// retryPolicy is the escalation ladder for launch failures, keyed by attempt
// number and error class. The launcher, orphan killer, and sleeper are
// injectable so the policy is testable without Chrome.
type retryPolicy struct {
	attempts      int
	launchTimeout time.Duration
	killOrphans   func() int
	sleep         func(time.Duration)
	verify        func(*rod.Browser) error
	logger        *slog.Logger
}

// delayFor computes the backoff before the next attempt: the class base
// doubled per completed attempt, capped.
func (p *retryPolicy) delayFor(attempt int, err error) time.Duration {
	base := genericBaseDelay
	if IsTransportError(err) {
		base = transportBaseDelay
	}
	d := base << (attempt - 1)
	if d > maxLaunchDelay {
		d = maxLaunchDelay
	}
	return d
}

// shouldKillOrphans reports whether stray automation browsers should be
// killed before the next attempt: transport failures from the second attempt
// on, when the stuck process itself is the likely cause.
func (p *retryPolicy) shouldKillOrphans(attempt int, err error) bool {
	return attempt >= 2 && IsTransportError(err)
}

// launchResult carries one attempt's outcome across the timeout race.
type launchResult struct {
	browser *rod.Browser
	cleanup func()
	err     error
}

// launchWithRetry runs the escalation ladder: each attempt races the launch
// against a fixed timeout, then confirms liveness by requesting the open-page
// list and the product version. Exhausting all attempts returns
// ErrLaunchFailed wrapping the last failure reason.
func launchWithRetry(ctx context.Context, launch launchFn, p *retryPolicy) (*rod.Browser, func(), error) {
	var lastErr error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		b, cleanup, err := launchOnce(ctx, launch, p.launchTimeout)
		if err == nil {
			if verr := p.verify(b); verr == nil {
				if attempt > 1 {
					p.logger.Info("browser launched after retry", "attempt", attempt)
				}
				return b, cleanup, nil
			} else {
				// Half-started process: close it before retrying.
				err = fmt.Errorf("liveness check: %w", verr)
				cleanup()
			}
		}
		lastErr = err
		p.logger.Warn("browser launch attempt failed",
			"attempt", attempt,
			"transport", IsTransportError(err),
			"error", err,
		)

		if attempt == p.attempts {
			break
		}
		if p.shouldKillOrphans(attempt, err) {
			if n := p.killOrphans(); n > 0 {
				p.logger.Info("killed orphaned automation browsers", "count", n)
			}
		}
		p.sleep(p.delayFor(attempt, err))
	}

	return nil, nil, fmt.Errorf("%w after %d attempts: %v", ErrLaunchFailed, p.attempts, lastErr)
}

// launchOnce races one launch attempt against the timeout. A timeout counts
// as a failed attempt; if the straggling launch eventually completes, its
// browser is torn down in the background.
func launchOnce(ctx context.Context, launch launchFn, timeout time.Duration) (*rod.Browser, func(), error) {
	done := make(chan launchResult, 1)
	go func() {
		b, cleanup, err := launch(ctx)
		done <- launchResult{browser: b, cleanup: cleanup, err: err}
	}()

	select {
	case res := <-done:
		return res.browser, res.cleanup, res.err
	case <-time.After(timeout):
		go func() {
			if res := <-done; res.err == nil && res.cleanup != nil {
				res.cleanup()
			}
		}()
		return nil, nil, fmt.Errorf("launch timed out after %s", timeout)
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil && res.cleanup != nil {
				res.cleanup()
			}
		}()
		return nil, nil, ctx.Err()
	}
}

// verifyLive confirms the freshly started browser answers basic DevTools
// requests before we trust it.
func verifyLive(b *rod.Browser) error {
	if _, err := b.Pages(); err != nil {
		return fmt.Errorf("page list: %w", err)
	}
	if _, err := b.Version(); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	return nil
}
