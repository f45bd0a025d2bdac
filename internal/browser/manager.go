// Package browser owns the single long-lived browser+page pair used for
// scraping, the on-disk profile that persists authentication, and the launch
// retry ladder.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"golang.org/x/sync/semaphore"

	"github.com/eeselapp/chatgpt-batch-query/internal/config"
)

// acquirePollInterval is how often a caller re-checks the in-use slot. There
// is no fairness guarantee beyond first-come against this granularity.
const acquirePollInterval = 250 * time.Millisecond

// Manager owns at most one browser+page pair process-wide. Exactly one
// scrape may hold the in-use slot at a time; the browser is never closed on a
// successful release, only on CloseBrowser or Reset.
type Manager struct {
	cfg     *config.Config
	logger  *slog.Logger
	profile *Profile

	// slot is the single-permit in-use flag.
	slot *semaphore.Weighted

	mu        sync.Mutex // guards the fields below
	browser   *rod.Browser
	page      *rod.Page
	lnch      *launcher.Launcher
	createdAt time.Time
}

// NewManager creates a Manager. The browser is launched lazily on first
// Acquire.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		profile: NewProfile(cfg.ProfileDir, logger),
		slot:    semaphore.NewWeighted(1),
	}
}

// Profile returns the on-disk profile backing this manager's browser.
func (m *Manager) Profile() *Profile {
	return m.profile
}

// Acquire claims the in-use slot and returns a ready page, launching a
// browser if none exists or the existing one is disconnected, reusing it
// otherwise. isNew is true when a fresh browser was launched. The caller must
// call Release on every exit path.
func (m *Manager) Acquire(ctx context.Context) (page *rod.Page, isNew bool, err error) {
	for !m.slot.TryAcquire(1) {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}

	page, isNew, err = m.ensurePage(ctx)
	if err != nil {
		m.slot.Release(1)
		return nil, false, err
	}
	return page, isNew, nil
}

// Release clears the in-use slot without closing anything.
func (m *Manager) Release() {
	m.slot.Release(1)
}

// ensurePage returns a usable page, reusing the existing browser when it is
// still connected, replacing a closed page, and launching fresh otherwise.
func (m *Manager) ensurePage(ctx context.Context) (*rod.Page, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if err := verifyLive(m.browser); err != nil {
			m.logger.Warn("existing browser is disconnected, relaunching", "error", err)
			m.closeLocked()
		} else {
			if m.page != nil && pageOpen(m.page) {
				return m.page, false, nil
			}
			m.logger.Info("page was closed, opening replacement")
			page, err := CreatePage(m.browser)
			if err != nil {
				m.logger.Warn("replacement page failed, relaunching browser", "error", err)
				m.closeLocked()
			} else {
				m.page = page
				return page, false, nil
			}
		}
	}

	if err := m.launchLocked(ctx); err != nil {
		return nil, false, err
	}
	return m.page, true, nil
}

// launchLocked runs the retry ladder and opens the initial page.
func (m *Manager) launchLocked(ctx context.Context) error {
	policy := &retryPolicy{
		attempts:      launchAttempts,
		launchTimeout: m.cfg.LaunchTimeout,
		killOrphans:   func() int { return KillOrphanBrowsers(m.logger) },
		sleep:         time.Sleep,
		verify:        verifyLive,
		logger:        m.logger,
	}

	var lnch *launcher.Launcher
	launch := func(ctx context.Context) (*rod.Browser, func(), error) {
		l := m.newLauncher(m.cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			l.Cleanup()
			return nil, nil, err
		}
		// Deliberately not bound to ctx: the browser outlives the request
		// that triggered the launch.
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			l.Kill()
			l.Cleanup()
			return nil, nil, err
		}
		cleanup := func() {
			b.Close()
			l.Kill()
			l.Cleanup()
		}
		lnch = l
		return b, cleanup, nil
	}

	b, cleanup, err := launchWithRetry(ctx, launch, policy)
	if err != nil {
		return err
	}

	page, err := CreatePage(b)
	if err != nil {
		cleanup()
		return fmt.Errorf("initial page: %w", err)
	}

	m.browser = b
	m.page = page
	m.lnch = lnch
	m.createdAt = time.Now()
	m.logger.Info("browser launched", "headless", m.cfg.Headless, "profile", m.cfg.ProfileDir)
	return nil
}

// newLauncher builds the launcher pointed at the persistent profile.
func (m *Manager) newLauncher(headless bool) *launcher.Launcher {
	l := launcher.New()
	if m.cfg.ChromePath != "" {
		l = l.Bin(m.cfg.ChromePath)
	}
	return l.
		Headless(headless).
		UserDataDir(m.cfg.ProfileDir).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-background-networking").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")
}

// Connected reports whether a live browser is currently held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil && verifyLive(m.browser) == nil
}

// CloseBrowser shuts the browser down without touching the profile. The next
// Acquire launches fresh.
func (m *Manager) CloseBrowser() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Reset force-closes the current browser and deletes the on-disk profile.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.closeLocked()
	m.mu.Unlock()

	return m.profile.Remove(ctx)
}

// closeLocked tears down the browser, page, and launcher. Must hold mu.
func (m *Manager) closeLocked() {
	if m.page != nil {
		m.page.Close()
		m.page = nil
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Debug("browser close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Kill()
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.logger.Info("browser closed")
}

// pageOpen reports whether the page handle still answers.
func pageOpen(page *rod.Page) bool {
	_, err := page.Info()
	return err == nil
}
