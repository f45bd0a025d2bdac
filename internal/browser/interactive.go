package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/eeselapp/chatgpt-batch-query/internal/config"
)

// LaunchInteractive opens a visible browser on the persistent profile for the
// manual login flow. It uses the same launch flags and retry ladder as the
// scraping browser, with headless forced off. The returned cleanup closes the
// browser and its launcher; the profile stays on disk.
func LaunchInteractive(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*rod.Page, func(), error) {
	m := &Manager{cfg: cfg, logger: logger}
	policy := &retryPolicy{
		attempts:      launchAttempts,
		launchTimeout: cfg.LaunchTimeout,
		killOrphans:   func() int { return KillOrphanBrowsers(logger) },
		sleep:         time.Sleep,
		verify:        verifyLive,
		logger:        logger,
	}

	var lnch = m.newLauncher(false)
	launch := func(ctx context.Context) (*rod.Browser, func(), error) {
		u, err := lnch.Launch()
		if err != nil {
			lnch.Cleanup()
			lnch = m.newLauncher(false)
			return nil, nil, err
		}
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			lnch.Kill()
			lnch.Cleanup()
			lnch = m.newLauncher(false)
			return nil, nil, err
		}
		l := lnch
		cleanup := func() {
			b.Close()
			l.Kill()
			l.Cleanup()
		}
		return b, cleanup, nil
	}

	b, cleanup, err := launchWithRetry(ctx, launch, policy)
	if err != nil {
		return nil, nil, err
	}

	page, err := CreatePage(b)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("interactive page: %w", err)
	}
	return page, cleanup, nil
}
