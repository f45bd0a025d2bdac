package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// lockFileName is Chromium's profile lock. Its presence means a browser
	// currently has the profile open, which implies a logged-in session is
	// live (and that the profile must not be opened twice).
	lockFileName = "SingletonLock"

	// cookieStorePath is the credential store inside the profile, relative to
	// the profile root.
	cookieStorePath = "Default/Cookies"

	// minCookieStoreBytes is the smallest cookie store we accept as evidence
	// of a logged-in session. A fresh, never-authenticated profile stays
	// below this.
	minCookieStoreBytes = 20 * 1024

	lockWaitTimeout  = 10 * time.Second
	lockPollInterval = 500 * time.Millisecond
)

// Profile is the on-disk browser profile whose presence and size act as a
// proxy for "is a user logged in". The heuristic is racy around the moment a
// browser opens or closes the profile; callers treat it as advisory, not
// authoritative.
type Profile struct {
	Dir    string
	logger *slog.Logger
}

// NewProfile creates a Profile rooted at dir.
func NewProfile(dir string, logger *slog.Logger) *Profile {
	return &Profile{Dir: dir, logger: logger}
}

// Exists reports whether the profile directory is present on disk.
func (p *Profile) Exists() bool {
	info, err := os.Stat(p.Dir)
	return err == nil && info.IsDir()
}

// Locked reports whether a browser currently has the profile open.
func (p *Profile) Locked() bool {
	// The lock is a symlink on Linux; Lstat sees it even when the target is
	// gone.
	_, err := os.Lstat(filepath.Join(p.Dir, lockFileName))
	return err == nil
}

// IsLoggedIn infers login state from the profile directory:
// absent directory means not logged in; a live lock file means a browser has
// the profile open and is treated as logged in; a cookie store below the
// minimum size means not logged in.
func (p *Profile) IsLoggedIn() bool {
	if !p.Exists() {
		return false
	}
	if p.Locked() {
		return true
	}
	info, err := os.Stat(filepath.Join(p.Dir, filepath.FromSlash(cookieStorePath)))
	if err != nil {
		return false
	}
	return info.Size() >= minCookieStoreBytes
}

// Remove deletes the profile directory. If the profile is locked it waits for
// the lock to clear (bounded), then deletes anyway; if the standard removal
// fails due to residual locks it escalates to an OS-level recursive delete.
func (p *Profile) Remove(ctx context.Context) error {
	if !p.Exists() {
		return nil
	}

	deadline := time.Now().Add(lockWaitTimeout)
	for p.Locked() && time.Now().Before(deadline) {
		p.logger.Debug("waiting for profile lock release", "dir", p.Dir)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
	if p.Locked() {
		p.logger.Warn("profile lock still present, forcing removal", "dir", p.Dir)
	}

	if err := os.RemoveAll(p.Dir); err == nil {
		p.logger.Info("profile removed", "dir", p.Dir)
		return nil
	} else {
		p.logger.Warn("standard profile removal failed, escalating", "dir", p.Dir, "error", err)
	}

	if out, err := exec.CommandContext(ctx, "rm", "-rf", p.Dir).CombinedOutput(); err != nil {
		return fmt.Errorf("forced profile removal: %w: %s", err, out)
	}
	p.logger.Info("profile removed (forced)", "dir", p.Dir)
	return nil
}
