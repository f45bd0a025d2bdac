package browser

import (
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// debugFlag marks a Chromium started under automation. Stray processes still
// carrying it after a failed launch hold the DevTools port and the profile
// lock hostage.
const debugFlag = "--remote-debugging-port"

var browserBinaries = []string{"chrome", "chromium", "headless_shell"}

// KillOrphanBrowsers kills browser processes launched for automation that
// nobody is managing anymore. Returns the number of processes killed.
func KillOrphanBrowsers(logger *slog.Logger) int {
	procs, err := process.Processes()
	if err != nil {
		logger.Warn("process scan failed", "error", err)
		return 0
	}

	killed := 0
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || !strings.Contains(cmdline, debugFlag) {
			continue
		}
		name, err := p.Name()
		if err != nil {
			continue
		}
		match := false
		for _, bin := range browserBinaries {
			if strings.Contains(strings.ToLower(name), bin) {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if err := p.Kill(); err != nil {
			logger.Debug("failed to kill orphan browser", "pid", p.Pid, "error", err)
			continue
		}
		logger.Info("killed orphan browser process", "pid", p.Pid, "name", name)
		killed++
	}
	return killed
}
