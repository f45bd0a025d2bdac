// Package version exposes the build stamp injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Overridden via -ldflags at release builds; a plain `go build` reports dev.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the resolved build stamp.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Get resolves the build stamp, filling in the running Go toolchain version.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

// String renders the stamp for logs: version plus commit when one is known.
func (i Info) String() string {
	if i.Commit == "unknown" {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, i.Commit)
}
