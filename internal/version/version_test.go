package version

import (
	"strings"
	"testing"
)

func TestGetFillsGoVersion(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Error("Version must never be empty")
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q, want a go toolchain version", info.GoVersion)
	}
}

func TestString(t *testing.T) {
	if got := (Info{Version: "dev", Commit: "unknown"}).String(); got != "dev" {
		t.Errorf("String() = %q, want dev", got)
	}
	if got := (Info{Version: "v1.2.0", Commit: "abc1234"}).String(); got != "v1.2.0 (abc1234)" {
		t.Errorf("String() = %q", got)
	}
}
