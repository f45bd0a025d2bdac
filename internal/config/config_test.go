package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	envVars := []string{
		"PORT", "LOG_LEVEL", "TARGET_URL", "INTERNAL_HOSTS", "CHROME_PATH",
		"PROFILE_DIR", "HEADLESS", "LAUNCH_TIMEOUT", "SCREENSHOT_DIR",
		"NAV_TIMEOUT", "READINESS_ATTEMPTS", "READINESS_DELAY",
		"GEN_START_TIMEOUT", "GEN_TIMEOUT", "SETTLE_DELAY", "MIN_ANSWER_CHARS",
		"JITTER_MIN", "JITTER_MAX", "PROGRESS_GRACE",
		"LOGIN_POLL_INTERVAL", "LOGIN_TIMEOUT", "LOGIN_FLUSH_GRACE",
		"DB_PATH", "API_SECRET", "ALLOW_UNAUTHENTICATED", "IDLE_TIMEOUT",
	}

	origEnv := make(map[string]string)
	for _, v := range envVars {
		origEnv[v] = os.Getenv(v)
	}
	defer func() {
		for k, v := range origEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		for _, v := range envVars {
			os.Unsetenv(v)
		}

		cfg := Load()

		if cfg.Port != 8377 {
			t.Errorf("Port = %d, want 8377", cfg.Port)
		}
		if cfg.TargetURL != "https://chatgpt.com" {
			t.Errorf("TargetURL = %q, want chatgpt.com", cfg.TargetURL)
		}
		if !cfg.Headless {
			t.Error("Headless should default to true")
		}
		if cfg.ReadinessAttempts != 10 {
			t.Errorf("ReadinessAttempts = %d, want 10", cfg.ReadinessAttempts)
		}
		if cfg.GenTimeout != 2*time.Minute {
			t.Errorf("GenTimeout = %v, want 2m", cfg.GenTimeout)
		}
		if cfg.JitterMin != 5*time.Second || cfg.JitterMax != 10*time.Second {
			t.Errorf("jitter window = [%v, %v], want [5s, 10s]", cfg.JitterMin, cfg.JitterMax)
		}
		// Terse answers ("4") are legitimate; only empty reads are rejected.
		if cfg.MinAnswerChars != 1 {
			t.Errorf("MinAnswerChars = %d, want 1", cfg.MinAnswerChars)
		}
		if len(cfg.InternalHosts) == 0 {
			t.Fatal("InternalHosts should have defaults")
		}
		found := false
		for _, h := range cfg.InternalHosts {
			if h == "chatgpt.com" {
				found = true
			}
		}
		if !found {
			t.Error("InternalHosts should include chatgpt.com")
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		os.Setenv("PORT", "9000")
		os.Setenv("HEADLESS", "false")
		os.Setenv("GEN_TIMEOUT", "90s")
		os.Setenv("INTERNAL_HOSTS", "example.com, other.com")

		cfg := Load()

		if cfg.Port != 9000 {
			t.Errorf("Port = %d, want 9000", cfg.Port)
		}
		if cfg.Headless {
			t.Error("Headless should be false")
		}
		if cfg.GenTimeout != 90*time.Second {
			t.Errorf("GenTimeout = %v, want 90s", cfg.GenTimeout)
		}
		if len(cfg.InternalHosts) != 2 || cfg.InternalHosts[0] != "example.com" || cfg.InternalHosts[1] != "other.com" {
			t.Errorf("InternalHosts = %v", cfg.InternalHosts)
		}
	})

	t.Run("invalid values fall back to defaults", func(t *testing.T) {
		os.Setenv("PORT", "not-a-number")
		os.Setenv("GEN_TIMEOUT", "soon")

		cfg := Load()

		if cfg.Port != 8377 {
			t.Errorf("Port = %d, want default 8377", cfg.Port)
		}
		if cfg.GenTimeout != 2*time.Minute {
			t.Errorf("GenTimeout = %v, want default 2m", cfg.GenTimeout)
		}
	})
}
