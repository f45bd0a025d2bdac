// Package config provides configuration management for the batch query service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the batch query service.
type Config struct {
	// Server settings
	Port     int
	LogLevel string

	// Target application
	TargetURL     string
	InternalHosts []string // hosts excluded from extracted sources (the app itself + auth providers)

	// Browser settings
	ChromePath    string
	ProfileDir    string // persistent user-data-dir holding the authenticated session
	Headless      bool
	LaunchTimeout time.Duration
	ScreenshotDir string

	// Scrape settings
	NavTimeout        time.Duration
	ReadinessAttempts int
	ReadinessDelay    time.Duration
	GenStartTimeout   time.Duration // wait for the stop control to appear
	GenTimeout        time.Duration // wait for the stop control to disappear
	SettleDelay       time.Duration
	MinAnswerChars    int

	// Batch settings
	JitterMin     time.Duration
	JitterMax     time.Duration
	ProgressGrace time.Duration

	// Login flow settings
	LoginPollInterval time.Duration
	LoginTimeout      time.Duration
	LoginFlushGrace   time.Duration

	// Persistence
	DBPath string

	// Authentication
	APISecret            string // HMAC secret for signed request headers
	AllowUnauthenticated bool

	// Shutdown
	IdleTimeout time.Duration
}

// Load creates a Config from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnvInt("PORT", 8377),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TargetURL:     getEnv("TARGET_URL", "https://chatgpt.com"),
		InternalHosts: getEnvList("INTERNAL_HOSTS", defaultInternalHosts),

		ChromePath:    getEnv("CHROME_PATH", ""),
		ProfileDir:    getEnv("PROFILE_DIR", "./chrome-profile"),
		Headless:      getEnvBool("HEADLESS", true),
		LaunchTimeout: getEnvDuration("LAUNCH_TIMEOUT", 30*time.Second),
		ScreenshotDir: getEnv("SCREENSHOT_DIR", "./screenshots"),

		NavTimeout:        getEnvDuration("NAV_TIMEOUT", 45*time.Second),
		ReadinessAttempts: getEnvInt("READINESS_ATTEMPTS", 10),
		ReadinessDelay:    getEnvDuration("READINESS_DELAY", time.Second),
		GenStartTimeout:   getEnvDuration("GEN_START_TIMEOUT", 15*time.Second),
		GenTimeout:        getEnvDuration("GEN_TIMEOUT", 2*time.Minute),
		SettleDelay:       getEnvDuration("SETTLE_DELAY", 2*time.Second),
		MinAnswerChars:    getEnvInt("MIN_ANSWER_CHARS", 1),

		JitterMin:     getEnvDuration("JITTER_MIN", 5*time.Second),
		JitterMax:     getEnvDuration("JITTER_MAX", 10*time.Second),
		ProgressGrace: getEnvDuration("PROGRESS_GRACE", 30*time.Second),

		LoginPollInterval: getEnvDuration("LOGIN_POLL_INTERVAL", 5*time.Second),
		LoginTimeout:      getEnvDuration("LOGIN_TIMEOUT", 10*time.Minute),
		LoginFlushGrace:   getEnvDuration("LOGIN_FLUSH_GRACE", 3*time.Second),

		DBPath: getEnv("DB_PATH", "./batchquery.db"),

		APISecret:            getEnv("API_SECRET", ""),
		AllowUnauthenticated: getEnvBool("ALLOW_UNAUTHENTICATED", false),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}
}

// defaultInternalHosts are hosts never reported as answer sources: the target
// application itself plus the auth providers its login flow bounces through.
var defaultInternalHosts = []string{
	"chatgpt.com",
	"chat.openai.com",
	"openai.com",
	"auth.openai.com",
	"auth0.openai.com",
	"accounts.google.com",
	"appleid.apple.com",
	"login.microsoftonline.com",
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
