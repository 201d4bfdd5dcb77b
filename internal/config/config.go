package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	CarrierURL        string
	CarrierName       string
	TrackingInputSel  string
	SubmitButtonSel   string
	ResultTableSel    string
	ResultRowSel      string
	NotFoundBannerSel string

	BrowserEngine    string
	BrowserBin       string
	BrowserHeadless  bool
	BrowserNoSandbox bool
	BrowserUserAgent string
	BlockResources   bool

	NavTimeout   time.Duration
	WaitTimeout  time.Duration
	MaxSessions  int
	QueueTimeout time.Duration

	CORSAllowedOrigins []string
	TrackRateLimit     string
	MaxBodyBytes       int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		CarrierURL:        strings.TrimSpace(k.String("CARRIER_URL")),
		CarrierName:       valueOrDefault(k.String("CARRIER_NAME"), "carrier"),
		TrackingInputSel:  valueOrDefault(k.String("CARRIER_SEL_INPUT"), "input#trackingNumber"),
		SubmitButtonSel:   valueOrDefault(k.String("CARRIER_SEL_SUBMIT"), "button.track-submit"),
		ResultTableSel:    valueOrDefault(k.String("CARRIER_SEL_RESULT"), "table.track-result"),
		ResultRowSel:      valueOrDefault(k.String("CARRIER_SEL_ROW"), "table.track-result tbody tr"),
		NotFoundBannerSel: valueOrDefault(k.String("CARRIER_SEL_NOT_FOUND"), "div.track-empty"),

		BrowserEngine:    valueOrDefault(strings.ToLower(k.String("BROWSER_ENGINE")), "rod"),
		BrowserBin:       strings.TrimSpace(k.String("BROWSER_BIN")),
		BrowserHeadless:  parseBoolDefault(k.String("BROWSER_HEADLESS"), true),
		BrowserNoSandbox: parseBoolDefault(k.String("BROWSER_NO_SANDBOX"), true),
		BrowserUserAgent: valueOrDefault(k.String("BROWSER_USER_AGENT"),
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"),
		BlockResources: parseBool(k.String("BROWSER_BLOCK_RESOURCES")),

		NavTimeout:   parseDuration(k.String("SCRAPE_NAV_TIMEOUT"), "15s"),
		WaitTimeout:  parseDuration(k.String("SCRAPE_WAIT_TIMEOUT"), "10s"),
		MaxSessions:  parseInt(k.String("BROWSER_MAX_SESSIONS"), 4),
		QueueTimeout: parseDuration(k.String("BROWSER_QUEUE_TIMEOUT"), "5s"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TrackRateLimit:     valueOrDefault(k.String("TRACK_RATE_LIMIT"), "30-M"),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 4096)),
	}

	if cfg.CarrierURL == "" {
		return nil, errors.New("CARRIER_URL is required")
	}
	switch cfg.BrowserEngine {
	case "rod", "playwright":
	default:
		return nil, fmt.Errorf("unsupported BROWSER_ENGINE: %s", cfg.BrowserEngine)
	}
	if cfg.MaxSessions <= 0 {
		return nil, errors.New("BROWSER_MAX_SESSIONS must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
