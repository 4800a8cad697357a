package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all bridge configuration
type Config struct {
	// Browser endpoint
	ChromeHost string
	ChromePort int

	// Protocol behaviour
	Domains           []string
	CallTimeout       time.Duration
	PollInterval      time.Duration
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration

	// Surfaces
	HTTPPort string
	Stdio    bool

	// Local browser
	LaunchBrowser bool
	ChromiumPath  string

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	LogLevel    string
	Environment string
}

// Load reads the configuration from the environment. Unparseable values
// fall back to their defaults.
func Load() *Config {
	return &Config{
		ChromeHost: getEnv("CHROME_HOST", "localhost"),
		ChromePort: getEnvAsInt("CHROME_PORT", 9222),

		Domains:           getEnvAsList("CDP_DOMAINS", []string{"Page", "Runtime", "DOM", "Network", "Accessibility"}),
		CallTimeout:       getEnvAsDuration("CDP_CALL_TIMEOUT", 30*time.Second),
		PollInterval:      getEnvAsDuration("WAIT_POLL_INTERVAL", 100*time.Millisecond),
		NavigationTimeout: getEnvAsDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		IdleTimeout:       getEnvAsDuration("SESSION_IDLE_TIMEOUT", 0),

		HTTPPort: getEnv("HTTP_PORT", ""),
		Stdio:    getEnvAsBool("STDIO", true),

		LaunchBrowser: getEnvAsBool("LAUNCH_BROWSER", false),
		ChromiumPath:  getEnv("CHROMIUM_PATH", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 1*time.Hour),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENV", "development"),
	}
}

// Validate rejects configurations the bridge cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.ChromeHost == "" {
		errs = append(errs, errors.New("chrome host is required"))
	}
	if c.ChromePort < 1 || c.ChromePort > 65535 {
		errs = append(errs, fmt.Errorf("chrome port %d out of range", c.ChromePort))
	}
	if c.HTTPPort != "" {
		if port, err := strconv.Atoi(c.HTTPPort); err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("invalid HTTP port %q", c.HTTPPort))
		}
	}
	if !c.Stdio && c.HTTPPort == "" {
		errs = append(errs, errors.New("no surface enabled: enable stdio or set an HTTP port"))
	}
	if len(c.Domains) == 0 {
		errs = append(errs, errors.New("at least one protocol domain is required"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call timeout must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("wait poll interval must be positive"))
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, errors.New("idle timeout cannot be negative"))
	}
	if c.RedisAddr != "" && c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session TTL must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return duration
}

func getEnvAsBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
