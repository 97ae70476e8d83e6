package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mirror backends accepted by MIRROR_BACKEND.
const (
	MirrorCookie = "cookie"
	MirrorRedis  = "redis"
	MirrorFile   = "file"
	MirrorMemory = "memory"
)

// Config holds runtime settings for the web and terminal clients.
type Config struct {
	Port             string   `yaml:"port"`              // HTTP listen port (e.g., "3000")
	APIBaseURL       string   `yaml:"api_base_url"`      // remote expenses API base (auth + expen routes)
	SessionKey       string   `yaml:"session_key"`       // cookie signing key
	CookieSecure     bool     `yaml:"cookie_secure"`     // Secure flag on the browser cookie
	CookieSameSite   string   `yaml:"cookie_samesite"`   // Strict/Lax/None
	LogDir           string   `yaml:"log_dir"`           // directory for application logs
	RedisURL         string   `yaml:"redis_url"`         // redis://host:port/db, used by the redis mirror
	MirrorBackend    string   `yaml:"mirror_backend"`    // cookie|redis|file|memory
	MirrorDir        string   `yaml:"mirror_dir"`        // directory of the file mirror
	MirrorKey        string   `yaml:"mirror_key"`        // seals the file mirror when set
	Profile          string   `yaml:"profile"`           // mirror namespace for the terminal client
	AllowedOrigins   []string `yaml:"allowed_origins"`   // allowed origins for CORS/CSRF origin check
	RequestTimeoutMs int      `yaml:"request_timeout_ms"` // per-call timeout for upstream requests
	OTLPEndpoint     string   `yaml:"otlp_endpoint"`      // OTLP/HTTP traces endpoint; empty disables export
}

// Load populates Config from environment variables with sane defaults.
// When CONFIG_FILE names a YAML document, its non-empty fields override the environment.
func Load() Config {
	cfg := Config{
		Port:             firstNonEmpty(os.Getenv("PORT"), "3000"),
		APIBaseURL:       strings.TrimSuffix(firstNonEmpty(os.Getenv("API_BASE_URL"), os.Getenv("BASE_URL"), "http://localhost:5000/api/v1"), "/"),
		SessionKey:       firstNonEmpty(os.Getenv("SESSION_KEY"), "change-this-session-key"),
		CookieSecure:     boolFromEnv("COOKIE_SECURE", false),
		CookieSameSite:   firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), "Lax"),
		LogDir:           firstNonEmpty(os.Getenv("LOG_DIR"), defaultLogDir()),
		RedisURL:         firstNonEmpty(os.Getenv("REDIS_URL"), "redis://localhost:6379/0"),
		MirrorBackend:    strings.ToLower(firstNonEmpty(os.Getenv("MIRROR_BACKEND"), MirrorCookie)),
		MirrorDir:        firstNonEmpty(os.Getenv("MIRROR_DIR"), defaultMirrorDir()),
		MirrorKey:        os.Getenv("MIRROR_KEY"),
		Profile:          firstNonEmpty(os.Getenv("PROFILE"), "default"),
		AllowedOrigins:   parseCSV(os.Getenv("ALLOWED_ORIGINS")),
		RequestTimeoutMs: intFromEnv("REQUEST_TIMEOUT_MS", 15000),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			// Config is loaded before logging is set up, so report on stderr.
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
		}
	}
	return cfg
}

// RequestTimeout converts RequestTimeoutMs to a duration, defaulting to 15s.
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	c.merge(file)
	return nil
}

// merge copies every non-zero field of o onto c.
func (c *Config) merge(o Config) {
	c.Port = firstNonEmpty(o.Port, c.Port)
	c.APIBaseURL = strings.TrimSuffix(firstNonEmpty(o.APIBaseURL, c.APIBaseURL), "/")
	c.SessionKey = firstNonEmpty(o.SessionKey, c.SessionKey)
	if o.CookieSecure {
		c.CookieSecure = true
	}
	c.CookieSameSite = firstNonEmpty(o.CookieSameSite, c.CookieSameSite)
	c.LogDir = firstNonEmpty(o.LogDir, c.LogDir)
	c.RedisURL = firstNonEmpty(o.RedisURL, c.RedisURL)
	c.MirrorBackend = strings.ToLower(firstNonEmpty(o.MirrorBackend, c.MirrorBackend))
	c.MirrorDir = firstNonEmpty(o.MirrorDir, c.MirrorDir)
	c.MirrorKey = firstNonEmpty(o.MirrorKey, c.MirrorKey)
	c.Profile = firstNonEmpty(o.Profile, c.Profile)
	if len(o.AllowedOrigins) > 0 {
		c.AllowedOrigins = o.AllowedOrigins
	}
	if o.RequestTimeoutMs > 0 {
		c.RequestTimeoutMs = o.RequestTimeoutMs
	}
	c.OTLPEndpoint = firstNonEmpty(o.OTLPEndpoint, c.OTLPEndpoint)
}

func defaultLogDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + string(os.PathSeparator) + "expense-tracker" + string(os.PathSeparator) + "log"
	}
	return "./log"
}

func defaultMirrorDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "expense-tracker"
	}
	return "./.expense-tracker"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
