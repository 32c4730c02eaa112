// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, portal automation, vision
// extraction, screenshot storage, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "refund-monitor")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ChecksConfig configures the portal automation pipeline.
type ChecksConfig struct {
	FederalURL string // CHECKS_FEDERAL_URL: federal lookup form
	StateURL   string // CHECKS_STATE_URL: state lookup form

	BrowserPath string // CHECKS_BROWSER_PATH: Chrome/Chromium binary override
	Headless    bool   // CHECKS_HEADLESS

	NavTimeout   time.Duration // per navigation/wait step
	CheckTimeout time.Duration // whole browser session
	RetryDelay   time.Duration // delay before the single retry

	// FederalAutoApply / StateAutoApply select per track whether a mapped
	// status change is applied immediately or held for human approval.
	FederalAutoApply bool
	StateAutoApply   bool
}

// VisionConfig configures the vision-model extraction path. When disabled or
// unconfigured, extraction uses the deterministic text fallback only.
type VisionConfig struct {
	Enabled bool          // VISION_ENABLED
	APIKey  string        // VISION_API_KEY
	BaseURL string        // VISION_BASE_URL (chat-completions endpoint)
	Model   string        // VISION_MODEL
	Timeout time.Duration // VISION_TIMEOUT
}

// StorageConfig configures S3-compatible screenshot storage. An empty
// endpoint disables uploads; checks then run without screenshot references.
type StorageConfig struct {
	Endpoint      string // STORAGE_ENDPOINT
	AccessKey     string // STORAGE_ACCESS_KEY
	SecretKey     string // STORAGE_SECRET_KEY
	Bucket        string // STORAGE_BUCKET
	UseSSL        bool   // STORAGE_USE_SSL
	UploadTimeout time.Duration
}

// AlarmsConfig configures the day thresholds the alarm engine evaluates.
type AlarmsConfig struct {
	FederalInProcessDays int // ALARM_FEDERAL_IN_PROCESS_DAYS
	StateInProcessDays   int // ALARM_STATE_IN_PROCESS_DAYS
	VerificationDays     int // ALARM_VERIFICATION_DAYS
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// EncryptionKey decrypts case identifier ciphertexts (hex, 32 bytes).
	EncryptionKey string

	// Pipeline
	Checks  ChecksConfig
	Vision  VisionConfig
	Storage StorageConfig
	Alarms  AlarmsConfig

	// NotifyWebhookURL receives status-change notifications when set;
	// otherwise notifications only reach the log.
	NotifyWebhookURL string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:        getenv("DB_PATH", "refunds.db"),
		EncryptionKey: getenv("ENCRYPTION_KEY", ""),

		Checks: ChecksConfig{
			FederalURL:       getenv("CHECKS_FEDERAL_URL", ""),
			StateURL:         getenv("CHECKS_STATE_URL", ""),
			BrowserPath:      getenv("CHECKS_BROWSER_PATH", ""),
			Headless:         getbool("CHECKS_HEADLESS", true),
			NavTimeout:       getdur("CHECKS_NAV_TIMEOUT", 30*time.Second),
			CheckTimeout:     getdur("CHECKS_TIMEOUT", 120*time.Second),
			RetryDelay:       getdur("CHECKS_RETRY_DELAY", 5*time.Second),
			FederalAutoApply: getbool("CHECKS_FEDERAL_AUTO_APPLY", true),
			StateAutoApply:   getbool("CHECKS_STATE_AUTO_APPLY", false),
		},

		Vision: VisionConfig{
			Enabled: getbool("VISION_ENABLED", false),
			APIKey:  getenv("VISION_API_KEY", ""),
			BaseURL: getenv("VISION_BASE_URL", ""),
			Model:   getenv("VISION_MODEL", ""),
			Timeout: getdur("VISION_TIMEOUT", 30*time.Second),
		},

		Storage: StorageConfig{
			Endpoint:      getenv("STORAGE_ENDPOINT", ""),
			AccessKey:     getenv("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getenv("STORAGE_SECRET_KEY", ""),
			Bucket:        getenv("STORAGE_BUCKET", "refund-checks"),
			UseSSL:        getbool("STORAGE_USE_SSL", false),
			UploadTimeout: getdur("STORAGE_UPLOAD_TIMEOUT", 15*time.Second),
		},

		Alarms: AlarmsConfig{
			FederalInProcessDays: getint("ALARM_FEDERAL_IN_PROCESS_DAYS", 25),
			StateInProcessDays:   getint("ALARM_STATE_IN_PROCESS_DAYS", 50),
			VerificationDays:     getint("ALARM_VERIFICATION_DAYS", 63),
		},

		NotifyWebhookURL: getenv("NOTIFY_WEBHOOK_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "refund-monitor"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Checks.NavTimeout <= 0 || cfg.Checks.CheckTimeout <= 0 {
		return cfg, errors.New("check timeouts must be positive durations")
	}
	if cfg.Checks.RetryDelay < 0 {
		return cfg, errors.New("CHECKS_RETRY_DELAY must be >= 0")
	}
	if cfg.Vision.Enabled && strings.TrimSpace(cfg.Vision.APIKey) == "" {
		return cfg, errors.New("VISION_API_KEY required when VISION_ENABLED")
	}
	if cfg.Vision.Timeout <= 0 {
		return cfg, errors.New("VISION_TIMEOUT must be > 0")
	}
	if cfg.Storage.Endpoint != "" && strings.TrimSpace(cfg.Storage.Bucket) == "" {
		return cfg, errors.New("STORAGE_BUCKET required when STORAGE_ENDPOINT is set")
	}
	if cfg.Alarms.FederalInProcessDays <= 0 || cfg.Alarms.StateInProcessDays <= 0 || cfg.Alarms.VerificationDays <= 0 {
		return cfg, errors.New("alarm day thresholds must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
