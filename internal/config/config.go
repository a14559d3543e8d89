package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all process-level controller settings. Workload declarations
// live in a separate file, see LoadWorkloads.
type Config struct {
	WorkloadsFile     string
	WatchConfig       bool
	SyncPeriod        time.Duration
	MetricFreshness   time.Duration
	MetricConcurrency int
	DryRun            bool
	Namespaces        []string // empty watches all namespaces

	PrometheusURL     string
	PrometheusTimeout time.Duration

	InformerResyncPeriod time.Duration
	InformerSyncTimeout  time.Duration

	ControllerID string
	Version      string
	HealthPort   int

	// Audit shipping, disabled when AuditURL is empty.
	AuditURL              string
	AuditAPIKey           string
	AuditFlushInterval    time.Duration
	AuditMaxRetries       int
	AuditBufferSize       int
	AuditCompressionLevel int
	AuditRequestTimeout   time.Duration

	// Security
	AllowInsecure  bool // AUTOSCALER_ALLOW_INSECURE, default: false, allows http:// audit and Prometheus URLs
	DebugEndpoints bool // AUTOSCALER_DEBUG_ENDPOINTS, default: false, enables pprof/debug on health port
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values.
func Load() Config {
	cfg := Config{
		WorkloadsFile:     envOrDefault("AUTOSCALER_WORKLOADS_FILE", "/etc/autoscaler/workloads.yaml"),
		WatchConfig:       parseBool("AUTOSCALER_WATCH_CONFIG", false),
		SyncPeriod:        parseDuration("AUTOSCALER_SYNC_PERIOD", 15*time.Second),
		MetricFreshness:   parseDuration("AUTOSCALER_METRIC_FRESHNESS", 2*time.Minute),
		MetricConcurrency: parseInt("AUTOSCALER_METRIC_CONCURRENCY", 4),
		DryRun:            parseBool("AUTOSCALER_DRY_RUN", false),
		Namespaces:        parseStringSlice("AUTOSCALER_NAMESPACES"),

		PrometheusURL:     os.Getenv("AUTOSCALER_PROMETHEUS_URL"),
		PrometheusTimeout: parseDuration("AUTOSCALER_PROMETHEUS_TIMEOUT", 10*time.Second),

		InformerResyncPeriod: parseDuration("AUTOSCALER_INFORMER_RESYNC", 5*time.Minute),
		InformerSyncTimeout:  parseDuration("AUTOSCALER_INFORMER_SYNC_TIMEOUT", 2*time.Minute),

		ControllerID: os.Getenv("AUTOSCALER_CONTROLLER_ID"),
		HealthPort:   parseInt("AUTOSCALER_HEALTH_PORT", 8080),

		AuditURL:              os.Getenv("AUTOSCALER_AUDIT_URL"),
		AuditAPIKey:           os.Getenv("AUTOSCALER_AUDIT_API_KEY"),
		AuditFlushInterval:    parseDuration("AUTOSCALER_AUDIT_FLUSH_INTERVAL", 10*time.Second),
		AuditMaxRetries:       parseInt("AUTOSCALER_AUDIT_MAX_RETRIES", 3),
		AuditBufferSize:       parseInt("AUTOSCALER_AUDIT_BUFFER_SIZE", 1024),
		AuditCompressionLevel: parseInt("AUTOSCALER_AUDIT_COMPRESSION_LEVEL", 3),
		AuditRequestTimeout:   parseDuration("AUTOSCALER_AUDIT_REQUEST_TIMEOUT", 30*time.Second),
	}

	if cfg.ControllerID == "" {
		cfg.ControllerID = uuid.New().String()
	}

	cfg.AllowInsecure = parseBool("AUTOSCALER_ALLOW_INSECURE", false)
	cfg.DebugEndpoints = parseBool("AUTOSCALER_DEBUG_ENDPOINTS", false)

	return cfg
}

// AuditEnabled reports whether decisions are shipped to an audit endpoint.
func (c Config) AuditEnabled() bool {
	return c.AuditURL != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseStringSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
