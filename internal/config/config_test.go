package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

// helper to clear all AUTOSCALER_ env vars before each test
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"AUTOSCALER_WORKLOADS_FILE",
		"AUTOSCALER_WATCH_CONFIG",
		"AUTOSCALER_SYNC_PERIOD",
		"AUTOSCALER_METRIC_FRESHNESS",
		"AUTOSCALER_METRIC_CONCURRENCY",
		"AUTOSCALER_DRY_RUN",
		"AUTOSCALER_NAMESPACES",
		"AUTOSCALER_PROMETHEUS_URL",
		"AUTOSCALER_PROMETHEUS_TIMEOUT",
		"AUTOSCALER_INFORMER_RESYNC",
		"AUTOSCALER_INFORMER_SYNC_TIMEOUT",
		"AUTOSCALER_CONTROLLER_ID",
		"AUTOSCALER_HEALTH_PORT",
		"AUTOSCALER_AUDIT_URL",
		"AUTOSCALER_AUDIT_API_KEY",
		"AUTOSCALER_AUDIT_FLUSH_INTERVAL",
		"AUTOSCALER_AUDIT_MAX_RETRIES",
		"AUTOSCALER_AUDIT_BUFFER_SIZE",
		"AUTOSCALER_AUDIT_COMPRESSION_LEVEL",
		"AUTOSCALER_AUDIT_REQUEST_TIMEOUT",
		"AUTOSCALER_ALLOW_INSECURE",
		"AUTOSCALER_DEBUG_ENDPOINTS",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func validConfig() Config {
	return Config{
		WorkloadsFile:         "/etc/autoscaler/workloads.yaml",
		SyncPeriod:            15 * time.Second,
		MetricFreshness:       2 * time.Minute,
		MetricConcurrency:     4,
		PrometheusTimeout:     10 * time.Second,
		HealthPort:            8080,
		AuditFlushInterval:    10 * time.Second,
		AuditMaxRetries:       3,
		AuditBufferSize:       1024,
		AuditCompressionLevel: 3,
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.WorkloadsFile != "/etc/autoscaler/workloads.yaml" {
		t.Errorf("WorkloadsFile = %q, want default path", cfg.WorkloadsFile)
	}
	if cfg.ControllerID == "" {
		t.Error("ControllerID should be auto-generated when empty")
	}
	if cfg.SyncPeriod != 15*time.Second {
		t.Errorf("SyncPeriod = %v, want 15s", cfg.SyncPeriod)
	}
	if cfg.MetricFreshness != 2*time.Minute {
		t.Errorf("MetricFreshness = %v, want 2m", cfg.MetricFreshness)
	}
	if cfg.MetricConcurrency != 4 {
		t.Errorf("MetricConcurrency = %d, want 4", cfg.MetricConcurrency)
	}
	if cfg.PrometheusTimeout != 10*time.Second {
		t.Errorf("PrometheusTimeout = %v, want 10s", cfg.PrometheusTimeout)
	}
	if cfg.InformerResyncPeriod != 5*time.Minute {
		t.Errorf("InformerResyncPeriod = %v, want 5m", cfg.InformerResyncPeriod)
	}
	if cfg.InformerSyncTimeout != 2*time.Minute {
		t.Errorf("InformerSyncTimeout = %v, want 2m", cfg.InformerSyncTimeout)
	}
	if cfg.HealthPort != 8080 {
		t.Errorf("HealthPort = %d, want 8080", cfg.HealthPort)
	}
	if cfg.AuditFlushInterval != 10*time.Second {
		t.Errorf("AuditFlushInterval = %v, want 10s", cfg.AuditFlushInterval)
	}
	if cfg.AuditMaxRetries != 3 {
		t.Errorf("AuditMaxRetries = %d, want 3", cfg.AuditMaxRetries)
	}
	if cfg.AuditBufferSize != 1024 {
		t.Errorf("AuditBufferSize = %d, want 1024", cfg.AuditBufferSize)
	}
	if cfg.DryRun || cfg.WatchConfig || cfg.AuditEnabled() {
		t.Error("DryRun, WatchConfig and audit should be off by default")
	}
	if cfg.Namespaces != nil {
		t.Errorf("Namespaces = %v, want nil", cfg.Namespaces)
	}
}

func TestLoad_AllEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTOSCALER_WORKLOADS_FILE", "/tmp/w.yaml")
	t.Setenv("AUTOSCALER_WATCH_CONFIG", "true")
	t.Setenv("AUTOSCALER_SYNC_PERIOD", "30s")
	t.Setenv("AUTOSCALER_METRIC_FRESHNESS", "90")
	t.Setenv("AUTOSCALER_METRIC_CONCURRENCY", "8")
	t.Setenv("AUTOSCALER_DRY_RUN", "true")
	t.Setenv("AUTOSCALER_NAMESPACES", "prod, staging ,")
	t.Setenv("AUTOSCALER_PROMETHEUS_URL", "https://prom.example.com")
	t.Setenv("AUTOSCALER_CONTROLLER_ID", "ctrl-1")
	t.Setenv("AUTOSCALER_HEALTH_PORT", "9090")
	t.Setenv("AUTOSCALER_AUDIT_URL", "https://audit.example.com/v1/events")
	t.Setenv("AUTOSCALER_AUDIT_API_KEY", "secret")

	cfg := Load()

	if cfg.WorkloadsFile != "/tmp/w.yaml" {
		t.Errorf("WorkloadsFile = %q", cfg.WorkloadsFile)
	}
	if !cfg.WatchConfig || !cfg.DryRun {
		t.Error("WatchConfig and DryRun should be true")
	}
	if cfg.SyncPeriod != 30*time.Second {
		t.Errorf("SyncPeriod = %v, want 30s", cfg.SyncPeriod)
	}
	if cfg.MetricFreshness != 90*time.Second {
		t.Errorf("MetricFreshness = %v, want 90s", cfg.MetricFreshness)
	}
	if cfg.MetricConcurrency != 8 {
		t.Errorf("MetricConcurrency = %d, want 8", cfg.MetricConcurrency)
	}
	if !reflect.DeepEqual(cfg.Namespaces, []string{"prod", "staging"}) {
		t.Errorf("Namespaces = %v", cfg.Namespaces)
	}
	if cfg.PrometheusURL != "https://prom.example.com" {
		t.Errorf("PrometheusURL = %q", cfg.PrometheusURL)
	}
	if cfg.ControllerID != "ctrl-1" {
		t.Errorf("ControllerID = %q, want ctrl-1", cfg.ControllerID)
	}
	if cfg.HealthPort != 9090 {
		t.Errorf("HealthPort = %d, want 9090", cfg.HealthPort)
	}
	if !cfg.AuditEnabled() || cfg.AuditAPIKey != "secret" {
		t.Error("audit should be enabled with the given key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTOSCALER_SYNC_PERIOD", "soon")
	t.Setenv("AUTOSCALER_METRIC_CONCURRENCY", "many")
	t.Setenv("AUTOSCALER_DRY_RUN", "maybe")

	cfg := Load()
	if cfg.SyncPeriod != 15*time.Second {
		t.Errorf("SyncPeriod = %v, want default 15s", cfg.SyncPeriod)
	}
	if cfg.MetricConcurrency != 4 {
		t.Errorf("MetricConcurrency = %d, want default 4", cfg.MetricConcurrency)
	}
	if cfg.DryRun {
		t.Error("DryRun should fall back to false")
	}
}

func TestValidate_Valid(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error for default config, got: %v", err)
	}
}

func TestValidate_SyncPeriodTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.SyncPeriod = 500 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for SyncPeriod < 1s, got nil")
	}
}

func TestValidate_BadConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.MetricConcurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for MetricConcurrency 0, got nil")
	}
}

func TestValidate_HTTPSRequired(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"prometheus": func(c *Config) { c.PrometheusURL = "http://prometheus:9090" },
		"audit":      func(c *Config) { c.AuditURL = "http://audit.local/events" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error for http:// URL without AllowInsecure")
			}

			cfg.AllowInsecure = true
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error with AllowInsecure=true, got: %v", err)
			}
		})
	}
}

func TestValidate_AuditSettingsOnlyCheckedWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.AuditCompressionLevel = 9
	if err := cfg.Validate(); err != nil {
		t.Fatalf("audit disabled, expected no error, got: %v", err)
	}

	cfg.AuditURL = "https://audit.example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for AuditCompressionLevel 9, got nil")
	}
}

func TestValidate_BadHealthPort(t *testing.T) {
	cfg := validConfig()
	cfg.HealthPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for HealthPort 70000, got nil")
	}
}
