package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.WorkloadsFile == "" {
		return fmt.Errorf("config: AUTOSCALER_WORKLOADS_FILE is required")
	}

	if c.SyncPeriod < time.Second {
		return fmt.Errorf("config: SyncPeriod must be >= 1s, got %v", c.SyncPeriod)
	}

	if c.MetricFreshness < 0 {
		return fmt.Errorf("config: MetricFreshness must be >= 0, got %v", c.MetricFreshness)
	}

	if c.MetricConcurrency < 1 {
		return fmt.Errorf("config: MetricConcurrency must be >= 1, got %d", c.MetricConcurrency)
	}

	if c.PrometheusURL != "" {
		if err := checkScheme("AUTOSCALER_PROMETHEUS_URL", c.PrometheusURL, c.AllowInsecure); err != nil {
			return err
		}
		if c.PrometheusTimeout <= 0 {
			return fmt.Errorf("config: PrometheusTimeout must be > 0, got %v", c.PrometheusTimeout)
		}
	}

	if c.HealthPort < 1 || c.HealthPort > 65535 {
		return fmt.Errorf("config: HealthPort must be 1-65535, got %d", c.HealthPort)
	}

	if c.AuditEnabled() {
		if err := checkScheme("AUTOSCALER_AUDIT_URL", c.AuditURL, c.AllowInsecure); err != nil {
			return err
		}
		if c.AuditFlushInterval < time.Second {
			return fmt.Errorf("config: AuditFlushInterval must be >= 1s, got %v", c.AuditFlushInterval)
		}
		if c.AuditMaxRetries < 0 {
			return fmt.Errorf("config: AuditMaxRetries must be >= 0, got %d", c.AuditMaxRetries)
		}
		if c.AuditBufferSize < 1 {
			return fmt.Errorf("config: AuditBufferSize must be >= 1, got %d", c.AuditBufferSize)
		}
		if c.AuditCompressionLevel < 1 || c.AuditCompressionLevel > 4 {
			return fmt.Errorf("config: AuditCompressionLevel must be 1-4, got %d", c.AuditCompressionLevel)
		}
	}

	return nil
}

func checkScheme(key, url string, allowInsecure bool) error {
	if strings.HasPrefix(url, "https://") {
		return nil
	}
	if allowInsecure && strings.HasPrefix(url, "http://") {
		return nil
	}
	return fmt.Errorf("config: %s must use https:// (got %q); set AUTOSCALER_ALLOW_INSECURE=true to override", key, url)
}
