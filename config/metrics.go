package config

import (
	"fmt"
	"time"
)

// Supported metrics engines.
const (
	MetricsTypeNone       = "none"
	MetricsTypePrometheus = "prometheus"
	MetricsTypeGoMetrics  = "gometrics"
)

type Metrics struct {
	Type       string            `mapstructure:"type"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

type PrometheusMetrics struct {
	Port             int    `mapstructure:"port"`
	Namespace        string `mapstructure:"namespace"`
	Subsystem        string `mapstructure:"subsystem"`
	TimeoutMillisRaw int    `mapstructure:"timeout_ms"`
}

func (cfg *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMillisRaw) * time.Millisecond
}

func (cfg *Metrics) validate(errs []error) []error {
	switch cfg.Type {
	case MetricsTypeNone, MetricsTypeGoMetrics:
	case MetricsTypePrometheus:
		if cfg.Prometheus.Port <= 0 {
			errs = append(errs, fmt.Errorf("metrics.prometheus.port must be positive when metrics.type is %s", MetricsTypePrometheus))
		}
	default:
		errs = append(errs, fmt.Errorf("metrics.type %q is not one of %s, %s, %s", cfg.Type, MetricsTypeNone, MetricsTypePrometheus, MetricsTypeGoMetrics))
	}
	return errs
}
