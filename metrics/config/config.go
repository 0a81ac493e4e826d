package config

import (
	mainConfig "github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/metrics"
	prometheusmetrics "github.com/prebid/adstxt-validator/metrics/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance.
func NewMetricsEngine(cfg *mainConfig.Configuration) *DetailedMetricsEngine {
	returnEngine := DetailedMetricsEngine{}

	switch cfg.Metrics.Type {
	case mainConfig.MetricsTypePrometheus:
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus)
		returnEngine.MetricsEngine = returnEngine.PrometheusMetrics
	case mainConfig.MetricsTypeGoMetrics:
		returnEngine.GoMetrics = metrics.NewMetrics(gometrics.NewPrefixedRegistry("adstxt."))
		returnEngine.MetricsEngine = returnEngine.GoMetrics
	default:
		returnEngine.MetricsEngine = &metrics.NilMetricsEngine{}
	}

	return &returnEngine
}

// DetailedMetricsEngine is a MetricsEngine that preserves links to the underlying backends,
// so the server can expose their registries.
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}
