package prometheusmetrics

import (
	"strconv"
	"time"

	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	connectionsClosed prometheus.Counter
	connectionsError  *prometheus.CounterVec
	connectionsOpened prometheus.Counter
	requests          *prometheus.CounterVec
	requestsTimer     *prometheus.HistogramVec
	fetches           *prometheus.CounterVec
	fetchTimer        *prometheus.HistogramVec
	fetchRetries      *prometheus.CounterVec
	cacheResults      *prometheus.CounterVec
	coordinatorState  *prometheus.GaugeVec
	validations       *prometheus.CounterVec
	validationTimer   prometheus.Histogram
	validatedEntries  prometheus.Histogram
}

const (
	cacheResultLabel     = "cache_result"
	connectionErrorLabel = "connection_error"
	documentTypeLabel    = "document_type"
	endpointLabel        = "endpoint"
	fetchStatusLabel     = "fetch_status"
	stateLabel           = "state"
	statusLabel          = "status"
	successLabel         = "success"
)

const (
	stateActive = "active"
	stateQueued = "queued"
)

const (
	connectionAcceptError = "accept"
	connectionCloseError  = "close"
)

// NewMetrics initializes a new Prometheus metrics instance with preloaded label values.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	standardTimeBuckets := []float64{0.05, 0.1, 0.15, 0.20, 0.25, 0.3, 0.4, 0.5, 0.75, 1}
	fetchTimeBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30}
	entryBuckets := []float64{10, 50, 100, 250, 500, 1000, 2500, 5000}

	metrics := Metrics{}
	metrics.Registry = prometheus.NewRegistry()

	metrics.connectionsClosed = newCounterWithoutLabels(cfg, metrics.Registry,
		"connections_closed",
		"Count of successful connections closed to the validator.")

	metrics.connectionsError = newCounter(cfg, metrics.Registry,
		"connections_error",
		"Count of errors for connection open and close attempts to the validator labeled by type.",
		[]string{connectionErrorLabel})

	metrics.connectionsOpened = newCounterWithoutLabels(cfg, metrics.Registry,
		"connections_opened",
		"Count of successful connections opened to the validator.")

	metrics.requests = newCounter(cfg, metrics.Registry,
		"requests",
		"Count of total requests to the validator labeled by endpoint and status.",
		[]string{endpointLabel, statusLabel})

	metrics.requestsTimer = newHistogramVec(cfg, metrics.Registry,
		"request_time_seconds",
		"Seconds to answer a request labeled by endpoint.",
		[]string{endpointLabel},
		fetchTimeBuckets)

	metrics.fetches = newCounter(cfg, metrics.Registry,
		"document_fetches",
		"Count of remote document acquisitions labeled by document type and outcome.",
		[]string{documentTypeLabel, fetchStatusLabel})

	metrics.fetchTimer = newHistogramVec(cfg, metrics.Registry,
		"document_fetch_time_seconds",
		"Seconds to acquire a remote document labeled by document type.",
		[]string{documentTypeLabel},
		fetchTimeBuckets)

	metrics.fetchRetries = newCounter(cfg, metrics.Registry,
		"document_fetch_retries",
		"Count of retried remote document fetches labeled by document type.",
		[]string{documentTypeLabel})

	metrics.cacheResults = newCounter(cfg, metrics.Registry,
		"document_cache_results",
		"Count of document cache lookups labeled by document type and result.",
		[]string{documentTypeLabel, cacheResultLabel})

	metrics.coordinatorState = newGaugeVec(cfg, metrics.Registry,
		"coordinator_tasks",
		"Number of fetch tasks in the coordinator labeled by document type and state.",
		[]string{documentTypeLabel, stateLabel})

	metrics.validations = newCounter(cfg, metrics.Registry,
		"validations",
		"Count of full ads.txt cross-validations labeled by success.",
		[]string{successLabel})

	metrics.validationTimer = newHistogram(cfg, metrics.Registry,
		"validation_time_seconds",
		"Seconds to cross-validate one ads.txt document.",
		standardTimeBuckets)

	metrics.validatedEntries = newHistogram(cfg, metrics.Registry,
		"validated_entries",
		"Number of records cross-validated per ads.txt document.",
		entryBuckets)

	preloadLabelValues(&metrics)

	return &metrics
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newCounterWithoutLabels(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Counter {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounter(opts)
	registry.MustRegister(counter)
	return counter
}

func newGaugeVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.GaugeVec {
	opts := prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	gauge := prometheus.NewGaugeVec(opts, labels)
	registry.MustRegister(gauge)
	return gauge
}

func newHistogramVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogramVec(opts, labels)
	registry.MustRegister(histogram)
	return histogram
}

func newHistogram(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, buckets []float64) prometheus.Histogram {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogram(opts)
	registry.MustRegister(histogram)
	return histogram
}

func (m *Metrics) RecordConnectionAccept(success bool) {
	if success {
		m.connectionsOpened.Inc()
	} else {
		m.connectionsError.With(prometheus.Labels{
			connectionErrorLabel: connectionAcceptError,
		}).Inc()
	}
}

func (m *Metrics) RecordConnectionClose(success bool) {
	if success {
		m.connectionsClosed.Inc()
	} else {
		m.connectionsError.With(prometheus.Labels{
			connectionErrorLabel: connectionCloseError,
		}).Inc()
	}
}

func (m *Metrics) RecordRequest(endpoint metrics.Endpoint, status metrics.RequestStatus) {
	m.requests.With(prometheus.Labels{
		endpointLabel: string(endpoint),
		statusLabel:   string(status),
	}).Inc()
}

func (m *Metrics) RecordRequestTime(endpoint metrics.Endpoint, length time.Duration) {
	m.requestsTimer.With(prometheus.Labels{
		endpointLabel: string(endpoint),
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordFetch(labels metrics.FetchLabels, length time.Duration) {
	m.fetches.With(prometheus.Labels{
		documentTypeLabel: string(labels.DocumentType),
		fetchStatusLabel:  string(labels.Status),
	}).Inc()
	m.fetchTimer.With(prometheus.Labels{
		documentTypeLabel: string(labels.DocumentType),
	}).Observe(length.Seconds())
}

func (m *Metrics) RecordFetchRetry(docType metrics.DocumentType) {
	m.fetchRetries.With(prometheus.Labels{
		documentTypeLabel: string(docType),
	}).Inc()
}

func (m *Metrics) RecordCacheResult(docType metrics.DocumentType, result metrics.CacheResult) {
	m.cacheResults.With(prometheus.Labels{
		documentTypeLabel: string(docType),
		cacheResultLabel:  string(result),
	}).Inc()
}

func (m *Metrics) RecordCoordinatorState(docType metrics.DocumentType, active, queued int) {
	m.coordinatorState.With(prometheus.Labels{
		documentTypeLabel: string(docType),
		stateLabel:        stateActive,
	}).Set(float64(active))
	m.coordinatorState.With(prometheus.Labels{
		documentTypeLabel: string(docType),
		stateLabel:        stateQueued,
	}).Set(float64(queued))
}

func (m *Metrics) RecordValidation(success bool, entries int, length time.Duration) {
	m.validations.With(prometheus.Labels{
		successLabel: strconv.FormatBool(success),
	}).Inc()
	m.validationTimer.Observe(length.Seconds())
	m.validatedEntries.Observe(float64(entries))
}
