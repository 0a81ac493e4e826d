package metrics

import (
	"fmt"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Metrics is the legacy go-metrics backed MetricsEngine. Every metric is preregistered so that
// recording never touches the registry lock.
type Metrics struct {
	MetricsRegistry metrics.Registry

	ConnectionCounter      metrics.Counter
	ConnectionAcceptErrors metrics.Meter
	ConnectionCloseErrors  metrics.Meter

	RequestMeters map[Endpoint]map[RequestStatus]metrics.Meter
	RequestTimers map[Endpoint]metrics.Timer

	FetchMeters map[DocumentType]map[FetchStatus]metrics.Meter
	FetchTimers map[DocumentType]metrics.Timer
	RetryMeters map[DocumentType]metrics.Meter
	CacheMeters map[DocumentType]map[CacheResult]metrics.Meter

	ActiveGauges map[DocumentType]metrics.Gauge
	QueuedGauges map[DocumentType]metrics.Gauge

	ValidationSuccessMeter metrics.Meter
	ValidationErrorMeter   metrics.Meter
	ValidationTimer        metrics.Timer
	ValidatedEntries       metrics.Histogram
}

// NewMetrics creates a go-metrics engine on registry.
func NewMetrics(registry metrics.Registry) *Metrics {
	m := &Metrics{
		MetricsRegistry: registry,
		RequestMeters:   make(map[Endpoint]map[RequestStatus]metrics.Meter),
		RequestTimers:   make(map[Endpoint]metrics.Timer),
		FetchMeters:     make(map[DocumentType]map[FetchStatus]metrics.Meter),
		FetchTimers:     make(map[DocumentType]metrics.Timer),
		RetryMeters:     make(map[DocumentType]metrics.Meter),
		CacheMeters:     make(map[DocumentType]map[CacheResult]metrics.Meter),
		ActiveGauges:    make(map[DocumentType]metrics.Gauge),
		QueuedGauges:    make(map[DocumentType]metrics.Gauge),

		ConnectionCounter:      metrics.GetOrRegisterCounter("active_connections", registry),
		ConnectionAcceptErrors: metrics.GetOrRegisterMeter("connection_accept_errors", registry),
		ConnectionCloseErrors:  metrics.GetOrRegisterMeter("connection_close_errors", registry),

		ValidationSuccessMeter: metrics.GetOrRegisterMeter("validation.ok", registry),
		ValidationErrorMeter:   metrics.GetOrRegisterMeter("validation.err", registry),
		ValidationTimer:        metrics.GetOrRegisterTimer("validation.time", registry),
		ValidatedEntries:       metrics.GetOrRegisterHistogram("validation.entries", registry, metrics.NewUniformSample(1024)),
	}

	for _, e := range Endpoints() {
		m.RequestMeters[e] = make(map[RequestStatus]metrics.Meter)
		for _, s := range RequestStatuses() {
			m.RequestMeters[e][s] = metrics.GetOrRegisterMeter(fmt.Sprintf("requests.%s.%s", e, s), registry)
		}
		m.RequestTimers[e] = metrics.GetOrRegisterTimer(fmt.Sprintf("requests.%s.request_time", e), registry)
	}

	for _, d := range DocumentTypes() {
		m.FetchMeters[d] = make(map[FetchStatus]metrics.Meter)
		for _, s := range FetchStatuses() {
			m.FetchMeters[d][s] = metrics.GetOrRegisterMeter(fmt.Sprintf("fetch.%s.%s", d, s), registry)
		}
		m.FetchTimers[d] = metrics.GetOrRegisterTimer(fmt.Sprintf("fetch.%s.request_time", d), registry)
		m.RetryMeters[d] = metrics.GetOrRegisterMeter(fmt.Sprintf("fetch.%s.retries", d), registry)

		m.CacheMeters[d] = make(map[CacheResult]metrics.Meter)
		for _, r := range CacheResults() {
			m.CacheMeters[d][r] = metrics.GetOrRegisterMeter(fmt.Sprintf("cache.%s.%s", d, r), registry)
		}

		m.ActiveGauges[d] = metrics.GetOrRegisterGauge(fmt.Sprintf("coordinator.%s.active", d), registry)
		m.QueuedGauges[d] = metrics.GetOrRegisterGauge(fmt.Sprintf("coordinator.%s.queued", d), registry)
	}

	return m
}

func (me *Metrics) RecordRequest(endpoint Endpoint, status RequestStatus) {
	if meters, ok := me.RequestMeters[endpoint]; ok {
		if meter, ok := meters[status]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordRequestTime(endpoint Endpoint, length time.Duration) {
	if timer, ok := me.RequestTimers[endpoint]; ok {
		timer.Update(length)
	}
}

func (me *Metrics) RecordFetch(labels FetchLabels, length time.Duration) {
	if meters, ok := me.FetchMeters[labels.DocumentType]; ok {
		if meter, ok := meters[labels.Status]; ok {
			meter.Mark(1)
		}
	}
	if timer, ok := me.FetchTimers[labels.DocumentType]; ok {
		timer.Update(length)
	}
}

func (me *Metrics) RecordFetchRetry(docType DocumentType) {
	if meter, ok := me.RetryMeters[docType]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordCacheResult(docType DocumentType, result CacheResult) {
	if meters, ok := me.CacheMeters[docType]; ok {
		if meter, ok := meters[result]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordCoordinatorState(docType DocumentType, active, queued int) {
	if gauge, ok := me.ActiveGauges[docType]; ok {
		gauge.Update(int64(active))
	}
	if gauge, ok := me.QueuedGauges[docType]; ok {
		gauge.Update(int64(queued))
	}
}

func (me *Metrics) RecordValidation(success bool, entries int, length time.Duration) {
	if success {
		me.ValidationSuccessMeter.Mark(1)
	} else {
		me.ValidationErrorMeter.Mark(1)
	}
	me.ValidationTimer.Update(length)
	me.ValidatedEntries.Update(int64(entries))
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrors.Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrors.Mark(1)
	}
}
