package metrics

import "time"

// NilMetricsEngine implements MetricsEngine and discards everything.
// The server uses it when metrics.type is "none".
type NilMetricsEngine struct{}

func (m *NilMetricsEngine) RecordRequest(endpoint Endpoint, status RequestStatus)           {}
func (m *NilMetricsEngine) RecordRequestTime(endpoint Endpoint, length time.Duration)        {}
func (m *NilMetricsEngine) RecordFetch(labels FetchLabels, length time.Duration)             {}
func (m *NilMetricsEngine) RecordFetchRetry(docType DocumentType)                            {}
func (m *NilMetricsEngine) RecordCacheResult(docType DocumentType, result CacheResult)       {}
func (m *NilMetricsEngine) RecordCoordinatorState(docType DocumentType, active, queued int) {}
func (m *NilMetricsEngine) RecordValidation(success bool, entries int, length time.Duration) {}
func (m *NilMetricsEngine) RecordConnectionAccept(success bool)                              {}
func (m *NilMetricsEngine) RecordConnectionClose(success bool)                               {}
