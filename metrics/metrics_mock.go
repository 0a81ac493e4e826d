package metrics

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

// RecordRequest mock
func (me *MetricsEngineMock) RecordRequest(endpoint Endpoint, status RequestStatus) {
	me.Called(endpoint, status)
}

// RecordRequestTime mock
func (me *MetricsEngineMock) RecordRequestTime(endpoint Endpoint, length time.Duration) {
	me.Called(endpoint, length)
}

// RecordFetch mock
func (me *MetricsEngineMock) RecordFetch(labels FetchLabels, length time.Duration) {
	me.Called(labels, length)
}

// RecordFetchRetry mock
func (me *MetricsEngineMock) RecordFetchRetry(docType DocumentType) {
	me.Called(docType)
}

// RecordCacheResult mock
func (me *MetricsEngineMock) RecordCacheResult(docType DocumentType, result CacheResult) {
	me.Called(docType, result)
}

// RecordCoordinatorState mock
func (me *MetricsEngineMock) RecordCoordinatorState(docType DocumentType, active, queued int) {
	me.Called(docType, active, queued)
}

// RecordValidation mock
func (me *MetricsEngineMock) RecordValidation(success bool, entries int, length time.Duration) {
	me.Called(success, entries, length)
}

// RecordConnectionAccept mock
func (me *MetricsEngineMock) RecordConnectionAccept(success bool) {
	me.Called(success)
}

// RecordConnectionClose mock
func (me *MetricsEngineMock) RecordConnectionClose(success bool) {
	me.Called(success)
}
