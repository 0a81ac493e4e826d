package metrics

import (
	"time"

	"github.com/prebid/adstxt-validator/errortypes"
)

// DocumentType : The kind of remote document being fetched or cached
type DocumentType string

const (
	AdsTxtDocument      DocumentType = "ads_txt"
	AppAdsTxtDocument   DocumentType = "app_ads_txt"
	SellersJSONDocument DocumentType = "sellers_json"
)

func DocumentTypes() []DocumentType {
	return []DocumentType{
		AdsTxtDocument,
		AppAdsTxtDocument,
		SellersJSONDocument,
	}
}

// FetchStatus : The outcome of one remote document acquisition
type FetchStatus string

const (
	FetchSuccess      FetchStatus = "ok"
	FetchNotFound     FetchStatus = "not_found"
	FetchTimeout      FetchStatus = "timeout"
	FetchNetworkError FetchStatus = "network_error"
	FetchInvalid      FetchStatus = "invalid"
	FetchError        FetchStatus = "error"
)

func FetchStatuses() []FetchStatus {
	return []FetchStatus{
		FetchSuccess,
		FetchNotFound,
		FetchTimeout,
		FetchNetworkError,
		FetchInvalid,
		FetchError,
	}
}

// FetchStatusFromError maps an acquisition error onto a FetchStatus.
func FetchStatusFromError(err error) FetchStatus {
	switch e := err.(type) {
	case nil:
		return FetchSuccess
	case *errortypes.Timeout:
		return FetchTimeout
	case *errortypes.NetworkError:
		return FetchNetworkError
	case *errortypes.NotFound:
		return FetchNotFound
	case *errortypes.NonOkStatus:
		if e.StatusCode == 404 {
			return FetchNotFound
		}
		return FetchError
	case *errortypes.InvalidFormat, *errortypes.InvalidContentType, *errortypes.EmptyFile, *errortypes.NoEntries:
		return FetchInvalid
	}
	return FetchError
}

// FetchLabels defines the labels attached to document fetch metrics.
type FetchLabels struct {
	DocumentType DocumentType
	Status       FetchStatus
}

// CacheResult : Cache hit/miss
type CacheResult string

const (
	// CacheHit represents a cache hit i.e the key was found in cache
	CacheHit CacheResult = "hit"
	// CacheMiss represents a cache miss i.e that key wasn't found in cache
	// and had to be fetched from the remote host
	CacheMiss CacheResult = "miss"
)

// CacheResults returns possible cache results i.e. cache hit or miss
func CacheResults() []CacheResult {
	return []CacheResult{
		CacheHit,
		CacheMiss,
	}
}

// Endpoint : The HTTP endpoint which served a request
type Endpoint string

const (
	EndpointAdsTxt     Endpoint = "adstxt"
	EndpointSellers    Endpoint = "sellers"
	EndpointValidate   Endpoint = "validate"
	EndpointClearCache Endpoint = "clear_cache"
)

func Endpoints() []Endpoint {
	return []Endpoint{
		EndpointAdsTxt,
		EndpointSellers,
		EndpointValidate,
		EndpointClearCache,
	}
}

// RequestStatus : The request return status
type RequestStatus string

const (
	RequestStatusOK         RequestStatus = "ok"
	RequestStatusBadInput   RequestStatus = "badinput"
	RequestStatusErr        RequestStatus = "err"
	RequestStatusFetchError RequestStatus = "fetcherror"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
		RequestStatusFetchError,
	}
}

// MetricsEngine is a generic interface to record validator metrics into the desired backend.
// Fetch, cache and retry metrics fire once per remote document, so several of them are recorded
// for a single incoming request.
type MetricsEngine interface {
	RecordRequest(endpoint Endpoint, status RequestStatus)
	RecordRequestTime(endpoint Endpoint, length time.Duration)
	RecordFetch(labels FetchLabels, length time.Duration)
	RecordFetchRetry(docType DocumentType)
	RecordCacheResult(docType DocumentType, result CacheResult)
	RecordCoordinatorState(docType DocumentType, active, queued int)
	RecordValidation(success bool, entries int, length time.Duration)
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
}
