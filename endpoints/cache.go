package endpoints

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prebid/adstxt-validator/coordinator"
	"github.com/prebid/adstxt-validator/metrics"
)

type cacheClearer interface {
	ClearCaches()
}

// NewClearCacheEndpoint serves DELETE /cache, which forgets every validation result and verdict.
// Downloaded documents are kept.
func NewClearCacheEndpoint(clearer cacheClearer, metricEngine metrics.MetricsEngine) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		start := time.Now()
		clearer.ClearCaches()
		metricEngine.RecordRequest(metrics.EndpointClearCache, metrics.RequestStatusOK)
		metricEngine.RecordRequestTime(metrics.EndpointClearCache, time.Since(start))
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewInvalidateSellersEndpoint serves DELETE /cache/sellers/:domain, which drops the cached sellers.json
// of one advertising system, including a cached failure.
func NewInvalidateSellersEndpoint(fetcher sellersFetcher, metricEngine metrics.MetricsEngine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		defer func() {
			metricEngine.RecordRequestTime(metrics.EndpointClearCache, time.Since(start))
		}()

		if err := fetcher.Invalidate(r.Context(), ps.ByName("domain")); err != nil {
			metricEngine.RecordRequest(metrics.EndpointClearCache, metrics.RequestStatusBadInput)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		metricEngine.RecordRequest(metrics.EndpointClearCache, metrics.RequestStatusOK)
		w.WriteHeader(http.StatusNoContent)
	}
}

// StatsSource reports the state of a fetch coordinator.
type StatsSource interface {
	Stats() coordinator.Stats
}

type documentCounter interface {
	CachedDocuments() int
}

type cacheStats struct {
	Coordinators       map[string]coordinator.Stats `json:"coordinators"`
	ValidatedDocuments int                          `json:"validated_documents"`
}

// NewCacheStatsEndpoint serves the admin /cache/stats page.
func NewCacheStatsEndpoint(coordinators map[string]StatsSource, validated documentCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := cacheStats{Coordinators: make(map[string]coordinator.Stats, len(coordinators))}
		for name, c := range coordinators {
			stats.Coordinators[name] = c.Stats()
		}
		if validated != nil {
			stats.ValidatedDocuments = validated.CachedDocuments()
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
