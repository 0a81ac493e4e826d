package endpoints

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prebid/adstxt-validator/adstxt"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/metrics"
)

type adsTxtFetcher interface {
	Fetch(ctx context.Context, hostname string, app bool) *adstxt.Document
	Refresh(ctx context.Context, hostname string, app bool) *adstxt.Document
}

// NewAdsTxtEndpoint serves GET /adstxt/:domain. Query parameters: app=1 selects app-ads.txt and
// refresh=1 bypasses the document cache.
//
// Acquisition failures are reported in the document's fetch_error with a 200; only an invalid domain is a 400.
func NewAdsTxtEndpoint(fetcher adsTxtFetcher, metricEngine metrics.MetricsEngine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		defer func() {
			metricEngine.RecordRequestTime(metrics.EndpointAdsTxt, time.Since(start))
		}()

		domain := ps.ByName("domain")
		app := queryFlag(r, "app")

		var doc *adstxt.Document
		if queryFlag(r, "refresh") {
			doc = fetcher.Refresh(r.Context(), domain, app)
		} else {
			doc = fetcher.Fetch(r.Context(), domain, app)
		}

		status := http.StatusOK
		switch doc.FetchError {
		case "":
			metricEngine.RecordRequest(metrics.EndpointAdsTxt, metrics.RequestStatusOK)
		case (&errortypes.BadInput{}).Key():
			status = http.StatusBadRequest
			metricEngine.RecordRequest(metrics.EndpointAdsTxt, metrics.RequestStatusBadInput)
		default:
			metricEngine.RecordRequest(metrics.EndpointAdsTxt, metrics.RequestStatusFetchError)
		}
		writeJSON(w, status, doc)
	}
}
