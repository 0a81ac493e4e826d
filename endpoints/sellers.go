package endpoints

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/metrics"
	"github.com/prebid/adstxt-validator/sellersjson"
)

type sellersFetcher interface {
	Fetch(ctx context.Context, domain string, opts sellersjson.Options) sellersjson.Result
	Invalidate(ctx context.Context, domain string) error
}

type sellersResponse struct {
	Domain     string                    `json:"domain"`
	Cached     bool                      `json:"cached"`
	Metadata   *crosscheck.Metadata      `json:"metadata,omitempty"`
	CacheInfo  crosscheck.CacheInfo      `json:"cache_info"`
	FoundCount *int                      `json:"found_count,omitempty"`
	Sellers    []crosscheck.SellerResult `json:"sellers,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// NewSellersEndpoint serves GET /sellers/:domain. Without ids it describes the document; with
// ids=a,b it returns one lookup result per ID, in order. refresh=1 bypasses the document cache.
func NewSellersEndpoint(fetcher sellersFetcher, metricEngine metrics.MetricsEngine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		defer func() {
			metricEngine.RecordRequestTime(metrics.EndpointSellers, time.Since(start))
		}()

		ctx := r.Context()
		domain := ps.ByName("domain")
		opts := sellersjson.Options{BypassCache: queryFlag(r, "refresh")}

		res := fetcher.Fetch(ctx, domain, opts)
		if _, ok := res.Err.(*errortypes.BadInput); ok {
			metricEngine.RecordRequest(metrics.EndpointSellers, metrics.RequestStatusBadInput)
			writeError(w, http.StatusBadRequest, res.Err)
			return
		}

		resp := sellersResponse{Domain: domain, Cached: res.Cached, CacheInfo: res.CacheInfo}
		if res.Err != nil {
			resp.Error = errortypes.ReadKey(res.Err)
		} else {
			metadata := res.Data.Metadata()
			resp.Metadata = &metadata
		}

		if ids := queryList(r, "ids"); len(ids) > 0 {
			resp.Sellers = res.Lookup(ids)
			found := 0
			for _, s := range resp.Sellers {
				if s.Found {
					found++
				}
			}
			resp.FoundCount = &found
		}

		if res.Err != nil {
			metricEngine.RecordRequest(metrics.EndpointSellers, metrics.RequestStatusFetchError)
		} else {
			metricEngine.RecordRequest(metrics.EndpointSellers, metrics.RequestStatusOK)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
