package sellersjson

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	server, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/green/sellers.json" {
			serveJSON(greenSellers)(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	f := newTestFetcher(t, server.URL, config.SellersJSON{})
	p := NewProvider(f.Fetcher, Options{})
	ctx := context.Background()

	var _ crosscheck.SellersProvider = p

	res := p.BatchGetSellers(ctx, "greenadexchange.com", []string{"777", "12345"})
	assert.Empty(t, res.Error)
	assert.Equal(t, 2, res.RequestedCount)
	assert.Equal(t, 1, res.FoundCount)
	assert.Equal(t, 3, res.Metadata.SellerCount)
	assert.True(t, res.CacheInfo.IsCached)
	assert.Equal(t, "success", res.CacheInfo.Status)

	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].Found)
	assert.Equal(t, crosscheck.SellerTypePublisher, res.Results[0].Seller.SellerType)
	assert.False(t, res.Results[1].Found)
	assert.Nil(t, res.Results[1].Seller)

	assert.True(t, p.HasSellerJSON(ctx, "greenadexchange.com"))
	assert.Equal(t, "adops@greenadexchange.com", p.GetMetadata(ctx, "greenadexchange.com").ContactEmail)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	missing := p.BatchGetSellers(ctx, "example.com", []string{"1"})
	assert.Equal(t, "errors.httpStatus", missing.Error)
	assert.Equal(t, 0, missing.FoundCount)
	assert.Equal(t, "not_found", missing.CacheInfo.Status)
	assert.Equal(t, crosscheck.SourceNone, missing.Results[0].Source)

	assert.False(t, p.HasSellerJSON(ctx, "example.com"))
	assert.Equal(t, crosscheck.Metadata{}, p.GetMetadata(ctx, "example.com"))
	assert.False(t, p.GetCacheInfo(ctx, "unknown.com").IsCached)
}
