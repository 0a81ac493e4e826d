package sellersjson

import (
	"context"

	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
)

// Provider exposes a Fetcher through the crosscheck.SellersProvider interface.
type Provider struct {
	fetcher *Fetcher
	opts    Options
}

func NewProvider(fetcher *Fetcher, opts Options) *Provider {
	return &Provider{fetcher: fetcher, opts: opts}
}

func (p *Provider) BatchGetSellers(ctx context.Context, domain string, sellerIDs []string) crosscheck.BatchSellersResult {
	res := p.fetcher.Fetch(ctx, domain, p.opts)
	out := crosscheck.BatchSellersResult{
		Domain:         domain,
		RequestedCount: len(sellerIDs),
		CacheInfo:      res.CacheInfo,
	}
	if res.Err != nil {
		out.Error = errortypes.ReadKey(res.Err)
		out.Results = missingSellers(sellerIDs, out.Error)
		return out
	}

	out.Metadata = res.Data.Metadata()
	out.Results, out.FoundCount = lookupSellers(res.Data, sellerIDs, sourceOf(res))
	return out
}

func (p *Provider) HasSellerJSON(ctx context.Context, domain string) bool {
	return p.fetcher.Fetch(ctx, domain, p.opts).Err == nil
}

func (p *Provider) GetMetadata(ctx context.Context, domain string) crosscheck.Metadata {
	res := p.fetcher.Fetch(ctx, domain, p.opts)
	if res.Err != nil {
		return crosscheck.Metadata{}
	}
	return res.Data.Metadata()
}

func (p *Provider) GetCacheInfo(ctx context.Context, domain string) crosscheck.CacheInfo {
	return p.fetcher.CacheInfo(ctx, domain)
}
