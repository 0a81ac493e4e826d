package validation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prebid/adstxt-validator/adstxt"
	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	sellers map[string][]crosscheck.Seller
	calls   int32
	release chan struct{}
}

func (p *fakeProvider) BatchGetSellers(ctx context.Context, domain string, sellerIDs []string) crosscheck.BatchSellersResult {
	atomic.AddInt32(&p.calls, 1)
	if p.release != nil {
		<-p.release
	}
	list, ok := p.sellers[domain]
	result := crosscheck.BatchSellersResult{Domain: domain, RequestedCount: len(sellerIDs)}
	if !ok {
		result.Error = "errors.notFound"
	}
	for _, id := range sellerIDs {
		r := crosscheck.SellerResult{SellerID: id, Source: crosscheck.SourceFetch}
		for i := range list {
			if list[i].SellerID == id {
				r.Seller, r.Found = &list[i], true
				result.FoundCount++
			}
		}
		result.Results = append(result.Results, r)
	}
	return result
}

func (p *fakeProvider) HasSellerJSON(ctx context.Context, domain string) bool {
	_, ok := p.sellers[domain]
	return ok
}

func (p *fakeProvider) GetMetadata(ctx context.Context, domain string) crosscheck.Metadata {
	return crosscheck.Metadata{SellerCount: len(p.sellers[domain])}
}

func (p *fakeProvider) GetCacheInfo(ctx context.Context, domain string) crosscheck.CacheInfo {
	return crosscheck.CacheInfo{}
}

type panickingChecker struct{}

func (panickingChecker) CrossCheck(ctx context.Context, records []crosscheck.Record, provider crosscheck.SellersProvider) ([]crosscheck.Record, error) {
	panic("checker bug")
}

type failingChecker struct{}

func (failingChecker) CrossCheck(ctx context.Context, records []crosscheck.Record, provider crosscheck.SellersProvider) ([]crosscheck.Record, error) {
	return nil, errors.New("boom")
}

const adsTxt = `OWNERDOMAIN=example.com
blueadexchange.com, 777, DIRECT
greenadexchange.com, 12345, DIRECT
blueadexchange.com, 888, RESELLER
`

func newProvider() *fakeProvider {
	return &fakeProvider{sellers: map[string][]crosscheck.Seller{
		"greenadexchange.com": {{SellerID: "1", SellerType: crosscheck.SellerTypePublisher}},
		"blueadexchange.com": {
			{SellerID: "777", SellerType: crosscheck.SellerTypePublisher, Domain: "example.com"},
			{SellerID: "888", SellerType: crosscheck.SellerTypeIntermediary, Domain: "reseller.com"},
		},
	}}
}

func newDocument(content string) *adstxt.Document {
	return &adstxt.Document{Hostname: "example.com", URL: "https://example.com/ads.txt", Content: content}
}

func newManager(checker crosscheck.Checker, provider crosscheck.SellersProvider, metricEngine metrics.MetricsEngine) *Manager {
	return NewManager(crosscheck.NewLineParser(), checker, provider, config.Validation{BatchSize: 2, BatchDelayMs: 1}, time.Hour, metricEngine, nil)
}

func entry(domain, id string, rel crosscheck.Relationship) adstxt.Entry {
	return adstxt.Entry{Domain: domain, PublisherID: id, Relationship: rel}
}

func TestValidateEntryPublisherIDNotListed(t *testing.T) {
	m := newManager(crosscheck.NewSellersChecker(), newProvider(), &metrics.NilMetricsEngine{})

	verdict, err := m.ValidateEntry(context.Background(), newDocument(adsTxt), entry("greenadexchange.com", "12345", crosscheck.Direct), nil)

	require.NoError(t, err)
	assert.False(t, verdict.IsVerified)
	require.Len(t, verdict.Reasons, 1)
	assert.Equal(t, crosscheck.KeyPublisherIDNotListed, verdict.Reasons[0].Key)
	assert.Equal(t, []string{"12345", "greenadexchange.com"}, verdict.Reasons[0].Params)
}

func TestValidateEntryVerified(t *testing.T) {
	m := newManager(crosscheck.NewSellersChecker(), newProvider(), &metrics.NilMetricsEngine{})
	ctx := context.Background()
	doc := newDocument(adsTxt)

	verified, err := m.ValidateEntry(ctx, doc, entry("BlueAdExchange.com", "777", crosscheck.Direct), nil)
	require.NoError(t, err)
	assert.Equal(t, Verdict{IsVerified: true, Reasons: []crosscheck.Message{}}, verified)

	reseller, err := m.ValidateEntry(ctx, doc, entry("blueadexchange.com", "888", crosscheck.Reseller), nil)
	require.NoError(t, err)
	assert.True(t, reseller.IsVerified)
}

func TestValidateEntryNotFound(t *testing.T) {
	m := newManager(crosscheck.NewSellersChecker(), newProvider(), &metrics.NilMetricsEngine{})
	ctx := context.Background()
	doc := newDocument(adsTxt)
	missing := entry("blueadexchange.com", "777", crosscheck.Reseller)

	verdict, err := m.ValidateEntry(ctx, doc, missing, nil)
	require.NoError(t, err)
	assert.False(t, verdict.IsVerified)
	assert.Equal(t, crosscheck.KeyEntryNotFound, verdict.Reasons[0].Key)

	fallback := Verdict{IsVerified: true}
	verdict, err = m.ValidateEntry(ctx, doc, missing, func(adstxt.Entry) Verdict { return fallback })
	require.NoError(t, err)
	assert.Equal(t, fallback, verdict)
}

func TestDocumentIsValidatedOnce(t *testing.T) {
	provider := newProvider()
	provider.release = make(chan struct{})
	m := newManager(crosscheck.NewSellersChecker(), provider, &metrics.NilMetricsEngine{})
	doc := newDocument(adsTxt)

	var wg sync.WaitGroup
	verdicts := make([]Verdict, 5)
	for i := range verdicts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i], _ = m.ValidateEntry(context.Background(), doc, entry("greenadexchange.com", "12345", crosscheck.Direct), nil)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	// one batch lookup per advertising system
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls))
	for _, v := range verdicts {
		assert.Equal(t, verdicts[0], v)
	}

	// a different content length is a different document
	_, err := m.Validate(context.Background(), newDocument(adsTxt+"\n"))
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&provider.calls))
	assert.Equal(t, 2, m.CachedDocuments())
}

func TestValidateStopsWaitingOnCancel(t *testing.T) {
	provider := newProvider()
	provider.release = make(chan struct{})
	m := newManager(crosscheck.NewSellersChecker(), provider, &metrics.NilMetricsEngine{})
	doc := newDocument(adsTxt)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Validate(ctx, doc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the validation keeps running and its result is kept
	close(provider.release)
	records, err := m.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestFailedValidationDegradesToNoVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		checker crosscheck.Checker
	}{
		{name: "panic", checker: panickingChecker{}},
		{name: "error", checker: failingChecker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metricsMock := &metrics.MetricsEngineMock{}
			metricsMock.On("RecordValidation", false, 0, mock.Anything).Return()
			m := newManager(tt.checker, newProvider(), metricsMock)

			records, err := m.Validate(context.Background(), newDocument(adsTxt))
			require.NoError(t, err)
			assert.Empty(t, records)

			verdict, err := m.ValidateEntry(context.Background(), newDocument(adsTxt), entry("greenadexchange.com", "12345", crosscheck.Direct), nil)
			require.NoError(t, err)
			assert.Equal(t, crosscheck.KeyEntryNotFound, verdict.Reasons[0].Key)
			metricsMock.AssertNumberOfCalls(t, "RecordValidation", 1)
		})
	}
}

func TestValidateEntriesReportsProgress(t *testing.T) {
	m := newManager(crosscheck.NewSellersChecker(), newProvider(), &metrics.NilMetricsEngine{})
	entries := []adstxt.Entry{
		entry("blueadexchange.com", "777", crosscheck.Direct),
		entry("greenadexchange.com", "12345", crosscheck.Direct),
		entry("blueadexchange.com", "888", crosscheck.Reseller),
		entry("unknown.com", "1", crosscheck.Direct),
		entry("blueadexchange.com", "999", crosscheck.Direct),
	}

	var progress []Progress
	results := m.ValidateEntries(context.Background(), newDocument(adsTxt), entries, Options{
		OnProgress: func(p Progress) { progress = append(progress, p) },
		Fallback: func(e adstxt.Entry) Verdict {
			if e.PublisherID == "999" {
				panic("fallback bug")
			}
			return Verdict{Reasons: []crosscheck.Message{{Key: "custom"}}}
		},
		SkipDelay: true,
	})

	assert.Equal(t, []Progress{
		{Total: 5, InProgress: 2},
		{Total: 5, Completed: 2},
		{Total: 5, Completed: 2, InProgress: 2},
		{Total: 5, Completed: 4},
		{Total: 5, Completed: 4, InProgress: 1},
		{Total: 5, Completed: 4, Failed: 1},
	}, progress)

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, entries[i], r.Entry)
	}
	assert.True(t, results[0].Verdict.IsVerified)
	assert.False(t, results[1].Verdict.IsVerified)
	assert.Equal(t, "custom", results[3].Verdict.Reasons[0].Key)
	assert.Error(t, results[4].Err)
}

func TestValidateEntriesWaitsBetweenBatches(t *testing.T) {
	m := NewManager(crosscheck.NewLineParser(), crosscheck.NewSellersChecker(), newProvider(), config.Validation{BatchSize: 1, BatchDelayMs: 30}, time.Hour, &metrics.NilMetricsEngine{}, nil)
	entries := []adstxt.Entry{
		entry("blueadexchange.com", "777", crosscheck.Direct),
		entry("blueadexchange.com", "888", crosscheck.Reseller),
		entry("greenadexchange.com", "12345", crosscheck.Direct),
	}

	start := time.Now()
	m.ValidateEntries(context.Background(), newDocument(adsTxt), entries, Options{})
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	start = time.Now()
	m.ValidateEntries(context.Background(), newDocument(adsTxt), entries, Options{SkipDelay: true})
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestClearCaches(t *testing.T) {
	provider := newProvider()
	m := newManager(crosscheck.NewSellersChecker(), provider, &metrics.NilMetricsEngine{})
	ctx := context.Background()
	doc := newDocument(adsTxt)
	e := entry("greenadexchange.com", "12345", crosscheck.Direct)

	_, err := m.ValidateEntry(ctx, doc, e, nil)
	require.NoError(t, err)
	_, err = m.ValidateEntry(ctx, doc, e, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls))

	m.ClearCaches()
	assert.Equal(t, 0, m.CachedDocuments())

	_, err = m.ValidateEntry(ctx, doc, e, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&provider.calls))
}

func TestValidateRejectsNilDocument(t *testing.T) {
	m := newManager(crosscheck.NewSellersChecker(), newProvider(), &metrics.NilMetricsEngine{})
	_, err := m.ValidateEntry(context.Background(), nil, entry("a.com", "1", crosscheck.Direct), nil)
	assert.Error(t, err)
}
