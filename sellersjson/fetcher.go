package sellersjson

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	validator "github.com/asaskevich/govalidator"
	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/cache"
	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/coordinator"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/fetch"
	"github.com/prebid/adstxt-validator/metrics"
)

// RetryPolicy controls how transient failures are retried: the delay starts at BaseDelay,
// doubles after every failed attempt and never exceeds MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewRetryPolicy(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay(),
		MaxDelay:    cfg.MaxDelay(),
	}
}

// Delay is the wait after the given failed attempt, counting from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Options adjust a single fetch.
type Options struct {
	// BypassCache forces a network fetch. The result is still written to the cache.
	BypassCache bool
	// Timeout replaces the configured per-request timeout when positive.
	Timeout time.Duration
}

// Result is the outcome of fetching one sellers.json. Exactly one of Data and Err is set.
type Result struct {
	Data   *Document
	Err    error
	Cached bool
	// CacheInfo describes the cache entry the result was read from or written to.
	CacheInfo crosscheck.CacheInfo
}

// Lookup returns one result per requested seller ID, in order. Every ID is reported missing when the
// document could not be read.
func (r Result) Lookup(sellerIDs []string) []crosscheck.SellerResult {
	if r.Err != nil || r.Data == nil {
		return missingSellers(sellerIDs, errortypes.ReadKey(r.Err))
	}
	results, _ := lookupSellers(r.Data, sellerIDs, sourceOf(r))
	return results
}

// Request asks for a set of seller IDs from one advertising system.
type Request struct {
	Domain    string
	SellerIDs []string
}

// Response answers a Request with one result per requested ID.
type Response struct {
	Domain  string
	Sellers []crosscheck.SellerResult
	Err     error
	Cached  bool
}

// Fetcher acquires sellers.json documents through the document cache, the fetch coordinator and
// the timed HTTP client, retrying transient failures.
type Fetcher struct {
	client       *fetch.Client
	cache        *cache.Cache[Document]
	coordinator  *coordinator.Coordinator
	urls         *URLResolver
	timeout      time.Duration
	hostTimeouts map[string]time.Duration
	retry        RetryPolicy
	metricEngine metrics.MetricsEngine
	clock        clock.Clock
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewFetcher(client *fetch.Client, docCache *cache.Cache[Document], coord *coordinator.Coordinator, urls *URLResolver, cfg config.SellersJSON, metricEngine metrics.MetricsEngine, clk clock.Clock) *Fetcher {
	if clk == nil {
		clk = clock.New()
	}
	f := &Fetcher{
		client:       client,
		cache:        docCache,
		coordinator:  coord,
		urls:         urls,
		timeout:      cfg.Timeout(),
		hostTimeouts: cfg.HostTimeouts(),
		retry:        NewRetryPolicy(cfg.Retry),
		metricEngine: metricEngine,
		clock:        clk,
	}
	f.sleep = f.clockSleep
	return f
}

// Fetch returns the sellers.json of domain. A cached document or cached failure is returned without
// touching the network; concurrent fetches of the same domain share one request.
func (f *Fetcher) Fetch(ctx context.Context, domain string, opts Options) Result {
	domain = strings.ToLower(strings.TrimSpace(domain))
	key, err := cache.NewKey(cache.SellersJSONNamespace, domain)
	if err != nil || !validator.IsDNSName(domain) {
		return Result{Err: &errortypes.BadInput{Message: fmt.Sprintf("invalid advertising system domain %q", domain)}}
	}

	if !opts.BypassCache {
		if entry, ok := f.cache.Get(ctx, key); ok {
			f.metricEngine.RecordCacheResult(metrics.SellersJSONDocument, metrics.CacheHit)
			return resultFromEntry(entry)
		}
		f.metricEngine.RecordCacheResult(metrics.SellersJSONDocument, metrics.CacheMiss)
	}

	sellersURL := f.urls.URL(domain)
	host := hostOf(sellersURL)
	timeout := f.timeoutFor(domain, host, opts)

	v, err, _ := f.coordinator.Do(ctx, key.String(), host, func(ctx context.Context) (interface{}, error) {
		if !opts.BypassCache {
			// a flight which settled after the lookup above has stored its result already
			if entry, ok := f.cache.Get(ctx, key); ok {
				res := resultFromEntry(entry)
				return &res, res.Err
			}
		}
		return f.fetchAndStore(ctx, sellersURL, key, timeout)
	})
	if res, ok := v.(*Result); ok {
		return *res
	}
	return Result{Err: err}
}

// FetchSellers resolves several requests concurrently. Responses are in request order.
func (f *Fetcher) FetchSellers(ctx context.Context, requests []Request, opts Options) []Response {
	responses := make([]Response, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			res := f.Fetch(ctx, req.Domain, opts)
			responses[i] = Response{
				Domain:  req.Domain,
				Sellers: res.Lookup(req.SellerIDs),
				Err:     res.Err,
				Cached:  res.Cached,
			}
		}(i, req)
	}
	wg.Wait()
	return responses
}

// CacheInfo reports what the cache holds for domain without fetching.
func (f *Fetcher) CacheInfo(ctx context.Context, domain string) crosscheck.CacheInfo {
	key, err := cache.NewKey(cache.SellersJSONNamespace, domain)
	if err != nil {
		return crosscheck.CacheInfo{}
	}
	entry, ok := f.cache.Get(ctx, key)
	if !ok {
		return crosscheck.CacheInfo{}
	}
	return cacheInfo(entry.Status, entry.Timestamp)
}

// Invalidate drops the cached document or cached failure of domain.
func (f *Fetcher) Invalidate(ctx context.Context, domain string) error {
	key, err := cache.NewKey(cache.SellersJSONNamespace, domain)
	if err != nil {
		return err
	}
	return f.cache.Delete(ctx, key)
}

func (f *Fetcher) timeoutFor(domain, host string, opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if t, ok := f.hostTimeouts[host]; ok {
		return t
	}
	if t, ok := f.hostTimeouts[domain]; ok {
		return t
	}
	return f.timeout
}

func (f *Fetcher) fetchAndStore(ctx context.Context, sellersURL string, key cache.Key, timeout time.Duration) (*Result, error) {
	start := f.clock.Now()
	doc, err := f.fetchWithRetry(ctx, sellersURL, timeout)
	f.metricEngine.RecordFetch(metrics.FetchLabels{
		DocumentType: metrics.SellersJSONDocument,
		Status:       metrics.FetchStatusFromError(err),
	}, f.clock.Since(start))

	if err != nil {
		glog.Warningf("Failed to fetch sellers.json from %s: %v", sellersURL, err)
		res := &Result{Err: err}
		status := negativeStatus(err)
		if stamp, cacheErr := f.cache.SetNegative(ctx, key, status, err); cacheErr != nil {
			glog.Errorf("Failed to cache sellers.json failure for %s: %v", key, cacheErr)
		} else {
			res.CacheInfo = cacheInfo(status, stamp)
		}
		return res, err
	}

	res := &Result{Data: doc}
	if stamp, cacheErr := f.cache.Set(ctx, key, *doc); cacheErr != nil {
		glog.Errorf("Failed to cache sellers.json for %s: %v", key, cacheErr)
	} else {
		res.CacheInfo = cacheInfo("", stamp)
	}
	return res, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, sellersURL string, timeout time.Duration) (*Document, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.client.Get(ctx, sellersURL, timeout)
		if err == nil {
			return decode(sellersURL, resp.Body)
		}
		if !errortypes.IsRetryable(err) || attempt >= f.retry.MaxAttempts {
			return nil, err
		}

		delay := f.retry.Delay(attempt)
		glog.Warningf("Fetching %s failed (attempt %d of %d), retrying in %v: %v", sellersURL, attempt, f.retry.MaxAttempts, delay, err)
		f.metricEngine.RecordFetchRetry(metrics.SellersJSONDocument)
		if sleepErr := f.sleep(ctx, delay); sleepErr != nil {
			return nil, err
		}
	}
}

func (f *Fetcher) clockSleep(ctx context.Context, d time.Duration) error {
	timer := f.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decode parses a sellers.json body. Seller rows which do not match the expected shape or do not
// decode are left out of the document.
func decode(sellersURL string, body []byte) (*Document, error) {
	badRows, err := validateShape(body)
	if err != nil {
		return nil, err
	}
	if len(badRows) == 0 {
		var doc Document
		if err := json.Unmarshal(body, &doc); err == nil {
			return &doc, nil
		}
	}
	return decodeRows(sellersURL, body, badRows)
}

func decodeRows(sellersURL string, body []byte, badRows map[int]string) (*Document, error) {
	var raw struct {
		Document
		Sellers []json.RawMessage `json:"sellers"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &errortypes.InvalidFormat{Message: fmt.Sprintf("sellers.json could not be decoded: %v", err)}
	}

	doc := raw.Document
	doc.Sellers = make([]Seller, 0, len(raw.Sellers))
	skipped := 0
	var firstReason string
	for i, row := range raw.Sellers {
		reason, bad := badRows[i]
		if !bad {
			var s Seller
			err := json.Unmarshal(row, &s)
			if err == nil {
				doc.Sellers = append(doc.Sellers, s)
				continue
			}
			reason = fmt.Sprintf("sellers.%d: %v", i, err)
		}
		if skipped == 0 {
			firstReason = reason
		}
		skipped++
	}
	if skipped > 0 {
		glog.Warningf("Skipped %d malformed seller rows in %s, first: %s", skipped, sellersURL, firstReason)
	}
	return &doc, nil
}

func negativeStatus(err error) cache.Status {
	switch e := err.(type) {
	case *errortypes.InvalidFormat, *errortypes.InvalidContentType:
		return cache.StatusInvalid
	case *errortypes.NotFound:
		return cache.StatusNotFound
	case *errortypes.NonOkStatus:
		if e.StatusCode == 404 || e.StatusCode == 410 {
			return cache.StatusNotFound
		}
	}
	return cache.StatusError
}

func resultFromEntry(entry *cache.Entry[Document]) Result {
	info := cacheInfo(entry.Status, entry.Timestamp)
	if entry.Negative() {
		return Result{
			Err:       errortypes.FromKey(entry.Error, fmt.Sprintf("sellers.json lookup previously failed (%s)", entry.Status)),
			Cached:    true,
			CacheInfo: info,
		}
	}
	doc := entry.Data
	return Result{Data: &doc, Cached: true, CacheInfo: info}
}

// cacheInfo describes a stored entry. An empty status is a stored document.
func cacheInfo(status cache.Status, stamp int64) crosscheck.CacheInfo {
	info := crosscheck.CacheInfo{IsCached: true, Status: "success", Timestamp: stamp}
	if status != "" {
		info.Status = string(status)
	}
	return info
}

func sourceOf(res Result) string {
	if res.Cached {
		return crosscheck.SourceCache
	}
	return crosscheck.SourceFetch
}

// lookupSellers returns one result per requested ID, in request order. IDs are matched exactly first,
// then case-insensitively in document order.
func lookupSellers(doc *Document, sellerIDs []string, source string) ([]crosscheck.SellerResult, int) {
	idx := doc.index()
	var folded map[string]*Seller

	results := make([]crosscheck.SellerResult, len(sellerIDs))
	found := 0
	for i, id := range sellerIDs {
		results[i] = crosscheck.SellerResult{SellerID: id, Source: source}

		s, ok := idx[strings.TrimSpace(id)]
		if !ok {
			if folded == nil {
				folded = make(map[string]*Seller, len(idx))
				for j := range doc.Sellers {
					k := strings.ToLower(strings.TrimSpace(string(doc.Sellers[j].SellerID)))
					if _, dup := folded[k]; !dup {
						folded[k] = &doc.Sellers[j]
					}
				}
			}
			s, ok = folded[strings.ToLower(strings.TrimSpace(id))]
		}
		if ok {
			results[i].Seller = s.toCrossCheck()
			results[i].Found = true
			found++
		}
	}
	return results, found
}

func missingSellers(sellerIDs []string, errKey string) []crosscheck.SellerResult {
	results := make([]crosscheck.SellerResult, len(sellerIDs))
	for i, id := range sellerIDs {
		results[i] = crosscheck.SellerResult{
			SellerID: id,
			Found:    false,
			Source:   crosscheck.SourceNone,
			Error:    errKey,
		}
	}
	return results
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
