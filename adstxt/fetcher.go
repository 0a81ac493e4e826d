package adstxt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"runtime/debug"
	"strings"

	validator "github.com/asaskevich/govalidator"
	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/cache"
	"github.com/prebid/adstxt-validator/coordinator"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/fetch"
	"github.com/prebid/adstxt-validator/metrics"
	"golang.org/x/net/publicsuffix"
)

const (
	adsTxtFile    = "ads.txt"
	appAdsTxtFile = "app-ads.txt"
)

// File is a downloaded ads.txt or app-ads.txt, as kept in the document cache.
type File struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type Resolver interface {
	Resolve(ctx context.Context, scopeDomain string, candidates []string, accept fetch.ContentTypeCheck) (*fetch.Response, error)
}

// Fetcher acquires and parses the ads.txt or app-ads.txt file of a host.
type Fetcher struct {
	resolver     Resolver
	cache        *cache.Cache[File]
	coordinator  *coordinator.Coordinator
	parser       crosscheck.Parser
	metricEngine metrics.MetricsEngine
	clock        clock.Clock
}

func NewFetcher(resolver Resolver, fileCache *cache.Cache[File], coord *coordinator.Coordinator, parser crosscheck.Parser, metricEngine metrics.MetricsEngine, clk clock.Clock) *Fetcher {
	if clk == nil {
		clk = clock.New()
	}
	return &Fetcher{
		resolver:     resolver,
		cache:        fileCache,
		coordinator:  coord,
		parser:       parser,
		metricEngine: metricEngine,
		clock:        clk,
	}
}

// Fetch returns the parsed ads.txt (or app-ads.txt when app is set) for hostname. The document is read
// from the root domain unless the root file declares hostname as a SUBDOMAIN, in which case the
// subdomain's own file is used.
//
// Fetch never fails: problems are reported through Document.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, hostname string, app bool) *Document {
	return f.fetch(ctx, hostname, app, false)
}

// Refresh is Fetch without the document cache. The downloaded files replace the cached ones.
func (f *Fetcher) Refresh(ctx context.Context, hostname string, app bool) *Document {
	return f.fetch(ctx, hostname, app, true)
}

func (f *Fetcher) fetch(ctx context.Context, hostname string, app, bypassCache bool) (doc *Document) {
	doc = &Document{Hostname: hostname, App: app}
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Panic while acquiring ads.txt for %s: %v\n%s", hostname, r, debug.Stack())
			*doc = Document{Hostname: hostname, App: app}
			doc.fail(&errortypes.NetworkError{Message: fmt.Sprintf("unexpected failure: %v", r)})
		}
	}()

	host, err := NormalizeHostname(hostname)
	if err != nil {
		return doc.fail(err)
	}
	doc.Hostname = host
	root := RootDomain(host)

	file, err := f.fetchFile(ctx, root, app, bypassCache, true)
	if err != nil {
		return doc.fail(err)
	}
	if isBlank(file.Content) {
		doc.URL = file.URL
		return doc.fail(&errortypes.EmptyFile{Message: fmt.Sprintf("%s is empty", file.URL)})
	}

	owner := root
	if IsSubdomain(host, root) && declaresSubdomain(f.parser.Parse(file.Content, root), host) {
		sub, err := f.fetchFile(ctx, host, app, bypassCache, false)
		switch {
		case err != nil:
			glog.Warningf("%s is declared as SUBDOMAIN of %s but its file could not be fetched: %v", host, root, err)
		case isBlank(sub.Content):
			glog.Warningf("%s is declared as SUBDOMAIN of %s but its file is empty", host, root)
		default:
			file, owner = sub, host
		}
	}

	doc.URL = file.URL
	doc.Content = file.Content
	doc.project(f.parser.Parse(file.Content, owner))
	if len(doc.Entries) == 0 {
		return doc.fail(&errortypes.NoEntries{Message: fmt.Sprintf("%s has no valid entries", file.URL)})
	}
	return doc
}

func (f *Fetcher) fetchFile(ctx context.Context, host string, app, bypassCache, root bool) (*File, error) {
	namespace, filename, docType := cache.AdsTxtNamespace, adsTxtFile, metrics.AdsTxtDocument
	if app {
		namespace, filename, docType = cache.AppAdsTxtNamespace, appAdsTxtFile, metrics.AppAdsTxtDocument
	}

	key, err := cache.NewKey(namespace, host)
	if err != nil {
		return nil, err
	}
	if !bypassCache {
		if entry, ok := f.cache.Get(ctx, key); ok && !entry.Negative() {
			f.metricEngine.RecordCacheResult(docType, metrics.CacheHit)
			file := entry.Data
			return &file, nil
		}
		f.metricEngine.RecordCacheResult(docType, metrics.CacheMiss)
	}

	v, err, _ := f.coordinator.Do(ctx, key.String(), host, func(ctx context.Context) (interface{}, error) {
		if !bypassCache {
			// a flight which settled after the lookup above has stored its result already
			if entry, ok := f.cache.Get(ctx, key); ok && !entry.Negative() {
				file := entry.Data
				return &file, nil
			}
		}
		start := f.clock.Now()
		resp, err := f.resolver.Resolve(ctx, host, CandidateURLs(host, filename, root), fetch.RejectHTML)
		f.metricEngine.RecordFetch(metrics.FetchLabels{
			DocumentType: docType,
			Status:       metrics.FetchStatusFromError(err),
		}, f.clock.Since(start))
		if err != nil {
			return nil, err
		}

		file := File{URL: resp.URL, Content: string(resp.Body)}
		if _, cacheErr := f.cache.Set(ctx, key, file); cacheErr != nil {
			glog.Errorf("Failed to cache %s for %s: %v", filename, host, cacheErr)
		}
		return &file, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*File), nil
}

// CandidateURLs lists where the file of host may live, in order of preference. The www variants are
// only tried for root domains.
func CandidateURLs(host, filename string, withWWW bool) []string {
	hosts := []string{host}
	if withWWW {
		hosts = append(hosts, "www."+host)
	}
	candidates := make([]string, 0, 2*len(hosts))
	for _, scheme := range []string{"https", "http"} {
		for _, h := range hosts {
			candidates = append(candidates, scheme+"://"+h+"/"+filename)
		}
	}
	return candidates
}

// NormalizeHostname accepts a bare hostname or a URL and returns the lower-cased hostname.
func NormalizeHostname(input string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(input))
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return "", &errortypes.BadInput{Message: fmt.Sprintf("invalid url %q", input)}
		}
		host = u.Hostname()
	} else {
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || !validator.IsDNSName(host) || validator.IsIP(host) {
		return "", &errortypes.BadInput{Message: fmt.Sprintf("invalid hostname %q", input)}
	}
	return host, nil
}

// RootDomain returns the registrable domain of host using the public suffix list. Hosts without one,
// like public suffixes themselves, are their own root. A leading "www." is never part of the root.
func RootDomain(host string) string {
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.TrimPrefix(host, "www.")
	}
	return root
}

// IsSubdomain reports whether host is a true subdomain of root. www.<root> is treated as root.
func IsSubdomain(host, root string) bool {
	return host != root && host != "www."+root && strings.HasSuffix(host, "."+root)
}

func declaresSubdomain(records []crosscheck.Record, host string) bool {
	for i := range records {
		r := &records[i]
		if r.IsVariable && r.IsValid && r.VariableType == crosscheck.VariableSubdomain && strings.EqualFold(r.Value, host) {
			return true
		}
	}
	return false
}

func isBlank(content string) bool {
	return strings.TrimSpace(strings.TrimPrefix(content, "\uFEFF")) == ""
}
