package router

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/adstxt-validator/adstxt"
	"github.com/prebid/adstxt-validator/cache"
	"github.com/prebid/adstxt-validator/cache/memorycache"
	"github.com/prebid/adstxt-validator/cache/postgrescache"
	"github.com/prebid/adstxt-validator/cache/rediscache"
	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/coordinator"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/endpoints"
	"github.com/prebid/adstxt-validator/fetch"
	"github.com/prebid/adstxt-validator/metrics"
	metricsConf "github.com/prebid/adstxt-validator/metrics/config"
	"github.com/prebid/adstxt-validator/sellersjson"
	"github.com/prebid/adstxt-validator/validation"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"
)

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// Router is the public API together with the services behind it.
type Router struct {
	*httprouter.Router
	MetricsEngine *metricsConf.DetailedMetricsEngine
	AdsTxt        *adstxt.Fetcher
	SellersJSON   *sellersjson.Fetcher
	Validation    *validation.Manager
	Coordinators  map[string]*coordinator.Coordinator
	Shutdown      func()
}

func getTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
}

// newStore builds the document store selected by cache.type.
func newStore(cfg config.Cache) (cache.Store, error) {
	switch cfg.Type {
	case config.CacheTypeRedis:
		return rediscache.New(cfg.Redis)
	case config.CacheTypePostgres:
		return postgrescache.New(cfg.Postgres)
	case config.CacheTypeMemory:
		return memorycache.New(cfg.Memory.SizeBytes), nil
	}
	return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
}

func New(cfg *config.Configuration) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}
	r.MetricsEngine = metricsConf.NewMetricsEngine(cfg)

	store, err := newStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("could not create the %s document store: %v", cfg.Cache.Type, err)
	}
	glog.Infof("Caching documents in %s", cfg.Cache.Type)

	overrides := make(map[string]string)
	if cfg.SellersJSON.OverridesFile != "" {
		if overrides, err = sellersjson.LoadOverrides(cfg.SellersJSON.OverridesFile); err != nil {
			return nil, fmt.Errorf("could not load sellers.json overrides: %v", err)
		}
	}

	httpClient := &http.Client{Transport: getTransport()}

	adsTxtCoordinator := coordinator.New(metrics.AdsTxtDocument, cfg.AdsTxt.Concurrency, 0, r.MetricsEngine)
	sellersCoordinator := coordinator.New(metrics.SellersJSONDocument, cfg.SellersJSON.Concurrency, cfg.SellersJSON.RequestsPerSecond, r.MetricsEngine)
	r.Coordinators = map[string]*coordinator.Coordinator{
		string(metrics.AdsTxtDocument):      adsTxtCoordinator,
		string(metrics.SellersJSONDocument): sellersCoordinator,
	}

	adsTxtClient := fetch.NewClient(httpClient, cfg.AdsTxt.MaxRedirects, cfg.AdsTxt.MaxBodyBytes)
	resolver := fetch.NewResolver(adsTxtClient, cfg.AdsTxt.ProbeTimeout(), cfg.AdsTxt.Timeout())
	parser := crosscheck.NewLineParser()
	r.AdsTxt = adstxt.NewFetcher(
		resolver,
		cache.New[adstxt.File](store, cfg.AdsTxt.CacheTTL(), nil),
		adsTxtCoordinator,
		parser,
		r.MetricsEngine,
		nil)

	sellersClient := fetch.NewClient(httpClient, cfg.AdsTxt.MaxRedirects, cfg.SellersJSON.MaxBodyBytes)
	// Configured overrides win over the overrides file.
	urls := sellersjson.NewURLResolver(overrides, cfg.SellersJSON.OverrideURLs())
	r.SellersJSON = sellersjson.NewFetcher(
		sellersClient,
		cache.New[sellersjson.Document](store, cfg.Cache.TTL(), nil),
		sellersCoordinator,
		urls,
		cfg.SellersJSON,
		r.MetricsEngine,
		nil)

	provider := sellersjson.NewProvider(r.SellersJSON, sellersjson.Options{})
	r.Validation = validation.NewManager(parser, crosscheck.NewSellersChecker(), provider, cfg.Validation, cfg.Cache.TTL(), r.MetricsEngine, nil)

	r.Shutdown = func() {
		adsTxtCoordinator.Stop()
		sellersCoordinator.Stop()
		if closer, ok := store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				glog.Errorf("Failed to close the document store: %v", err)
			}
		}
	}

	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.GET("/adstxt/:domain", endpoints.NewAdsTxtEndpoint(r.AdsTxt, r.MetricsEngine))
	r.GET("/sellers/:domain", endpoints.NewSellersEndpoint(r.SellersJSON, r.MetricsEngine))
	r.POST("/validate", endpoints.NewValidateEndpoint(r.AdsTxt, r.Validation, r.MetricsEngine))
	r.DELETE("/cache", endpoints.NewClearCacheEndpoint(r.Validation, r.MetricsEngine))
	r.DELETE("/cache/sellers/:domain", endpoints.NewInvalidateSellersEndpoint(r.SellersJSON, r.MetricsEngine))

	return r, nil
}

// Admin serves build information, coordinator statistics and, with the go-metrics engine, its registry.
func Admin(version, revision string, r *Router) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", endpoints.NewVersionEndpoint(version, revision))

	coordinators := make(map[string]endpoints.StatsSource, len(r.Coordinators))
	for name, c := range r.Coordinators {
		coordinators[name] = c
	}
	mux.HandleFunc("/cache/stats", endpoints.NewCacheStatsEndpoint(coordinators, r.Validation))

	if r.MetricsEngine != nil && r.MetricsEngine.GoMetrics != nil {
		registry := r.MetricsEngine.GoMetrics.MetricsRegistry
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			gometrics.WriteJSONOnce(registry, w)
		})
	}
	return mux
}

// SupportCORS lets the configured origins, e.g. the browser extension, call the API.
func SupportCORS(handler http.Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
