package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	AdminPort  int    `mapstructure:"admin_port"`
	EnableGzip bool   `mapstructure:"enable_gzip"`

	// StatusResponse is the body returned by GET /status. An empty string means 204.
	StatusResponse string `mapstructure:"status_response"`

	AdsTxt      AdsTxt      `mapstructure:"adstxt"`
	SellersJSON SellersJSON `mapstructure:"sellers_json"`
	Cache       Cache       `mapstructure:"cache"`
	Validation  Validation  `mapstructure:"validation"`
	Metrics     Metrics     `mapstructure:"metrics"`
	CORS        CORS        `mapstructure:"cors"`
}

// AdsTxt configures how ads.txt and app-ads.txt documents are fetched.
type AdsTxt struct {
	TimeoutMs       int   `mapstructure:"timeout_ms"`
	ProbeTimeoutMs  int   `mapstructure:"probe_timeout_ms"`
	MaxRedirects    int   `mapstructure:"max_redirects"`
	MaxBodyBytes    int64 `mapstructure:"max_body_bytes"`
	Concurrency     int   `mapstructure:"concurrency"`
	CacheTTLSeconds int   `mapstructure:"cache_ttl_seconds"`
}

// SellersJSON configures how sellers.json documents are fetched.
type SellersJSON struct {
	TimeoutMs    int   `mapstructure:"timeout_ms"`
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	Concurrency  int   `mapstructure:"concurrency"`
	Retry        Retry `mapstructure:"retry"`
	// Overrides lists advertising systems whose sellers.json is not published at https://<domain>/sellers.json.
	// Domains are kept in a list because viper treats dots inside map keys as nesting.
	Overrides []SellersOverride `mapstructure:"overrides"`
	// OverridesFile is an optional YAML file with more overrides. Entries in Overrides win.
	OverridesFile string `mapstructure:"overrides_file"`
	// TimeoutOverrides gives known-slow hosts a longer fetch timeout.
	TimeoutOverrides []HostTimeout `mapstructure:"timeout_overrides"`
	// RequestsPerSecond throttles requests to any single host. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// SellersOverride points a domain at the URL its sellers.json is actually served from.
type SellersOverride struct {
	Domain string `mapstructure:"domain"`
	URL    string `mapstructure:"url"`
}

// HostTimeout is a fetch timeout for a single host.
type HostTimeout struct {
	Host      string `mapstructure:"host"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// Retry configures the exponential backoff applied to transient fetch failures.
type Retry struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// Validation configures the Validation Manager.
type Validation struct {
	BatchSize    int `mapstructure:"batch_size"`
	BatchDelayMs int `mapstructure:"batch_delay_ms"`
}

// CORS lists the origins allowed to call the API from a browser, e.g. the extension origin.
type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Timeout returns the ads.txt GET timeout.
func (cfg *AdsTxt) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// ProbeTimeout returns the timeout used for HEAD existence probes.
func (cfg *AdsTxt) ProbeTimeout() time.Duration {
	return time.Duration(cfg.ProbeTimeoutMs) * time.Millisecond
}

// CacheTTL returns how long a fetched ads.txt document is reused.
func (cfg *AdsTxt) CacheTTL() time.Duration {
	return time.Duration(cfg.CacheTTLSeconds) * time.Second
}

// Timeout returns the default sellers.json fetch timeout.
func (cfg *SellersJSON) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// HostTimeouts converts the per host overrides to durations keyed by lower-cased host.
func (cfg *SellersJSON) HostTimeouts() map[string]time.Duration {
	overrides := make(map[string]time.Duration, len(cfg.TimeoutOverrides))
	for _, o := range cfg.TimeoutOverrides {
		overrides[strings.ToLower(o.Host)] = time.Duration(o.TimeoutMs) * time.Millisecond
	}
	return overrides
}

// OverrideURLs returns the configured overrides keyed by lower-cased domain.
func (cfg *SellersJSON) OverrideURLs() map[string]string {
	overrides := make(map[string]string, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		overrides[strings.ToLower(o.Domain)] = o.URL
	}
	return overrides
}

// BaseDelay returns the first backoff delay.
func (cfg *Retry) BaseDelay() time.Duration {
	return time.Duration(cfg.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap.
func (cfg *Retry) MaxDelay() time.Duration {
	return time.Duration(cfg.MaxDelayMs) * time.Millisecond
}

// BatchDelay returns the pause inserted between validation batches.
func (cfg *Validation) BatchDelay() time.Duration {
	return time.Duration(cfg.BatchDelayMs) * time.Millisecond
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.Port <= 0 {
		errs = append(errs, fmt.Errorf("port must be positive. Got %d", cfg.Port))
	}
	if cfg.AdminPort <= 0 {
		errs = append(errs, fmt.Errorf("admin_port must be positive. Got %d", cfg.AdminPort))
	}
	errs = cfg.AdsTxt.validate(errs)
	errs = cfg.SellersJSON.validate(errs)
	errs = cfg.Cache.validate(errs)
	errs = cfg.Validation.validate(errs)
	errs = cfg.Metrics.validate(errs)
	return errs
}

func (cfg *AdsTxt) validate(errs []error) []error {
	if cfg.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("adstxt.timeout_ms must be positive. Got %d", cfg.TimeoutMs))
	}
	if cfg.ProbeTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("adstxt.probe_timeout_ms must be positive. Got %d", cfg.ProbeTimeoutMs))
	} else if cfg.TimeoutMs > 0 && cfg.ProbeTimeoutMs > cfg.TimeoutMs {
		errs = append(errs, &errortypes.Warning{
			Message:     fmt.Sprintf("adstxt.probe_timeout_ms (%d) is longer than adstxt.timeout_ms (%d)", cfg.ProbeTimeoutMs, cfg.TimeoutMs),
			WarningCode: errortypes.ConfigWarningCode,
		})
	}
	if cfg.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("adstxt.max_redirects must not be negative. Got %d", cfg.MaxRedirects))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("adstxt.concurrency must be positive. Got %d", cfg.Concurrency))
	}
	if cfg.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("adstxt.cache_ttl_seconds must not be negative. Got %d", cfg.CacheTTLSeconds))
	}
	return errs
}

func (cfg *SellersJSON) validate(errs []error) []error {
	if cfg.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("sellers_json.timeout_ms must be positive. Got %d", cfg.TimeoutMs))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("sellers_json.concurrency must be positive. Got %d", cfg.Concurrency))
	}
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("sellers_json.retry.max_attempts must be at least 1. Got %d", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.BaseDelayMs < 0 || cfg.Retry.MaxDelayMs < cfg.Retry.BaseDelayMs {
		errs = append(errs, errors.New("sellers_json.retry delays must satisfy 0 <= base_delay_ms <= max_delay_ms"))
	}
	if cfg.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("sellers_json.requests_per_second must not be negative. Got %f", cfg.RequestsPerSecond))
	}
	seen := make(map[string]int, len(cfg.Overrides))
	for i, o := range cfg.Overrides {
		if !govalidator.IsDNSName(o.Domain) {
			errs = append(errs, fmt.Errorf("sellers_json.overrides[%d]: %q is not a valid domain", i, o.Domain))
		}
		domain := strings.ToLower(o.Domain)
		if j, dup := seen[domain]; dup {
			errs = append(errs, &errortypes.Warning{
				Message:     fmt.Sprintf("sellers_json.overrides[%d] replaces sellers_json.overrides[%d] for %s", i, j, domain),
				WarningCode: errortypes.ConfigWarningCode,
			})
		}
		seen[domain] = i
		if !govalidator.IsURL(o.URL) {
			errs = append(errs, fmt.Errorf("sellers_json.overrides[%d]: %q is not a valid URL", i, o.URL))
		}
	}
	for i, o := range cfg.TimeoutOverrides {
		if o.Host == "" || o.TimeoutMs <= 0 {
			errs = append(errs, fmt.Errorf("sellers_json.timeout_overrides[%d] needs a host and a positive timeout_ms", i))
		}
	}
	return errs
}

func (cfg *Validation) validate(errs []error) []error {
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("validation.batch_size must be positive. Got %d", cfg.BatchSize))
	}
	if cfg.BatchDelayMs < 0 {
		errs = append(errs, fmt.Errorf("validation.batch_delay_ms must not be negative. Got %d", cfg.BatchDelayMs))
	}
	return errs
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	errs := c.validate()
	for _, w := range errortypes.WarningOnly(errs) {
		glog.Warningf("Configuration: %v", w)
	}
	if errortypes.ContainsFatalError(errs) {
		return &c, errortypes.NewAggregateErrors("validation errors", errortypes.FatalOnly(errs))
	}
	return &c, nil
}

// SetupViper registers the defaults and the environment binding. The config file is optional.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")

	v.SetDefault("adstxt.timeout_ms", 10000)
	v.SetDefault("adstxt.probe_timeout_ms", 5000)
	v.SetDefault("adstxt.max_redirects", 5)
	v.SetDefault("adstxt.max_body_bytes", 5*1024*1024)
	v.SetDefault("adstxt.concurrency", 5)
	v.SetDefault("adstxt.cache_ttl_seconds", 3600)

	v.SetDefault("sellers_json.timeout_ms", 15000)
	v.SetDefault("sellers_json.max_body_bytes", 50*1024*1024)
	v.SetDefault("sellers_json.concurrency", 5)
	v.SetDefault("sellers_json.retry.max_attempts", 3)
	v.SetDefault("sellers_json.retry.base_delay_ms", 1000)
	v.SetDefault("sellers_json.retry.max_delay_ms", 10000)
	v.SetDefault("sellers_json.overrides_file", "")
	v.SetDefault("sellers_json.requests_per_second", 0)
	// Known publishers whose sellers.json is not served from the advertising system domain itself.
	v.SetDefault("sellers_json.overrides", []SellersOverride{
		{Domain: "google.com", URL: "https://storage.googleapis.com/adx-rtb-dictionaries/sellers.json"},
	})
	v.SetDefault("sellers_json.timeout_overrides", []HostTimeout{
		{Host: "storage.googleapis.com", TimeoutMs: 30000},
	})

	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.ttl_seconds", 24*60*60)
	v.SetDefault("cache.memory.size_bytes", 256*1024*1024)
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.timeout_ms", 200)
	v.SetDefault("cache.postgres.host", "")
	v.SetDefault("cache.postgres.port", 5432)
	v.SetDefault("cache.postgres.dbname", "")
	v.SetDefault("cache.postgres.user", "")
	v.SetDefault("cache.postgres.password", "")

	v.SetDefault("validation.batch_size", 10)
	v.SetDefault("validation.batch_delay_ms", 50)

	v.SetDefault("metrics.type", MetricsTypeNone)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)

	v.SetDefault("cors.allowed_origins", []string{"chrome-extension://*"})

	v.SetEnvPrefix("ADSTXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			glog.Warningf("No config file loaded, falling back to defaults and environment: %v", err)
		}
	}
}
