package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViperFromYAML(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetupViper(v, "")
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yaml)))
	return v
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetupViper(v, "")

	cfg, err := New(v)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 5, cfg.AdsTxt.Concurrency)
	assert.Equal(t, 5, cfg.SellersJSON.Concurrency)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, CacheTypeMemory, cfg.Cache.Type)
	assert.Equal(t, 10, cfg.Validation.BatchSize)
	assert.Equal(t, 3, cfg.SellersJSON.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.SellersJSON.Retry.BaseDelay())
	assert.Equal(t, 10*time.Second, cfg.AdsTxt.Timeout())
	assert.Equal(t, "https://storage.googleapis.com/adx-rtb-dictionaries/sellers.json", cfg.SellersJSON.OverrideURLs()["google.com"])
	assert.Equal(t, 30*time.Second, cfg.SellersJSON.HostTimeouts()["storage.googleapis.com"])
}

func TestFullConfig(t *testing.T) {
	v := newViperFromYAML(t, `
port: 9000
admin_port: 9001
adstxt:
  timeout_ms: 2000
  concurrency: 3
sellers_json:
  timeout_ms: 4000
  retry:
    max_attempts: 4
    base_delay_ms: 100
    max_delay_ms: 800
  overrides:
    - domain: Example.com
      url: https://cdn.example.net/sellers.json
  timeout_overrides:
    - host: slow.example.org
      timeout_ms: 20000
cache:
  type: redis
  ttl_seconds: 60
  redis:
    addr: localhost:6379
validation:
  batch_size: 4
  batch_delay_ms: 0
`)

	cfg, err := New(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 3, cfg.AdsTxt.Concurrency)
	assert.Equal(t, 4, cfg.SellersJSON.Retry.MaxAttempts)
	assert.Equal(t, 800*time.Millisecond, cfg.SellersJSON.Retry.MaxDelay())
	assert.Equal(t, map[string]string{"example.com": "https://cdn.example.net/sellers.json"}, cfg.SellersJSON.OverrideURLs())
	assert.Equal(t, 20*time.Second, cfg.SellersJSON.HostTimeouts()["slow.example.org"])
	assert.Equal(t, CacheTypeRedis, cfg.Cache.Type)
	assert.Equal(t, time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 4, cfg.Validation.BatchSize)
	assert.Equal(t, time.Duration(0), cfg.Validation.BatchDelay())
}

func TestValidateErrors(t *testing.T) {
	testCases := []struct {
		desc      string
		yaml      string
		expErrors int
	}{
		{
			desc:      "unknown cache type",
			yaml:      "cache:\n  type: floppy\n",
			expErrors: 1,
		},
		{
			desc:      "redis without address",
			yaml:      "cache:\n  type: redis\n",
			expErrors: 1,
		},
		{
			desc:      "postgres without database",
			yaml:      "cache:\n  type: postgres\n",
			expErrors: 1,
		},
		{
			desc:      "retry delays inverted",
			yaml:      "sellers_json:\n  retry:\n    base_delay_ms: 500\n    max_delay_ms: 100\n",
			expErrors: 1,
		},
		{
			desc:      "invalid override",
			yaml:      "sellers_json:\n  overrides:\n    - domain: 'not a domain'\n      url: 'nope'\n",
			expErrors: 2,
		},
		{
			desc:      "prometheus without port",
			yaml:      "metrics:\n  type: prometheus\n",
			expErrors: 1,
		},
		{
			desc:      "zero batch size and concurrency",
			yaml:      "validation:\n  batch_size: 0\nadstxt:\n  concurrency: 0\n",
			expErrors: 2,
		},
	}
	for _, test := range testCases {
		t.Run(test.desc, func(t *testing.T) {
			v := newViperFromYAML(t, test.yaml)
			cfg, err := New(v)
			require.NotNil(t, cfg)
			require.Error(t, err)
			assert.Len(t, cfg.validate(), test.expErrors)
		})
	}
}

func TestValidationWarnings(t *testing.T) {
	yaml := `adstxt:
  timeout_ms: 1000
  probe_timeout_ms: 2000
sellers_json:
  overrides:
    - domain: example.com
      url: https://cdn.example.com/a/sellers.json
    - domain: Example.com
      url: https://cdn.example.com/b/sellers.json
`
	cfg, err := New(newViperFromYAML(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/b/sellers.json", cfg.SellersJSON.OverrideURLs()["example.com"])

	errs := cfg.validate()
	require.Len(t, errs, 2)
	assert.False(t, errortypes.ContainsFatalError(errs))
	assert.Len(t, errortypes.WarningOnly(errs), 2)
	assert.Equal(t, errortypes.ConfigWarningCode, errortypes.ReadCode(errs[0]))
}

func TestValidationWarningsAreDroppedFromFatalErrors(t *testing.T) {
	yaml := "adstxt:\n  timeout_ms: 1000\n  probe_timeout_ms: 2000\ncache:\n  type: floppy\n"
	_, err := New(newViperFromYAML(t, yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
	assert.NotContains(t, err.Error(), "probe_timeout_ms")
}

func TestPostgresConnString(t *testing.T) {
	cfg := PostgresCache{Host: "db", Port: 5432, Username: "u", Password: "p", Database: "cache"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cache ", cfg.ConnString())
	assert.Equal(t, "", (&PostgresCache{}).ConnString())
}
