package config

import (
	"fmt"
	"time"
)

// Supported document cache backends.
const (
	CacheTypeMemory   = "memory"
	CacheTypeRedis    = "redis"
	CacheTypePostgres = "postgres"
)

// Cache configures the document cache shared by the ads.txt and sellers.json fetchers.
type Cache struct {
	Type       string        `mapstructure:"type"`
	TTLSeconds int           `mapstructure:"ttl_seconds"`
	Memory     InMemoryCache `mapstructure:"memory"`
	Redis      RedisCache    `mapstructure:"redis"`
	Postgres   PostgresCache `mapstructure:"postgres"`
}

type InMemoryCache struct {
	// Size of the cache before we evict objects
	SizeBytes int `mapstructure:"size_bytes"`
}

type RedisCache struct {
	// host:port address.
	Addr string `mapstructure:"addr"`
	// Optional password. Must match the password specified in the
	// requirepass server configuration option.
	Password string `mapstructure:"password"`
	// Database to be selected after connecting to the server.
	DB        int `mapstructure:"db"`
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// PostgresCache configures the Postgres connection used to persist cache envelopes.
type PostgresCache struct {
	Database string `mapstructure:"dbname"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// TTL returns the document lifetime, measured from write time.
func (cfg *Cache) TTL() time.Duration {
	return time.Duration(cfg.TTLSeconds) * time.Second
}

// Timeout returns the per-call Redis timeout.
func (cfg *RedisCache) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// ConnString builds a lib/pq connection string from the non-empty fields.
func (cfg *PostgresCache) ConnString() string {
	uri := ""
	if cfg.Host != "" {
		uri += fmt.Sprintf("host=%s ", cfg.Host)
	}

	if cfg.Port > 0 {
		uri += fmt.Sprintf("port=%d ", cfg.Port)
	}

	if cfg.Username != "" {
		uri += fmt.Sprintf("user=%s ", cfg.Username)
	}

	if cfg.Password != "" {
		uri += fmt.Sprintf("password=%s ", cfg.Password)
	}

	if cfg.Database != "" {
		uri += fmt.Sprintf("dbname=%s ", cfg.Database)
	}

	return uri
}

func (cfg *Cache) validate(errs []error) []error {
	if cfg.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_seconds must be positive. Got %d", cfg.TTLSeconds))
	}
	switch cfg.Type {
	case CacheTypeMemory:
		if cfg.Memory.SizeBytes < 512*1024 {
			errs = append(errs, fmt.Errorf("cache.memory.size_bytes must be at least 524288. Got %d", cfg.Memory.SizeBytes))
		}
	case CacheTypeRedis:
		if cfg.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("cache.redis.addr is required when cache.type is %s", CacheTypeRedis))
		}
	case CacheTypePostgres:
		if cfg.Postgres.Database == "" {
			errs = append(errs, fmt.Errorf("cache.postgres.dbname is required when cache.type is %s", CacheTypePostgres))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.type %q is not one of %s, %s, %s", cfg.Type, CacheTypeMemory, CacheTypeRedis, CacheTypePostgres))
	}
	return errs
}
