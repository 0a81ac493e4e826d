package postgrescache

import (
	"context"
	"database/sql"
	"time"

	"github.com/coocood/freecache"
	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/prebid/adstxt-validator/cache"
	"github.com/prebid/adstxt-validator/config"
)

const (
	selectQuery = "SELECT payload FROM document_cache WHERE cache_key = $1 AND expires_at > $2 LIMIT 1"
	upsertQuery = "INSERT INTO document_cache (cache_key, payload, expires_at) VALUES ($1, $2, $3) " +
		"ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at"
	deleteQuery = "DELETE FROM document_cache WHERE cache_key = $1"
)

// lruSize is the size of the in-process layer in front of the database.
const lruSize = 16 * 1024 * 1024

// Store keeps payloads in a postgres table, fronted by a small freecache.
//
//	CREATE TABLE document_cache (
//	    cache_key  text PRIMARY KEY,
//	    payload    bytea NOT NULL,
//	    expires_at timestamptz NOT NULL
//	);
type Store struct {
	db  *sql.DB
	lru *freecache.Cache
	now func() time.Time
}

// New opens the database. A failed ping is logged; the store keeps operating and retries per call.
func New(cfg config.PostgresCache) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnString()+" sslmode=disable")
	if err != nil {
		return nil, err
	}

	s := NewWithDB(db)
	if err = db.Ping(); err != nil {
		glog.Errorf("failed to connect to postgres cache: %v", err)
	}
	return s, nil
}

func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:  db,
		lru: freecache.NewCache(lruSize),
		now: time.Now,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := s.lru.Get([]byte(key)); err == nil {
		return b, nil
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, selectQuery, key, s.now()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, key, value, s.now().Add(ttl)); err != nil {
		return err
	}
	// The lru only needs to outlive a burst of reads; the database row is authoritative.
	s.lru.Set([]byte(key), value, 60)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.lru.Del([]byte(key))
	_, err := s.db.ExecContext(ctx, deleteQuery, key)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
