package memorycache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/golang/glog"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prebid/adstxt-validator/cache"
)

// overflowCleanupInterval is how often expired oversized entries are swept.
const overflowCleanupInterval = 10 * time.Minute

// Store keeps payloads in a fixed-size in-process freecache. freecache refuses entries larger than
// 1/1024 of its size, so those are kept in an unbounded go-cache instead.
type Store struct {
	lru      *freecache.Cache
	overflow *gocache.Cache

	warnOnce sync.Once
}

// New allocates a store of sizeBytes. freecache enforces a 512KB minimum.
func New(sizeBytes int) *Store {
	return &Store{
		lru:      freecache.NewCache(sizeBytes),
		overflow: gocache.New(gocache.NoExpiration, overflowCleanupInterval),
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	b, err := s.lru.Get([]byte(key))
	if err == freecache.ErrNotFound {
		if v, ok := s.overflow.Get(key); ok {
			return v.([]byte), nil
		}
		return nil, cache.ErrNotFound
	}
	return b, err
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.lru.Set([]byte(key), value, expireSeconds(ttl))
	if err == freecache.ErrLargeEntry {
		s.warnOnce.Do(func() {
			glog.Warningf("Entry %s (%d bytes) does not fit the memory cache, keeping oversized entries outside of it", key, len(value))
		})
		s.lru.Del([]byte(key))
		s.overflow.Set(key, value, overflowTTL(ttl))
		return nil
	}
	if err == nil {
		s.overflow.Delete(key)
	}
	return err
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.lru.Del([]byte(key))
	s.overflow.Delete(key)
	return nil
}

// Len is the number of entries currently held.
func (s *Store) Len() int64 {
	return s.lru.EntryCount() + int64(s.overflow.ItemCount())
}

// expireSeconds rounds up so the backend never drops an entry before the caller's TTL.
// Zero means no expiry in freecache.
func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int(math.Ceil(ttl.Seconds()))
}

func overflowTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return time.Duration(expireSeconds(ttl)) * time.Second
}
