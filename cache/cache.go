package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/errortypes"
)

// ErrNotFound is returned by a Store when it holds nothing under a key.
var ErrNotFound = errors.New("cache: key not found")

// Store persists raw payloads by key. Implementations must be safe for concurrent use.
//
// ttl is a hint which lets a backend reclaim space. Expiry is decided by Cache at read time,
// so a Store must never expire an entry before ttl has passed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Status tags negative results. Successful payloads have an empty Status.
type Status string

const (
	StatusInvalid  Status = "invalid"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Entry is the envelope stored for every key.
type Entry[T any] struct {
	Data      T      `json:"data"`
	Status    Status `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Negative reports whether the entry records a failed lookup rather than a document.
func (e *Entry[T]) Negative() bool {
	return e.Status != ""
}

// Cache stores documents of type T in a Store, one entry per key, with a TTL measured from write time.
type Cache[T any] struct {
	store Store
	ttl   time.Duration
	clock clock.Clock
}

func New[T any](store Store, ttl time.Duration, clk clock.Clock) *Cache[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[T]{
		store: store,
		ttl:   ttl,
		clock: clk,
	}
}

// Get returns the entry stored under key. Expired or unreadable entries are removed and reported absent.
func (c *Cache[T]) Get(ctx context.Context, key Key) (*Entry[T], bool) {
	if !key.valid() {
		return nil, false
	}
	b, err := c.store.Get(ctx, key.String())
	if err != nil {
		if err != ErrNotFound {
			glog.Warningf("cache read of %s failed: %v", key, err)
		}
		return nil, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(b, &entry); err != nil {
		glog.Warningf("dropping undecodable cache entry %s: %v", key, err)
		c.Delete(ctx, key)
		return nil, false
	}

	if c.clock.Now().UnixMilli()-entry.Timestamp > c.ttl.Milliseconds() {
		c.Delete(ctx, key)
		return nil, false
	}
	return &entry, true
}

// Set stores data under key, stamped with the current time. It returns the stamp in Unix milliseconds.
func (c *Cache[T]) Set(ctx context.Context, key Key, data T) (int64, error) {
	return c.put(ctx, key, Entry[T]{Data: data})
}

// SetNegative records that looking up key failed with status.
func (c *Cache[T]) SetNegative(ctx context.Context, key Key, status Status, cause error) (int64, error) {
	entry := Entry[T]{Status: status}
	if cause != nil {
		entry.Error = errortypes.ReadKey(cause)
	}
	return c.put(ctx, key, entry)
}

func (c *Cache[T]) Delete(ctx context.Context, key Key) error {
	if !key.valid() {
		return nil
	}
	return c.store.Delete(ctx, key.String())
}

func (c *Cache[T]) put(ctx context.Context, key Key, entry Entry[T]) (int64, error) {
	if !key.valid() {
		return 0, &errortypes.BadInput{Message: "invalid cache key"}
	}
	entry.Timestamp = c.clock.Now().UnixMilli()
	b, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("encoding cache entry %s: %v", key, err)
	}
	if err := c.store.Set(ctx, key.String(), b, c.ttl); err != nil {
		return 0, err
	}
	return entry.Timestamp, nil
}
