package coordinator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/alitto/pond"
	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultMaxActive is the number of fetches allowed to run at once per coordinator.
const DefaultMaxActive = 5

// queueCapacity bounds the pending tasks buffered by the pool. Submitters block beyond it.
const queueCapacity = 1000

type WorkerPool interface {
	Submit(task func())
	StopAndWait()
}

// Task performs one fetch. It runs on a pool worker.
type Task func(ctx context.Context) (interface{}, error)

// Stats is a snapshot of the coordinator's counters.
type Stats struct {
	Active int `json:"active"`
	Queued int `json:"queued"`
	// MaxActive is the highest Active value observed since the coordinator was created.
	MaxActive int `json:"max_active"`
	Limit     int `json:"limit"`
}

// Coordinator runs fetch tasks with a fixed concurrency ceiling, a FIFO queue and
// per-key deduplication of concurrent requests.
type Coordinator struct {
	docType      metrics.DocumentType
	limit        int
	pool         WorkerPool
	fetchGroup   singleflight.Group
	metricEngine metrics.MetricsEngine

	mu        sync.Mutex
	active    int
	queued    int
	maxActive int

	limitersMu        sync.Mutex
	limiters          map[string]*rate.Limiter
	requestsPerSecond float64
}

// New builds a coordinator that runs at most limit tasks at once. When requestsPerSecond is positive
// every host is additionally throttled to that rate.
func New(docType metrics.DocumentType, limit int, requestsPerSecond float64, metricEngine metrics.MetricsEngine) *Coordinator {
	if limit <= 0 {
		limit = DefaultMaxActive
	}
	return &Coordinator{
		docType:           docType,
		limit:             limit,
		pool:              pond.New(limit, queueCapacity),
		metricEngine:      metricEngine,
		limiters:          make(map[string]*rate.Limiter),
		requestsPerSecond: requestsPerSecond,
	}
}

// Do runs task for key unless a task for the same key is already in flight, in which case the caller
// waits for and shares that task's result. shared reports whether the result was shared.
//
// The task does not inherit the cancellation of ctx, since other callers may be waiting for it. A
// caller whose ctx is done stops waiting and gets ctx.Err(); the task keeps running for the others.
//
// host selects the politeness limiter; pass "" to skip throttling.
func (c *Coordinator) Do(ctx context.Context, key, host string, task Task) (v interface{}, err error, shared bool) {
	taskCtx := context.WithoutCancel(ctx)
	ch := c.fetchGroup.DoChan(key, func() (interface{}, error) {
		return c.run(taskCtx, host, task)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err, r.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

type result struct {
	value interface{}
	err   error
}

func (c *Coordinator) run(ctx context.Context, host string, task Task) (interface{}, error) {
	done := make(chan result, 1)

	c.enqueue()
	c.pool.Submit(func() {
		c.start()
		r := c.execute(ctx, host, task)
		// Counters settle before the caller is released.
		c.finish()
		done <- r
	})

	r := <-done
	return r.value, r.err
}

func (c *Coordinator) execute(ctx context.Context, host string, task Task) (r result) {
	defer func() {
		if p := recover(); p != nil {
			glog.Errorf("fetch task panicked: %v\n%s", p, debug.Stack())
			r = result{err: fmt.Errorf("fetch task panicked: %v", p)}
		}
	}()

	if limiter := c.limiter(host); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return result{err: &errortypes.Timeout{Message: fmt.Sprintf("waiting for rate limit on %s: %v", host, err)}}
		}
	}

	v, err := task(ctx)
	return result{value: v, err: err}
}

func (c *Coordinator) enqueue() {
	c.mu.Lock()
	c.queued++
	active, queued := c.active, c.queued
	c.mu.Unlock()
	c.metricEngine.RecordCoordinatorState(c.docType, active, queued)
}

func (c *Coordinator) start() {
	c.mu.Lock()
	c.queued--
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	active, queued := c.active, c.queued
	c.mu.Unlock()
	c.metricEngine.RecordCoordinatorState(c.docType, active, queued)
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	c.active--
	active, queued := c.active, c.queued
	c.mu.Unlock()
	c.metricEngine.RecordCoordinatorState(c.docType, active, queued)
}

func (c *Coordinator) limiter(host string) *rate.Limiter {
	if host == "" || c.requestsPerSecond <= 0 {
		return nil
	}
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()

	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.requestsPerSecond), 1)
		c.limiters[host] = l
	}
	return l
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Active:    c.active,
		Queued:    c.queued,
		MaxActive: c.maxActive,
		Limit:     c.limit,
	}
}

// Stop waits for queued and running tasks, then releases the workers.
func (c *Coordinator) Stop() {
	c.pool.StopAndWait()
}
