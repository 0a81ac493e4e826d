package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prebid/adstxt-validator/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(limit int, rps float64) *Coordinator {
	return New(metrics.SellersJSONDocument, limit, rps, &metrics.NilMetricsEngine{})
}

func TestConcurrencyCeiling(t *testing.T) {
	c := newTestCoordinator(DefaultMaxActive, 0)
	defer c.Stop()

	const tasks = 12
	var running, peak int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Do(context.Background(), fmt.Sprintf("domain%d.com", i), "", func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&running, -1)
				return i, nil
			})
		}(i)
	}

	require.Eventually(t, func() bool {
		s := c.Stats()
		return s.Active == DefaultMaxActive && s.Queued == tasks-DefaultMaxActive
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, DefaultMaxActive, stats.MaxActive)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(DefaultMaxActive))
}

func TestConcurrentCallsForSameKeyShareOneTask(t *testing.T) {
	c := newTestCoordinator(DefaultMaxActive, 0)
	defer c.Stop()

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	task := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return "payload", nil
	}

	type outcome struct {
		v      interface{}
		shared bool
	}
	results := make(chan outcome, 2)
	call := func() {
		v, err, shared := c.Do(context.Background(), "example.com", "", task)
		assert.NoError(t, err)
		results <- outcome{v: v, shared: shared}
	}

	go call()
	<-started
	go call()
	time.Sleep(50 * time.Millisecond)
	close(release)

	first, second := <-results, <-results
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "payload", first.v)
	assert.Equal(t, "payload", second.v)
	assert.True(t, first.shared && second.shared)
}

func TestSettledKeyIsFetchedAgain(t *testing.T) {
	c := newTestCoordinator(DefaultMaxActive, 0)
	defer c.Stop()

	var calls int32
	task := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}

	_, err, _ := c.Do(context.Background(), "example.com", "", task)
	assert.EqualError(t, err, "boom")
	_, err, _ = c.Do(context.Background(), "example.com", "", task)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPanickingTaskIsReportedAsError(t *testing.T) {
	c := newTestCoordinator(1, 0)
	defer c.Stop()

	_, err, _ := c.Do(context.Background(), "example.com", "", func(ctx context.Context) (interface{}, error) {
		panic("bad document")
	})
	assert.EqualError(t, err, "fetch task panicked: bad document")

	// the worker is still usable
	v, err, _ := c.Do(context.Background(), "example.org", "", func(ctx context.Context) (interface{}, error) {
		return 1, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, c.Stats().Active)
}

func TestPerHostRateLimit(t *testing.T) {
	c := newTestCoordinator(DefaultMaxActive, 20)
	defer c.Stop()

	task := func(ctx context.Context) (interface{}, error) { return nil, nil }
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err, _ := c.Do(context.Background(), fmt.Sprintf("key%d", i), "slow.example.com", task)
		require.NoError(t, err)
	}
	// burst of one, then one token every 50ms
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	assert.Nil(t, c.limiter(""))
	assert.Same(t, c.limiter("slow.example.com"), c.limiter("slow.example.com"))
}

func TestCancelledCallerStopsWaitingForRateLimit(t *testing.T) {
	c := newTestCoordinator(DefaultMaxActive, 5)
	defer c.Stop()

	task := func(ctx context.Context) (interface{}, error) { return nil, nil }
	_, err, _ := c.Do(context.Background(), "a", "example.com", task)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err, _ = c.Do(ctx, "b", "example.com", task)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestCancelledCallerDoesNotFailSharedTask(t *testing.T) {
	c := newTestCoordinator(DefaultMaxActive, 0)
	defer c.Stop()

	var calls int32
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	task := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		once.Do(func() { close(started) })
		select {
		case <-release:
			return "payload", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err, _ := c.Do(ctxA, "example.com", "", task)
		errA <- err
	}()
	<-started

	type outcome struct {
		v   interface{}
		err error
	}
	resultB := make(chan outcome, 1)
	go func() {
		v, err, _ := c.Do(context.Background(), "example.com", "", task)
		resultB <- outcome{v: v, err: err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(release)
	b := <-resultB
	require.NoError(t, b.err)
	assert.Equal(t, "payload", b.v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStateIsReportedToMetrics(t *testing.T) {
	me := &metrics.MetricsEngineMock{}
	me.On("RecordCoordinatorState", metrics.AdsTxtDocument, mock.Anything, mock.Anything).Return()

	c := New(metrics.AdsTxtDocument, 2, 0, me)
	defer c.Stop()

	_, err, _ := c.Do(context.Background(), "example.com", "", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	me.AssertCalled(t, "RecordCoordinatorState", metrics.AdsTxtDocument, 0, 1)
	me.AssertCalled(t, "RecordCoordinatorState", metrics.AdsTxtDocument, 1, 0)
	me.AssertCalled(t, "RecordCoordinatorState", metrics.AdsTxtDocument, 0, 0)
}
