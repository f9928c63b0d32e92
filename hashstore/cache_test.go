package hashstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyline-io/go-keyline-common/logger"
	"github.com/keyline-io/go-keyline-common/metrics"
)

func newTestCachedRecord[T any](t *testing.T, expiry time.Duration, opts ...CacheOption) (*CachedRecord[T], *recordingClient) {
	t.Helper()
	h, _ := newTestStore(t)
	rc := &recordingClient{RedisClient: h.client}
	h.client = rc
	c, err := newCachedRecordWithHash[T](h, expiry, opts...)
	require.NoError(t, err)
	return c, rc
}

// TestGetOrPopulateMiss: the producer runs exactly once for the call, its
// value is returned, persisted with the configured expiry, and a subsequent
// Load sees it.
func TestGetOrPopulateMiss(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	c, _ := newTestCachedRecord[TestStruct](t, time.Minute)
	ctx := context.TODO()

	produced := 0
	value, err := c.GetOrPopulate(ctx, func(ctx context.Context) (TestStruct, error) {
		produced++
		return TestStruct{Foo: "computed", Bar: 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, produced)
	require.Equal(t, TestStruct{Foo: "computed", Bar: 7}, value)

	loaded, ok, err := c.Record().Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value, loaded)

	assert.Equal(t, int64(0), c.Hits())
	assert.Equal(t, int64(1), c.Misses())
}

// TestGetOrPopulateMissSetsExpiry confirms the populated record carries the
// TTL and disappears once it elapses.
func TestGetOrPopulateMissSetsExpiry(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, mr := newTestStore(t)
	c, err := newCachedRecordWithHash[TestStruct](h, time.Minute)
	require.NoError(t, err)
	ctx := context.TODO()

	_, err = c.GetOrPopulate(ctx, func(ctx context.Context) (TestStruct, error) {
		return TestStruct{Foo: "x", Bar: 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, time.Minute, mr.TTL(h.Key()))

	mr.FastForward(2 * time.Minute)

	ok, err := h.KeyExists(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestGetOrPopulateHit: the producer is never invoked and no write of any
// kind is issued - a hit does not refresh the expiry either.
func TestGetOrPopulateHit(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	c, rc := newTestCachedRecord[TestStruct](t, time.Minute)
	ctx := context.TODO()

	require.NoError(t, c.Record().Store(ctx, TestStruct{Foo: "cached", Bar: 3}))
	before := rc.writes()

	value, err := c.GetOrPopulate(ctx, func(ctx context.Context) (TestStruct, error) {
		t.Fatal("producer invoked on a cache hit")
		return TestStruct{}, nil
	})
	require.NoError(t, err)
	require.Equal(t, TestStruct{Foo: "cached", Bar: 3}, value)
	require.Equal(t, before, rc.writes())

	assert.Equal(t, int64(1), c.Hits())
	assert.Equal(t, int64(0), c.Misses())
}

// TestGetOrPopulateNoExpiry: zero configured expiry populates without a TTL.
func TestGetOrPopulateNoExpiry(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, mr := newTestStore(t)
	c, err := newCachedRecordWithHash[TestStruct](h, 0)
	require.NoError(t, err)

	_, err = c.GetOrPopulate(context.TODO(), func(ctx context.Context) (TestStruct, error) {
		return TestStruct{Foo: "x", Bar: 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), mr.TTL(h.Key()))
}

func TestGetOrPopulateTTLOverride(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, mr := newTestStore(t)
	c, err := newCachedRecordWithHash[TestStruct](h, time.Minute)
	require.NoError(t, err)

	_, err = c.GetOrPopulate(context.TODO(), func(ctx context.Context) (TestStruct, error) {
		return TestStruct{Foo: "x", Bar: 1}, nil
	}, WithTTL(time.Hour))
	require.NoError(t, err)
	require.Equal(t, time.Hour, mr.TTL(h.Key()))
}

func TestGetOrPopulateDeadline(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, mr := newTestStore(t)
	c, err := newCachedRecordWithHash[TestStruct](h, 0)
	require.NoError(t, err)

	_, err = c.GetOrPopulate(context.TODO(), func(ctx context.Context) (TestStruct, error) {
		return TestStruct{Foo: "x", Bar: 1}, nil
	}, WithDeadline(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	ttl := mr.TTL(h.Key())
	require.Greater(t, ttl, 59*time.Minute)
	require.LessOrEqual(t, ttl, time.Hour)
}

// TestGetOrPopulateProducerError: the producer's error is always returned to
// the caller and nothing is written.
func TestGetOrPopulateProducerError(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	c, rc := newTestCachedRecord[TestStruct](t, time.Minute)

	errProduce := errors.New("upstream unavailable")
	_, err := c.GetOrPopulate(context.TODO(), func(ctx context.Context) (TestStruct, error) {
		return TestStruct{}, errProduce
	})
	require.ErrorIs(t, err, errProduce)
	require.Equal(t, int64(0), rc.writes())

	_, ok, err := c.Record().Load(context.TODO())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestGetOrPopulateRepopulates: once the record expires the next call is a
// miss and produces again.
func TestGetOrPopulateRepopulates(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, mr := newTestStore(t)
	c, err := newCachedRecordWithHash[TestStruct](h, time.Minute)
	require.NoError(t, err)
	ctx := context.TODO()

	produced := 0
	produce := func(ctx context.Context) (TestStruct, error) {
		produced++
		return TestStruct{Foo: "v", Bar: int64(produced)}, nil
	}

	_, err = c.GetOrPopulate(ctx, produce)
	require.NoError(t, err)

	_, err = c.GetOrPopulate(ctx, produce)
	require.NoError(t, err)
	require.Equal(t, 1, produced)

	mr.FastForward(2 * time.Minute)

	value, err := c.GetOrPopulate(ctx, produce)
	require.NoError(t, err)
	require.Equal(t, 2, produced)
	require.Equal(t, int64(2), value.Bar)
}

// TestGetOrPopulateAsyncProducer: a producer backed by deferred work behaves
// identically to a synchronous one.
func TestGetOrPopulateAsyncProducer(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	c, _ := newTestCachedRecord[TestStruct](t, time.Minute)

	results := make(chan TestStruct, 1)
	go func() {
		results <- TestStruct{Foo: "deferred", Bar: 9}
	}()

	value, err := c.GetOrPopulate(context.TODO(), func(ctx context.Context) (TestStruct, error) {
		select {
		case v := <-results:
			return v, nil
		case <-ctx.Done():
			return TestStruct{}, ctx.Err()
		}
	})
	require.NoError(t, err)
	require.Equal(t, TestStruct{Foo: "deferred", Bar: 9}, value)
}

// TestGetOrPopulateLoadError: a failed read is surfaced, never treated as a
// miss.
func TestGetOrPopulateLoadError(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, mClient := NewHashWithMockedRedis("broken")
	c, err := newCachedRecordWithHash[TestStruct](h, time.Minute)
	require.NoError(t, err)

	cmd := redis.NewStringStringMapCmd(context.TODO())
	cmd.SetErr(errors.New("MASTERDOWN"))
	mClient.On("HGetAll", h.Key()).Return(cmd).Once()

	_, err = c.GetOrPopulate(context.TODO(), func(ctx context.Context) (TestStruct, error) {
		t.Fatal("producer invoked when the read failed")
		return TestStruct{}, nil
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrProtocol)
	mClient.AssertExpectations(t)
}

// TestGetOrPopulateMetrics: the optional prometheus counters observe hits
// and misses without affecting results.
func TestGetOrPopulateMetrics(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	hitsVec := metrics.CacheHitsMetric()
	missesVec := metrics.CacheMissesMetric()
	hits := hitsVec.WithLabelValues("test-record")
	misses := missesVec.WithLabelValues("test-record")

	h, _ := newTestStore(t)
	c, err := newCachedRecordWithHash[TestStruct](h, time.Minute, WithCacheMetrics(hits, misses))
	require.NoError(t, err)
	ctx := context.TODO()

	produce := func(ctx context.Context) (TestStruct, error) {
		return TestStruct{Foo: "x", Bar: 1}, nil
	}

	_, err = c.GetOrPopulate(ctx, produce)
	require.NoError(t, err)
	_, err = c.GetOrPopulate(ctx, produce)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(misses))
}

func TestCachedRecordDelete(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	c, _ := newTestCachedRecord[TestStruct](t, time.Minute)
	ctx := context.TODO()

	require.NoError(t, c.Record().Store(ctx, TestStruct{Foo: "x", Bar: 1}))
	require.NoError(t, c.Delete(ctx))

	_, ok, err := c.Record().Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
