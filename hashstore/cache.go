package hashstore

import (
	"context"
	"sync/atomic"
	"time"

	otrace "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Producer computes the replacement value on a cache miss. It may resolve
// immediately or wait on deferred work; either way the miss path blocks on
// it before populating.
type Producer[T any] func(ctx context.Context) (T, error)

// CachedRecord layers get-or-compute-and-store-with-expiry on top of a
// Record.
//
// There is no single-flight de-duplication: concurrent callers that all
// observe a miss each invoke their producer and each write the record, last
// write wins at the store. That trades stampede prevention for simplicity.
// Callers needing de-duplication must layer it themselves, e.g. an
// in-process mutex per record key, which only covers same process misses.
type CachedRecord[T any] struct {
	record *Record[T]
	expiry time.Duration

	cacheHits   int64
	cacheMisses int64
	hitsMetric  prometheus.Counter
	missMetric  prometheus.Counter
}

type cacheOptions struct {
	record []RecordOption
	hits   prometheus.Counter
	misses prometheus.Counter
}

type CacheOption func(*cacheOptions)

// WithRecordOptions passes options through to the underlying Record.
func WithRecordOptions(opts ...RecordOption) CacheOption {
	return func(o *cacheOptions) {
		o.record = append(o.record, opts...)
	}
}

// WithCacheMetrics registers prometheus counters for hits and misses. The
// counters are observation only and never affect results or errors.
func WithCacheMetrics(hits, misses prometheus.Counter) CacheOption {
	return func(o *cacheOptions) {
		o.hits = hits
		o.misses = misses
	}
}

// NewCachedRecord constructs a cached record with the given default expiry.
// A zero expiry means populated records never expire unless a per call
// override is supplied.
func NewCachedRecord[T any](cfg RedisConfig, name string, expiry time.Duration, opts ...CacheOption) (*CachedRecord[T], error) {
	o := cacheOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	record, err := NewRecord[T](cfg, name, o.record...)
	if err != nil {
		return nil, err
	}
	return &CachedRecord[T]{
		record:     record,
		expiry:     expiry,
		hitsMetric: o.hits,
		missMetric: o.misses,
	}, nil
}

func newCachedRecordWithHash[T any](hash *Hash, expiry time.Duration, opts ...CacheOption) (*CachedRecord[T], error) {
	o := cacheOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	record, err := newRecordWithHash[T](hash, o.record...)
	if err != nil {
		return nil, err
	}
	return &CachedRecord[T]{
		record:     record,
		expiry:     expiry,
		hitsMetric: o.hits,
		missMetric: o.misses,
	}, nil
}

func (c *CachedRecord[T]) Log() Logger {
	return c.record.Log()
}

func (c *CachedRecord[T]) Record() *Record[T] {
	return c.record
}

func (c *CachedRecord[T]) Close() error {
	return c.record.Close()
}

func (c *CachedRecord[T]) Delete(ctx context.Context) error {
	_, err := c.record.hash.Delete(ctx)
	return err
}

// Hits and Misses report the per instance cache counters.
func (c *CachedRecord[T]) Hits() int64 {
	return atomic.LoadInt64(&c.cacheHits)
}

func (c *CachedRecord[T]) Misses() int64 {
	return atomic.LoadInt64(&c.cacheMisses)
}

type populateSettings struct {
	expiry     time.Duration
	haveExpiry bool
}

type PopulateOption func(*populateSettings)

// WithTTL overrides the configured expiry for one call.
func WithTTL(ttl time.Duration) PopulateOption {
	return func(s *populateSettings) {
		s.expiry = ttl
		s.haveExpiry = ttl > 0
	}
}

// WithDeadline expires the record at an absolute time. The deadline is
// converted to a duration against the caller's clock when the option is
// built and is not re-evaluated later in the call.
func WithDeadline(deadline time.Time) PopulateOption {
	ttl := time.Until(deadline)
	return func(s *populateSettings) {
		s.expiry = ttl
		s.haveExpiry = true
	}
}

// GetOrPopulate returns the cached record if present; a hit performs no
// write and never touches the expiry. On a miss the producer is invoked
// (exactly once for this call), the result is stored, and when an expiry
// applies the store and the expiry requests are issued concurrently and
// joined: both must complete before the call returns, and if either fails
// the call fails even though the other may already have taken effect
// remotely. Every propagated error leaves the remote record state unknown to
// the caller; there is no rollback and no retry here.
func (c *CachedRecord[T]) GetOrPopulate(ctx context.Context, produce Producer[T], opts ...PopulateOption) (T, error) {
	var zero T

	log := c.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.cache.GetOrPopulate")
	defer span.Finish()

	value, ok, err := c.record.Load(ctx)
	if err != nil {
		return zero, err
	}
	if ok {
		hits := atomic.AddInt64(&c.cacheHits, 1)
		if c.hitsMetric != nil {
			c.hitsMetric.Inc()
		}
		log.Debugf("GetOrPopulate: %s hit (hits %d misses %d)", c.record.Key(), hits, c.Misses())
		return value, nil
	}

	atomic.AddInt64(&c.cacheMisses, 1)
	if c.missMetric != nil {
		c.missMetric.Inc()
	}

	settings := populateSettings{expiry: c.expiry, haveExpiry: c.expiry > 0}
	for _, opt := range opts {
		opt(&settings)
	}

	value, err = produce(ctx)
	if err != nil {
		return zero, err
	}

	log.Debugf("GetOrPopulate: %s miss, populating (expiry %v)", c.record.Key(), settings.expiry)

	if !settings.haveExpiry {
		if err = c.record.Store(ctx, value); err != nil {
			return zero, err
		}
		return value, nil
	}

	// The write and the expiry travel as one pipelined pair: both requests
	// are outstanding together and both acks are awaited before returning.
	// If either fails the call fails, even though the other request may
	// already have succeeded remotely.
	if err = c.record.storeWithExpiry(ctx, value, settings.expiry); err != nil {
		return zero, err
	}

	return value, nil
}
