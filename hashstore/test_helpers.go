package hashstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/keyline-io/go-keyline-common/logger"
)

// NewHashWithMockedRedis returns a Hash bound to a mock client. Don't use
// the real thing.
func NewHashWithMockedRedis(name string) (*Hash, *mockClient) {
	mClient := &mockClient{}
	h := newHashWithClient(
		&clusterConfig{
			Size:      -1,
			namespace: "unit-tests",
			log:       logger.Sugar,
		},
		name,
		mClient,
	)
	return h, mClient
}

// recordingClient wraps a real client and counts the mutating commands that
// pass through it, so tests can assert that an operation issued no writes.
type recordingClient struct {
	RedisClient
	hsets     int64
	expires   int64
	pipelines int64
}

func (rc *recordingClient) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	atomic.AddInt64(&rc.hsets, 1)
	return rc.RedisClient.HSet(ctx, key, values...)
}

func (rc *recordingClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	atomic.AddInt64(&rc.expires, 1)
	return rc.RedisClient.Expire(ctx, key, expiration)
}

func (rc *recordingClient) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	atomic.AddInt64(&rc.pipelines, 1)
	return rc.RedisClient.Pipelined(ctx, fn)
}

func (rc *recordingClient) writes() int64 {
	return atomic.LoadInt64(&rc.hsets) + atomic.LoadInt64(&rc.expires) + atomic.LoadInt64(&rc.pipelines)
}
