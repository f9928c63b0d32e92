package hashstore

// Defines mocks for the redis client, for injecting remote failures.

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stretchr/testify/mock"
)

// mockClient is a mock redis client. Only the methods a test arranges
// expectations for may be called; the embedded interface satisfies the rest
// and panics if reached.
type mockClient struct {
	mock.Mock
	RedisClient
}

func (mc *mockClient) HGet(ctx context.Context, key, field string) *redis.StringCmd {

	arguments := mc.Called(key, field)
	return arguments.Get(0).(*redis.StringCmd)
}

func (mc *mockClient) HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd {

	arguments := mc.Called(key)
	return arguments.Get(0).(*redis.StringStringMapCmd)
}

func (mc *mockClient) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {

	arguments := mc.Called(append([]any{key}, values...)...)
	return arguments.Get(0).(*redis.IntCmd)
}

func (mc *mockClient) HSetNX(ctx context.Context, key, field string, value any) *redis.BoolCmd {

	arguments := mc.Called(key, field, value)
	return arguments.Get(0).(*redis.BoolCmd)
}

func (mc *mockClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {

	arguments := mc.Called(key, expiration)
	return arguments.Get(0).(*redis.BoolCmd)
}

func (mc *mockClient) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {

	arguments := mc.Called()
	return nil, arguments.Error(1)
}

func (mc *mockClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {

	arguments := mc.Called(keys)
	return arguments.Get(0).(*redis.IntCmd)
}

func (mc *mockClient) Close() error {
	arguments := mc.Called()
	return arguments.Error(0)
}
