package hashstore

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keyline-io/go-keyline-common/logger"
)

func newTestConfig() RedisConfig {
	return &clusterConfig{
		Size:      -1,
		namespace: "unit-tests",
		log:       logger.Sugar,
	}
}

// newTestStore sets up a fresh instance of miniredis and returns a Hash
// bound to a unique record name on it.
func newTestStore(t *testing.T) (*Hash, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return newHashWithClient(newTestConfig(), "rec-"+uuid.NewString(), c), mr
}

func newTestRecord[T any](t *testing.T, opts ...RecordOption) (*Record[T], *miniredis.Miniredis) {
	t.Helper()
	h, mr := newTestStore(t)
	r, err := newRecordWithHash[T](h, opts...)
	require.NoError(t, err)
	return r, mr
}
