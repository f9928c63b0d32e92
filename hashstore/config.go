package hashstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	env "github.com/keyline-io/go-keyline-common/environment"
	"github.com/keyline-io/go-keyline-common/logger"
)

// so callers do not have to import the logger package everywhere
type Logger = logger.Logger

const (
	//nolint:gosec
	HashstorePasswordEnvFileSuffix = "HASHSTORE_PASSWORD_FILENAME"
	HashstoreClusterSizeEnvSuffix  = "HASHSTORE_CLUSTER_SIZE"
	HashstoreNamespaceEnvSuffix    = "HASHSTORE_KEY_NAMESPACE"
	HashstoreNodeAddressFmtSuffix  = "HASHSTORE_NODE%d_ADDRESS"
	// The default implementation does 10 * GOMAXPROCS(0). GOMAXPROCS is
	// problematic in containers. Note that each cluster node gets its own pool
	nodePoolSize = 10

	HashstoreNodeAddressSuffix = "HASHSTORE_ADDRESS"
	HashstoreDBSuffix          = "HASHSTORE_DB"

	namespaceSeparator = ":"
)

type RedisConfig interface {
	GetClusterOptions() (*redis.ClusterOptions, error)
	GetOptions() (*redis.Options, error)
	Namespace() string
	IsCluster() bool
	URL() string
	Log() Logger
}

type Scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
}

// RedisClient is the transport contract the hash record layer needs: the
// per-field hash primitives, key level expiry and existence, and a script
// execution seam. Both redis.Client and redis.ClusterClient satisfy it.
type RedisClient interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd

	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HExists(ctx context.Context, key, field string) *redis.BoolCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HIncrByFloat(ctx context.Context, key, field string, incr float64) *redis.FloatCmd
	HKeys(ctx context.Context, key string) *redis.StringSliceCmd
	HLen(ctx context.Context, key string) *redis.IntCmd
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HSetNX(ctx context.Context, key, field string, value any) *redis.BoolCmd
	HVals(ctx context.Context, key string) *redis.StringSliceCmd

	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)

	Close() error
	Scripter
}

type clusterConfig struct {
	log            Logger
	Size           int
	namespace      string
	clusterOptions redis.ClusterOptions
	options        redis.Options
}

// FromEnvOrFatal assumes conventional service env vars and populates a
// RedisConfig or Fatals out. A cluster size of -1 selects a single node.
func FromEnvOrFatal(log Logger) RedisConfig {
	cfg := clusterConfig{log: log}

	cfg.Size = env.GetIntOrFatal(HashstoreClusterSizeEnvSuffix)
	cfg.namespace = env.GetOrFatal(HashstoreNamespaceEnvSuffix)

	if cfg.Size == -1 {
		cfg.options.Addr = env.GetOrFatal(HashstoreNodeAddressSuffix)
		cfg.options.DB = env.GetIntOrFatal(HashstoreDBSuffix)
		cfg.options.Password = env.ReadIndirectOrFatal(HashstorePasswordEnvFileSuffix)
		return &cfg
	}

	cfg.clusterOptions.Password = env.ReadIndirectOrFatal(HashstorePasswordEnvFileSuffix)
	cfg.clusterOptions.PoolSize = nodePoolSize
	cfg.clusterOptions.Addrs = make([]string, 0, cfg.Size)
	cfg.clusterOptions.MaxRedirects = cfg.Size
	for i := 0; i < cfg.Size; i++ {
		suffix := fmt.Sprintf(HashstoreNodeAddressFmtSuffix, i)
		cfg.clusterOptions.Addrs = append(
			cfg.clusterOptions.Addrs,
			env.GetOrFatal(suffix),
		)
		log.InfoR("Addrs", cfg.clusterOptions.Addrs)
	}

	return &cfg
}

func (cfg *clusterConfig) Log() Logger {
	return cfg.log
}

func (cfg *clusterConfig) IsCluster() bool {
	return cfg.Size > -1
}

func (cfg *clusterConfig) GetClusterOptions() (*redis.ClusterOptions, error) {

	if cfg.IsCluster() {
		return &cfg.clusterOptions, nil
	}

	return nil, fmt.Errorf("unexpected config type when requesting ClusterOptions")
}

func (cfg *clusterConfig) GetOptions() (*redis.Options, error) {

	if !cfg.IsCluster() {
		return &cfg.options, nil
	}

	return nil, fmt.Errorf("unexpected config type when requesting Options")
}

func (cfg *clusterConfig) Namespace() string {
	return cfg.namespace
}

func (cfg *clusterConfig) URL() string {
	if cfg.IsCluster() {
		if len(cfg.clusterOptions.Addrs) == 0 {
			return ""
		}
		return cfg.clusterOptions.Addrs[0]
	}

	return cfg.options.Addr
}

func NewRedisClient(cfg RedisConfig) (RedisClient, error) {
	log := cfg.Log()

	var err error
	if cfg.IsCluster() {
		var copts *redis.ClusterOptions
		if copts, err = cfg.GetClusterOptions(); err != nil {
			return nil, err
		}
		return redis.NewClusterClient(copts), nil
	}

	var opts *redis.Options
	if opts, err = cfg.GetOptions(); err != nil {
		return nil, err
	}
	opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	log.Infof("connecting to redis: %v", opts)
	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	status := c.Ping(ctx)
	if status.Err() != nil {
		log.Infof("failed ping: %v (%v, %v)", status.Err(), status.FullName(), status.Args())
		return nil, ConnectivityError(status.Err(), opts.Addr)
	}
	return c, nil
}
