package hashstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	otrace "github.com/opentracing/opentracing-go"
)

type ClientContext struct {
	cfg  RedisConfig
	name string
}

// Hash exposes the primitive field level operations on one named hash record.
// Each operation is an independent request to the store; there is no client
// side batching beyond the store's native multi field commands and no
// internal retry. The record is shared: any client holding the key may read
// and write concurrently, and field level atomicity is the store's.
type Hash struct {
	ClientContext
	// the client is long lived and has its own internal pool. There is no
	// strict need to "close"
	client RedisClient

	clampIntMax   ScriptRunner
	clampIntMin   ScriptRunner
	clampFloatMax ScriptRunner
	clampFloatMin ScriptRunner
}

func NewHash(cfg RedisConfig, name string) (*Hash, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return newHashWithClient(cfg, name, client), nil
}

func newHashWithClient(cfg RedisConfig, name string, client RedisClient) *Hash {
	return &Hash{
		ClientContext: ClientContext{
			cfg:  cfg,
			name: name,
		},
		client:        client,
		clampIntMax:   incrByClampMax,
		clampIntMin:   incrByClampMin,
		clampFloatMax: incrByFloatClampMax,
		clampFloatMin: incrByFloatClampMin,
	}
}

func (h *Hash) Log() Logger {
	return h.cfg.Log()
}

func (h *Hash) Name() string {
	return h.name
}

// Key is the store wide unique key of the record.
func (h *Hash) Key() string {
	return h.cfg.Namespace() + namespaceSeparator + h.name
}

func (h *Hash) Close() error {
	if h.client == nil {
		return nil
	}
	err := h.client.Close()
	h.client = nil
	return err
}

func (h *Hash) Exists(ctx context.Context, field string) (bool, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HExists")
	defer span.Finish()

	ok, err := h.client.HExists(ctx, h.Key(), field).Result()
	if err != nil {
		return false, remoteErr(err, h.Key())
	}
	return ok, nil
}

// Get returns the raw bytes of field. The second return is false when the
// field is absent, which is not an error.
func (h *Hash) Get(ctx context.Context, field string) ([]byte, bool, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HGet")
	defer span.Finish()

	value, err := h.client.HGet(ctx, h.Key(), field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, remoteErr(err, h.Key())
	}
	return []byte(value), true, nil
}

// GetMany returns the values for fields in the same order as the input.
// Absent fields yield nil entries.
func (h *Hash) GetMany(ctx context.Context, fields ...string) ([][]byte, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HMGet")
	defer span.Finish()

	values, err := h.client.HMGet(ctx, h.Key(), fields...).Result()
	if err != nil {
		return nil, remoteErr(err, h.Key())
	}

	results := make([][]byte, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return nil, ProtocolError(errors.New("unexpected HMGET reply element"), h.Key())
		}
		results[i] = []byte(s)
	}
	return results, nil
}

// GetAll returns every field of the record. An absent record is an empty
// mapping, never an error.
func (h *Hash) GetAll(ctx context.Context) (map[string][]byte, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HGetAll")
	defer span.Finish()

	values, err := h.client.HGetAll(ctx, h.Key()).Result()
	if err != nil {
		return nil, remoteErr(err, h.Key())
	}

	results := make(map[string][]byte, len(values))
	for field, value := range values {
		results[field] = []byte(value)
	}
	return results, nil
}

func (h *Hash) Keys(ctx context.Context) ([]string, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HKeys")
	defer span.Finish()

	fields, err := h.client.HKeys(ctx, h.Key()).Result()
	if err != nil {
		return nil, remoteErr(err, h.Key())
	}
	return fields, nil
}

func (h *Hash) Len(ctx context.Context) (int64, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HLen")
	defer span.Finish()

	n, err := h.client.HLen(ctx, h.Key()).Result()
	if err != nil {
		return 0, remoteErr(err, h.Key())
	}
	return n, nil
}

func (h *Hash) Values(ctx context.Context) ([][]byte, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HVals")
	defer span.Finish()

	values, err := h.client.HVals(ctx, h.Key()).Result()
	if err != nil {
		return nil, remoteErr(err, h.Key())
	}
	results := make([][]byte, len(values))
	for i, value := range values {
		results[i] = []byte(value)
	}
	return results, nil
}

func (h *Hash) Set(ctx context.Context, field string, value []byte) error {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HSet")
	defer span.Finish()

	log.Debugf("Set: %s %s", h.Key(), field)
	_, err := h.client.HSet(ctx, h.Key(), field, value).Result()
	if err != nil {
		return remoteErr(err, h.Key())
	}
	return nil
}

// SetMany writes all fields in one round trip. The store applies the fields
// independently, so a concurrent reader may observe a partial write.
func (h *Hash) SetMany(ctx context.Context, fields map[string][]byte) error {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HSetMany")
	defer span.Finish()

	args := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		args = append(args, field, value)
	}

	log.Debugf("SetMany: %s %d fields", h.Key(), len(fields))
	_, err := h.client.HSet(ctx, h.Key(), args...).Result()
	if err != nil {
		return remoteErr(err, h.Key())
	}
	return nil
}

// SetManyWithExpire writes all fields and attaches a record expiry as one
// pipelined pair: both requests are in flight together, the store applies
// the write before the expiry, and the pair fails as a unit if either ack is
// an error - though the other request may already have taken effect.
func (h *Hash) SetManyWithExpire(ctx context.Context, fields map[string][]byte, ttl time.Duration) error {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HSetMany.Expire(pipelined)")
	defer span.Finish()

	args := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		args = append(args, field, value)
	}

	log.Debugf("SetManyWithExpire: %s %d fields, ttl %v", h.Key(), len(fields), ttl)
	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, h.Key(), args...)
		pipe.Expire(ctx, h.Key(), ttl)
		return nil
	})
	if err != nil {
		return remoteErr(err, h.Key())
	}
	return nil
}

// SetIfAbsent sets field only if it does not already exist. Returns true iff
// the field was set; an existing field is left unmodified.
func (h *Hash) SetIfAbsent(ctx context.Context, field string, value []byte) (bool, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HSetNX")
	defer span.Finish()

	ok, err := h.client.HSetNX(ctx, h.Key(), field, value).Result()
	if err != nil {
		return false, remoteErr(err, h.Key())
	}
	return ok, nil
}

// IncrementBy atomically adds delta to the integer value of field and returns
// the new value. A missing field counts from zero.
func (h *Hash) IncrementBy(ctx context.Context, field string, delta int64) (int64, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HIncrBy")
	defer span.Finish()

	n, err := h.client.HIncrBy(ctx, h.Key(), field, delta).Result()
	if err != nil {
		return 0, remoteErr(err, h.Key())
	}
	return n, nil
}

// IncrementByFloat is the floating point variant of IncrementBy. The store
// holds the value as a decimal string.
func (h *Hash) IncrementByFloat(ctx context.Context, field string, delta float64) (float64, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HIncrByFloat")
	defer span.Finish()

	f, err := h.client.HIncrByFloat(ctx, h.Key(), field, delta).Result()
	if err != nil {
		return 0, remoteErr(err, h.Key())
	}
	return f, nil
}

// Remove deletes field, reporting whether it existed.
func (h *Hash) Remove(ctx context.Context, field string) (bool, error) {
	n, err := h.RemoveMany(ctx, field)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveMany deletes the given fields, returning how many existed.
func (h *Hash) RemoveMany(ctx context.Context, fields ...string) (int64, error) {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.HDel")
	defer span.Finish()

	log.Debugf("RemoveMany: %s %v", h.Key(), fields)
	n, err := h.client.HDel(ctx, h.Key(), fields...).Result()
	if err != nil {
		return 0, remoteErr(err, h.Key())
	}
	return n, nil
}

// Expire attaches a time to live to the whole record, not to single fields.
// Returns false if the record does not exist.
func (h *Hash) Expire(ctx context.Context, ttl time.Duration) (bool, error) {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.Expire")
	defer span.Finish()

	log.Debugf("Expire: %s %v", h.Key(), ttl)
	ok, err := h.client.Expire(ctx, h.Key(), ttl).Result()
	if err != nil {
		return false, remoteErr(err, h.Key())
	}
	return ok, nil
}

// ExpireAt expires the record at the absolute time t. The deadline is
// converted to a duration against the caller's clock here, so clock skew
// between caller and store resolves at the caller.
func (h *Hash) ExpireAt(ctx context.Context, t time.Time) (bool, error) {
	return h.Expire(ctx, time.Until(t))
}

// KeyExists reports whether the record currently exists, i.e. has at least
// one field and has not expired.
func (h *Hash) KeyExists(ctx context.Context) (bool, error) {
	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.Exists")
	defer span.Finish()

	n, err := h.client.Exists(ctx, h.Key()).Result()
	if err != nil {
		return false, remoteErr(err, h.Key())
	}
	return n > 0, nil
}

// Delete removes the whole record, reporting whether it existed.
func (h *Hash) Delete(ctx context.Context) (bool, error) {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, "hashstore.hash.Del")
	defer span.Finish()

	// DEL deletes the hash (HDEL would delete a field)
	log.Debugf("Delete: %s", h.Key())
	n, err := h.client.Del(ctx, h.Key()).Result()
	if err != nil {
		return false, remoteErr(err, h.Key())
	}
	return n > 0, nil
}
