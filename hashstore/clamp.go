package hashstore

// Increment-then-clamp as a single server side operation.
//
// A client side read-modify-write would race under concurrent increments:
// two callers could both observe the pre-clamp value, or a reader could see
// an unclamped intermediate. Running the increment and the clamp inside one
// Lua script makes the pair indivisible - the only values ever visible to
// any reader are post-clamp values. go-redis automatically uses EVALSHA &
// EVAL to ensure efficient management of the script.
//
// The scripts take the record key and the field name as key parameters, and
// the delta and the bound as value parameters. The integer variants use the
// native HINCRBY and reply with an integer. The float variants use
// HINCRBYFLOAT and reply with the decimal string the store holds, which the
// caller parses; floats never travel in a binary representation so there is
// no caller/store float format mismatch. A value exactly at the bound is
// accepted unchanged.

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	otrace "github.com/opentracing/opentracing-go"
)

var incrByClampMax = redis.NewScript(`
local value = redis.call("HINCRBY", KEYS[1], KEYS[2], ARGV[1])
local bound = tonumber(ARGV[2])

if value > bound then
  redis.call("HSET", KEYS[1], KEYS[2], ARGV[2])
  return bound
end

return value
`)

var incrByClampMin = redis.NewScript(`
local value = redis.call("HINCRBY", KEYS[1], KEYS[2], ARGV[1])
local bound = tonumber(ARGV[2])

if value < bound then
  redis.call("HSET", KEYS[1], KEYS[2], ARGV[2])
  return bound
end

return value
`)

// The float variants store and return the bound exactly as the caller sent
// it, avoiding a round trip through Lua's float formatting.
var incrByFloatClampMax = redis.NewScript(`
local value = redis.call("HINCRBYFLOAT", KEYS[1], KEYS[2], ARGV[1])

if tonumber(value) > tonumber(ARGV[2]) then
  redis.call("HSET", KEYS[1], KEYS[2], ARGV[2])
  return ARGV[2]
end

return value
`)

var incrByFloatClampMin = redis.NewScript(`
local value = redis.call("HINCRBYFLOAT", KEYS[1], KEYS[2], ARGV[1])

if tonumber(value) < tonumber(ARGV[2]) then
  redis.call("HSET", KEYS[1], KEYS[2], ARGV[2])
  return ARGV[2]
end

return value
`)

type ScriptRunner interface {
	Run(ctx context.Context, c redis.Scripter, keys []string, args ...any) *redis.Cmd
}

// IncrementClampMax atomically adds delta to the integer field and clamps the
// result to at most max. Returns the post-clamp value.
func (h *Hash) IncrementClampMax(ctx context.Context, field string, delta, max int64) (int64, error) {
	return h.runIntClamp(ctx, h.clampIntMax, "hashstore.clamp.IncrMax(script)", field, delta, max)
}

// IncrementClampMin is the lower bound variant: the result is clamped to at
// least min.
func (h *Hash) IncrementClampMin(ctx context.Context, field string, delta, min int64) (int64, error) {
	return h.runIntClamp(ctx, h.clampIntMin, "hashstore.clamp.IncrMin(script)", field, delta, min)
}

func (h *Hash) runIntClamp(ctx context.Context, runner ScriptRunner, op, field string, delta, bound int64) (int64, error) {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, op)
	defer span.Finish()

	value, err := runner.Run(ctx, h.client, []string{h.Key(), field}, delta, bound).Int64()
	if err != nil {
		log.Debugf("%s %s.%s: %v", op, h.Key(), field, err)
		return 0, remoteErr(err, h.Key())
	}
	log.Debugf("%s %s.%s = %d", op, h.Key(), field, value)
	return value, nil
}

// IncrementByFloatClampMax is the floating point variant of
// IncrementClampMax.
func (h *Hash) IncrementByFloatClampMax(ctx context.Context, field string, delta, max float64) (float64, error) {
	return h.runFloatClamp(ctx, h.clampFloatMax, "hashstore.clamp.IncrByFloatMax(script)", field, delta, max)
}

// IncrementByFloatClampMin is the floating point variant of
// IncrementClampMin.
func (h *Hash) IncrementByFloatClampMin(ctx context.Context, field string, delta, min float64) (float64, error) {
	return h.runFloatClamp(ctx, h.clampFloatMin, "hashstore.clamp.IncrByFloatMin(script)", field, delta, min)
}

func (h *Hash) runFloatClamp(ctx context.Context, runner ScriptRunner, op, field string, delta, bound float64) (float64, error) {
	log := h.Log().FromContext(ctx)
	defer log.Close()

	span, ctx := otrace.StartSpanFromContext(ctx, op)
	defer span.Finish()

	// ARGV must be decimal strings: go-redis formats float args without an
	// exponent and HSET stores ARGV[2] verbatim when the bound applies.
	text, err := runner.Run(ctx, h.client, []string{h.Key(), field}, delta, bound).Text()
	if err != nil {
		log.Debugf("%s %s.%s: %v", op, h.Key(), field, err)
		return 0, remoteErr(err, h.Key())
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, ProtocolError(err, h.Key())
	}
	log.Debugf("%s %s.%s = %v", op, h.Key(), field, value)
	return value, nil
}
