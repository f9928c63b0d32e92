package hashstore

// There are 4 interfaces in this package:
//
//	1. hash - field level operations on one named hash record
//	2. clamped increments - atomic increment-then-clamp counters
//	3. record - struct <-> hash field mapping
//	4. cached record - get-or-populate-with-expiry over a record
//
// 1. Hash
//
// Thin client over the store's native hash commands: get, set, increment,
// delete per field, plus record level expiry and existence. Absence is
// reported in the result shape, never as an error. Nothing is retried here;
// retry policy belongs to the caller.
//
// 2. Clamped increments
//
// "Increment then clamp to bound" executed as a single server side script so
// no unclamped intermediate value is ever observable, whatever the
// concurrency. Integer and float variants, upper and lower bound variants.
//
// 3. Record
//
// A generic mapper between a struct type and the fields of a hash record.
// Load reconstructs the struct from HGETALL, Store writes all members as one
// batched HSET. A record with zero fields is absent, not a zero valued
// struct. Field values pass through a pluggable Codec (JSON by default, CBOR
// available).
//
// 4. Cached record
//
// Read the record; if absent, invoke the caller's producer, persist the
// result and optionally attach an expiry, the write and expiry travelling as
// one pipelined pair. Concurrent misses each produce and each write - there
// is deliberately no single-flight de-duplication, see CachedRecord.
