package hashstore

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Record maps a struct of type T to a hash record, one hash field per
// exported struct field. The mapping is by name, case sensitive; an exported
// field may override its hash field name with a `hash:"name"` tag, or opt out
// with `hash:"-"`.
type Record[T any] struct {
	hash   *Hash
	codec  Codec
	fields []fieldDesc
}

type fieldDesc struct {
	name  string
	index int
}

type recordOptions struct {
	codec Codec
}

type RecordOption func(*recordOptions)

// WithCodec overrides the default JSON codec. The replacement must be wire
// compatible with whatever previously wrote the record.
func WithCodec(codec Codec) RecordOption {
	return func(o *recordOptions) {
		o.codec = codec
	}
}

func NewRecord[T any](cfg RedisConfig, name string, opts ...RecordOption) (*Record[T], error) {
	hash, err := NewHash(cfg, name)
	if err != nil {
		return nil, err
	}
	return newRecordWithHash[T](hash, opts...)
}

func newRecordWithHash[T any](hash *Hash, opts ...RecordOption) (*Record[T], error) {
	o := recordOptions{codec: JSONCodec{}}
	for _, opt := range opts {
		opt(&o)
	}

	fields, err := typeFields(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}

	return &Record[T]{
		hash:   hash,
		codec:  o.codec,
		fields: fields,
	}, nil
}

// typeFields enumerates the mappable members of t: the exported,
// non-anonymous struct fields, honouring the hash tag.
func typeFields(t reflect.Type) ([]fieldDesc, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record type must be a struct, got %s", t.Kind())
	}

	fields := make([]fieldDesc, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("hash"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		fields = append(fields, fieldDesc{name: name, index: i})
	}
	return fields, nil
}

func (r *Record[T]) Log() Logger {
	return r.hash.Log()
}

func (r *Record[T]) Name() string {
	return r.hash.Name()
}

func (r *Record[T]) Key() string {
	return r.hash.Key()
}

// Hash exposes the underlying field level client, for partial updates and
// the clamped increment operations on individual members.
func (r *Record[T]) Hash() *Hash {
	return r.hash
}

func (r *Record[T]) Close() error {
	return r.hash.Close()
}

// Load reads the whole record and reconstructs a T. A record with zero
// fields is absent (ok false), never a zero valued T, so "not cached" and
// "cached empty" stay distinguishable. Members with no matching hash field
// keep their zero value; hash fields with no matching member are ignored.
func (r *Record[T]) Load(ctx context.Context) (T, bool, error) {
	var value T

	all, err := r.hash.GetAll(ctx)
	if err != nil {
		return value, false, err
	}
	if len(all) == 0 {
		return value, false, nil
	}

	rv := reflect.ValueOf(&value).Elem()
	for _, f := range r.fields {
		b, ok := all[f.name]
		if !ok {
			continue
		}
		if err := r.codec.Deserialize(b, rv.Field(f.index).Addr().Interface()); err != nil {
			return value, false, DecodeError(err, r.Key()+"."+f.name)
		}
	}
	return value, true, nil
}

// Store writes every mappable member of value as one batched write. The
// store still applies the fields independently, so a concurrent reader may
// observe a partially applied write; this layer does not add isolation.
func (r *Record[T]) Store(ctx context.Context, value T) error {
	log := r.Log().FromContext(ctx)
	defer log.Close()

	// a type with no mappable members stores nothing, and the record stays
	// absent
	if len(r.fields) == 0 {
		log.Debugf("Store: %s: no mappable fields", r.Key())
		return nil
	}

	fields, err := r.encodeFields(value)
	if err != nil {
		return err
	}

	return r.hash.SetMany(ctx, fields)
}

// storeWithExpiry is the populate path: the batched write and the record
// expiry issued as a pipelined pair.
func (r *Record[T]) storeWithExpiry(ctx context.Context, value T, ttl time.Duration) error {
	if len(r.fields) == 0 {
		return nil
	}
	fields, err := r.encodeFields(value)
	if err != nil {
		return err
	}
	return r.hash.SetManyWithExpire(ctx, fields, ttl)
}

func (r *Record[T]) encodeFields(value T) (map[string][]byte, error) {
	rv := reflect.ValueOf(value)
	fields := make(map[string][]byte, len(r.fields))
	for _, f := range r.fields {
		b, err := r.codec.Serialize(rv.Field(f.index).Interface())
		if err != nil {
			return nil, fmt.Errorf("serialize %s.%s: %w", r.Key(), f.name, err)
		}
		fields[f.name] = b
	}
	return fields, nil
}

// LoadField reads a single field into dest (a pointer), bypassing the whole
// object path. Returns false without touching dest when the field is absent.
func (r *Record[T]) LoadField(ctx context.Context, field string, dest any) (bool, error) {
	b, ok, err := r.hash.Get(ctx, field)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := r.codec.Deserialize(b, dest); err != nil {
		return false, DecodeError(err, r.Key()+"."+field)
	}
	return true, nil
}

// StoreField writes a single field, bypassing the whole object path.
func (r *Record[T]) StoreField(ctx context.Context, field string, value any) error {
	b, err := r.codec.Serialize(value)
	if err != nil {
		return fmt.Errorf("serialize %s.%s: %w", r.Key(), field, err)
	}
	return r.hash.Set(ctx, field, b)
}
