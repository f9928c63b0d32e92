package hashstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyline-io/go-keyline-common/logger"
)

type TestStruct struct {
	Foo string
	Bar int64
}

// TestRecordRoundtrip ensures Load reconstructs a previously Stored value.
func TestRecordRoundtrip(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	r, _ := newTestRecord[TestStruct](t)
	ctx := context.TODO()

	require.NoError(t, r.Store(ctx, TestStruct{Foo: "hello world", Bar: 1337}))

	loaded, ok, err := r.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TestStruct{Foo: "hello world", Bar: 1337}, loaded)
}

// TestRecordAbsent: a record with zero fields is absent, never a zero valued
// struct.
func TestRecordAbsent(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	r, _ := newTestRecord[TestStruct](t)

	_, ok, err := r.Load(context.TODO())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestRecordPartial: members with no matching hash field keep their zero
// value, hash fields with no matching member are ignored.
func TestRecordPartial(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	r, _ := newTestRecord[TestStruct](t)
	ctx := context.TODO()

	require.NoError(t, r.Hash().Set(ctx, "Foo", []byte(`"only foo"`)))
	require.NoError(t, r.Hash().Set(ctx, "Unmapped", []byte(`"ignored"`)))

	loaded, ok, err := r.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TestStruct{Foo: "only foo", Bar: 0}, loaded)
}

// TestRecordCaseSensitive: "foo" does not populate the member "Foo".
func TestRecordCaseSensitive(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	r, _ := newTestRecord[TestStruct](t)
	ctx := context.TODO()

	require.NoError(t, r.Hash().Set(ctx, "foo", []byte(`"lower"`)))

	loaded, ok, err := r.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", loaded.Foo)
}

// TestRecordTag: the hash tag renames a field and "-" opts one out.
func TestRecordTag(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	type Tagged struct {
		Name    string `hash:"display_name"`
		Ignored string `hash:"-"`
		private string //nolint:unused
	}

	r, _ := newTestRecord[Tagged](t)
	ctx := context.TODO()

	require.NoError(t, r.Store(ctx, Tagged{Name: "Ann", Ignored: "x", private: "y"}))

	all, err := r.Hash().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []byte(`"Ann"`), all["display_name"])
}

// TestRecordNoMappableFields: storing a memberless type writes nothing, so
// the record stays absent.
func TestRecordNoMappableFields(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	type Empty struct{}

	r, _ := newTestRecord[Empty](t)
	ctx := context.TODO()

	require.NoError(t, r.Store(ctx, Empty{}))

	_, ok, err := r.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Hash().KeyExists(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordNonStruct(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	h, _ := newTestStore(t)

	_, err := newRecordWithHash[int](h)
	require.Error(t, err)
}

func TestLoadStoreField(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	r, _ := newTestRecord[TestStruct](t)
	ctx := context.TODO()

	require.NoError(t, r.Store(ctx, TestStruct{Foo: "hello", Bar: 1}))
	require.NoError(t, r.StoreField(ctx, "Bar", int64(42)))

	var bar int64
	ok, err := r.LoadField(ctx, "Bar", &bar)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), bar)

	// whole object load sees the partial update
	loaded, ok, err := r.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TestStruct{Foo: "hello", Bar: 42}, loaded)

	var missing string
	ok, err = r.LoadField(ctx, "Nope", &missing)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestRecordDecodeError: undecodable stored bytes surface as a decode error,
// never as a cache miss.
func TestRecordDecodeError(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	r, _ := newTestRecord[TestStruct](t)
	ctx := context.TODO()

	require.NoError(t, r.Hash().Set(ctx, "Bar", []byte("not-a-number")))

	_, _, err := r.Load(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDecode)
}

// TestRecordCBORCodec ensures the alternate codec round trips, including a
// time member.
func TestRecordCBORCodec(t *testing.T) {
	logger.New("NOOP")
	defer logger.OnExit()

	type Event struct {
		Kind string
		At   time.Time
	}

	codec, err := NewCBORCodec()
	require.NoError(t, err)

	r, _ := newTestRecord[Event](t, WithCodec(codec))
	ctx := context.TODO()

	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Store(ctx, Event{Kind: "created", At: at}))

	loaded, ok, err := r.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "created", loaded.Kind)
	require.True(t, at.Equal(loaded.At))
}
