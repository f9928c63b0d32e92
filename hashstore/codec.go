package hashstore

import (
	"encoding/json"

	keycbor "github.com/keyline-io/go-keyline-common/cbor"
)

// Codec converts typed values to and from the byte representation stored in
// hash fields. Implementations must round trip: Deserialize(Serialize(v))
// reconstructs v for every supported value type. A record written with one
// codec must be read with a wire compatible codec.
type Codec interface {
	Serialize(value any) ([]byte, error)
	Deserialize(data []byte, into any) error
}

// JSONCodec is the default codec. Numbers are stored as plain decimal text,
// which keeps integer and float fields compatible with the server side
// increment primitives.
type JSONCodec struct{}

func (JSONCodec) Serialize(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONCodec) Deserialize(data []byte, into any) error {
	return json.Unmarshal(data, into)
}

type cborCodec struct {
	inner keycbor.CBORCodec
}

// NewCBORCodec returns a codec using deterministic CBOR encoding. Fields
// written with it are not usable with the increment operations, which need
// the store's decimal representation.
func NewCBORCodec() (Codec, error) {
	inner, err := keycbor.NewFieldCodec()
	if err != nil {
		return nil, err
	}
	return &cborCodec{inner: inner}, nil
}

func (c *cborCodec) Serialize(value any) ([]byte, error) {
	return c.inner.MarshalCBOR(value)
}

func (c *cborCodec) Deserialize(data []byte, into any) error {
	return c.inner.UnmarshalInto(data, into)
}
