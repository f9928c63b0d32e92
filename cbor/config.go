package cbor

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORConfig provides the properties necessary to configure cbor encoding
// and decoding for field values.
type CBORConfig struct {
	EncMode cbor.EncMode
	DecMode cbor.DecMode
}

// NewFieldEncOpts returns the encoding options used for hash field values.
// Deterministic encoding means a value always produces the same bytes, so
// set-if-absent comparisons and cache round trips are stable.
func NewFieldEncOpts() cbor.EncOptions {
	return cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
}

// NewFieldDecOpts returns the decoding options used for hash field values.
func NewFieldDecOpts() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF, // duplicated key not allowed
		IndefLength: cbor.IndefLengthForbidden, // no streaming
	}
}

func NewCBORConfig(
	encOpts cbor.EncOptions, decOpts cbor.DecOptions,
) (CBORConfig, error) {

	var err error

	cfg := CBORConfig{}

	if cfg.EncMode, err = encOpts.EncMode(); err != nil {
		return CBORConfig{}, err
	}

	if cfg.DecMode, err = decOpts.DecMode(); err != nil {
		return CBORConfig{}, err
	}

	return cfg, nil
}
