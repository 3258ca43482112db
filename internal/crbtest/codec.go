package crbtest

import (
	"encoding/json"
	"fmt"

	"gocrb/domain/crb"
)

// VectorCodec implements adapters/persistence.ElementCodec for Vector, so
// tests and the demo CLI can exercise basis persistence round-trips.
type VectorCodec struct{}

func (VectorCodec) Encode(el crb.Element) ([]byte, error) {
	v, ok := el.(Vector)
	if !ok {
		return nil, fmt.Errorf("crbtest: cannot encode element of type %T", el)
	}
	return json.Marshal(v)
}

func (VectorCodec) Decode(data []byte) (crb.Element, error) {
	var v Vector
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
