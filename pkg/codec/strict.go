package codec

import (
	"fmt"
	"reflect"
)

// Strict accepts only values that come back from inner unchanged. Generic
// codecs decode into their own representations ([]any, int8, int64, ...),
// so a []int would otherwise be stored and read back as a different type.
type Strict struct {
	inner Codec
}

func NewStrict(inner Codec) *Strict {
	return &Strict{inner: inner}
}

func (s *Strict) Encode(v any) ([]byte, error) {
	data, err := s.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	back, err := s.inner.Decode(data)
	if err != nil {
		return nil, encodeError("strict", fmt.Errorf("value does not decode: %v", err))
	}
	if !reflect.DeepEqual(v, back) {
		return nil, encodeError("strict", fmt.Errorf("%T does not survive a round trip, decodes as %T", v, back))
	}
	return data, nil
}

func (s *Strict) Decode(data []byte) (any, error) {
	return s.inner.Decode(data)
}
