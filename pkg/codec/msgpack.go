package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack encodes values of type T with MessagePack and decodes them back
// into T, so a round trip yields the same Go type that was stored.
type Msgpack[T any] struct{}

func NewMsgpack[T any]() Msgpack[T] {
	return Msgpack[T]{}
}

func (Msgpack[T]) Encode(v any) ([]byte, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return nil, encodeError("msgpack", fmt.Errorf("unsupported type %T, want %T", v, zero))
	}
	data, err := msgpack.Marshal(typed)
	if err != nil {
		return nil, encodeError("msgpack", err)
	}
	return data, nil
}

func (Msgpack[T]) Decode(data []byte) (any, error) {
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, decodeError("msgpack", err)
	}
	return out, nil
}
