package codec

import (
	"fmt"

	"github.com/linkedin/goavro/v2"
)

// Avro encodes goavro native values against a fixed schema. Decoded values
// use goavro's native representation ([]any, map[string]any, int64, ...).
type Avro struct {
	codec *goavro.Codec
}

func NewAvro(schema string) (*Avro, error) {
	c, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("parse avro schema: %w", err)
	}
	return &Avro{codec: c}, nil
}

func (a *Avro) Schema() string {
	return a.codec.Schema()
}

func (a *Avro) Encode(v any) ([]byte, error) {
	data, err := a.codec.BinaryFromNative(nil, v)
	if err != nil {
		return nil, encodeError("avro", err)
	}
	return data, nil
}

func (a *Avro) Decode(data []byte) (any, error) {
	native, rest, err := a.codec.NativeFromBinary(data)
	if err != nil {
		return nil, decodeError("avro", err)
	}
	if len(rest) > 0 {
		return nil, decodeError("avro", fmt.Errorf("%d trailing bytes", len(rest)))
	}
	return native, nil
}
