package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses the output of another codec.
type Zstd struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func NewZstd(inner Codec) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Zstd{inner: inner, enc: enc, dec: dec}, nil
}

func (z *Zstd) Encode(v any) ([]byte, error) {
	data, err := z.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (z *Zstd) Decode(data []byte) (any, error) {
	raw, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, decodeError("zstd", err)
	}
	return z.inner.Decode(raw)
}

func (z *Zstd) Close() error {
	z.dec.Close()
	return z.enc.Close()
}
