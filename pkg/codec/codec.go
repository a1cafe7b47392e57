// Package codec provides the pluggable value encodings used by the
// serializing cache. Every failure wraps dberrors.ErrEncoding.
package codec

import (
	"fmt"

	"partcache/pkg/dberrors"
)

// Codec turns values into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

func encodeError(name string, err error) error {
	return fmt.Errorf("%w: %s encode: %v", dberrors.ErrEncoding, name, err)
}

func decodeError(name string, err error) error {
	return fmt.Errorf("%w: %s decode: %v", dberrors.ErrEncoding, name, err)
}
