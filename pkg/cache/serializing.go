package cache

import (
	"log/slog"

	"partcache/pkg/codec"
)

// Serializing stores values in encoded form in another cache. Encoding and
// decoding failures are logged and degrade to "not cached" / "not found".
type Serializing struct {
	inner Cache
	codec codec.Codec
}

func NewSerializing(inner Cache, c codec.Codec) *Serializing {
	return &Serializing{inner: inner, codec: c}
}

func (s *Serializing) Get(key Key) (any, bool) {
	raw, ok := s.inner.Get(key)
	if !ok || raw == nil {
		return nil, false
	}

	data, ok := raw.([]byte)
	if !ok {
		slog.Error("cache: stored value is not encoded",
			"dataset", key.Dataset, "partition", key.Partition)
		return nil, false
	}

	v, err := s.codec.Decode(data)
	if err != nil {
		slog.Error("cache: decode value",
			"dataset", key.Dataset, "partition", key.Partition, "error", err)
		return nil, false
	}
	return v, true
}

func (s *Serializing) Put(key Key, value any) {
	data, err := s.codec.Encode(value)
	if err != nil {
		slog.Error("cache: encode value, dropping put",
			"dataset", key.Dataset, "partition", key.Partition, "error", err)
		return
	}
	s.inner.Put(key, data)
}

func (s *Serializing) Evict(key Key) {
	s.inner.Evict(key)
}

// AddEvictionListener forwards to the wrapped cache when it evicts on its own.
func (s *Serializing) AddEvictionListener(fn EvictionListener) {
	if obs, ok := s.inner.(Observable); ok {
		obs.AddEvictionListener(fn)
	}
}
