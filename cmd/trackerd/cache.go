package main

import (
	"fmt"
	"io"

	"partcache/pkg/cache"
	"partcache/pkg/codec"
	"partcache/pkg/config"
	"partcache/pkg/metrics"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// buildCache assembles the node's shared cache from config: the eviction
// variant, optionally wrapped in an encoding layer.
func buildCache(cfg config.CacheConfig, m metrics.Collector) (cache.Cache, io.Closer, error) {
	var c cache.Cache
	switch cfg.Kind {
	case config.CacheBounded:
		c = cache.NewBounded(cache.BoundedOptions{
			MaxBytes: int64(cfg.MaxBytes.Bytes()),
			Metrics:  m,
		})
	case config.CacheUnbounded:
		c = cache.NewUnbounded()
	case config.CachePressure:
		c = cache.NewPressure(cache.PressureOptions{
			Signal:       cache.HeapPressure(cfg.HeapLimit.Bytes()),
			ShedFraction: cfg.ShedFraction,
			Metrics:      m,
		})
	case config.CacheWeak:
		c = cache.NewWeak()
	default:
		return nil, nil, fmt.Errorf("unknown cache kind %q", cfg.Kind)
	}

	if cfg.Kind == config.CacheWeak && cfg.Codec != "" && cfg.Codec != config.CodecNone {
		return nil, nil, fmt.Errorf("weak cache holds live values, codec %q not supported", cfg.Codec)
	}

	var cd codec.Codec
	switch cfg.Codec {
	case "", config.CodecNone:
		if cfg.Compress {
			return nil, nil, fmt.Errorf("cache compression needs a codec")
		}
		return c, nopCloser{}, nil
	case config.CodecMsgpack:
		cd = codec.NewMsgpack[any]()
	case config.CodecAvro:
		avro, err := codec.NewAvro(cfg.AvroSchema)
		if err != nil {
			return nil, nil, err
		}
		cd = avro
	default:
		return nil, nil, fmt.Errorf("unknown cache codec %q", cfg.Codec)
	}

	// values the codec cannot reproduce exactly are not cached
	cd = codec.NewStrict(cd)

	var closer io.Closer = nopCloser{}
	if cfg.Compress {
		z, err := codec.NewZstd(cd)
		if err != nil {
			return nil, nil, err
		}
		cd, closer = z, z
	}
	return cache.NewSerializing(c, cd), closer, nil
}
