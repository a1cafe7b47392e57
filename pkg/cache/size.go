package cache

import "reflect"

const (
	// sizes reported for values the estimator cannot see through
	opaqueValueSize = 64
	maxSizeDepth    = 32
)

// Sizer lets a value report its own footprint.
type Sizer interface {
	Size() int64
}

// SizeOf estimates the in-memory footprint of v in bytes. It is exact for
// byte slices and strings and an approximation for everything else.
func SizeOf(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case Sizer:
		return t.Size()
	case []byte:
		return int64(len(t))
	case string:
		return int64(len(t))
	}
	return sizeOfValue(reflect.ValueOf(v), 0)
}

func sizeOfValue(rv reflect.Value, depth int) int64 {
	if depth > maxSizeDepth {
		return opaqueValueSize
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return int64(rv.Type().Size())
	case reflect.String:
		return int64(rv.Len())
	case reflect.Slice, reflect.Array:
		if isScalar(rv.Type().Elem().Kind()) {
			return int64(rv.Len()) * int64(rv.Type().Elem().Size())
		}
		var n int64
		for i := 0; i < rv.Len(); i++ {
			n += sizeOfValue(rv.Index(i), depth+1)
		}
		return n
	case reflect.Map:
		var n int64
		iter := rv.MapRange()
		for iter.Next() {
			n += sizeOfValue(iter.Key(), depth+1) + sizeOfValue(iter.Value(), depth+1)
		}
		return n
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return 0
		}
		return sizeOfValue(rv.Elem(), depth+1)
	case reflect.Struct:
		var n int64
		for i := 0; i < rv.NumField(); i++ {
			n += sizeOfValue(rv.Field(i), depth+1)
		}
		return n
	default:
		return opaqueValueSize
	}
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}
