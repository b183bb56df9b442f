package mapper

import (
	"strconv"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/internal/syncutil"
)

// ErrDecode wraps a built-in mapper's parse failure.
const ErrDecode errorutil.Error = "mapper: decode failed"

// CanonicalNames of the built-in registry, per §4.2: String, the eight
// primitive wrapper names, the eight primitive type names. Go has no
// separate wrapper/primitive distinction, so both tiers collapse onto the
// same Go kind name; the registry is keyed by kind name for primitives and
// by "string" for strings.
const (
	Bool    = "bool"
	Int8    = "int8"
	Int16   = "int16"
	Int64   = "int64"
	Uint8   = "uint8"
	Uint16  = "uint16"
	Uint32  = "uint32"
	Uint64  = "uint64"
	Int     = "int"
	Uint    = "uint"
	Float32 = "float32"
	Float64 = "float64"
	String  = "string"
	// Rune is the registry key for reflect.Kind Int32. Go's `rune` is a bare
	// alias of int32 (no distinct reflect.Kind), and the JVM descriptor
	// letter C (char) is what signature.Of assigns to that kind, so int32
	// params are decoded with char semantics (first rune of the wire text)
	// rather than as a 32-bit integer; a genuine 32-bit counter should be
	// declared as Go `int` (wire slot I) instead.
	Rune = "rune"
)

func registerBuiltins(m *syncutil.RWMap[string, Mapper]) {
	m.Set(Bool, Func{
		To:   func(v any) (string, error) { return strconv.FormatBool(v.(bool)), nil },
		From: func(s string) (any, error) { return parse(strconv.ParseBool(s)) },
	})
	m.Set(Int8, intMapper(8))
	m.Set(Int16, intMapper(16))
	m.Set(Int64, intMapper(64))
	m.Set(Int, intMapper(0))
	m.Set(Uint8, uintMapper(8))
	m.Set(Uint16, uintMapper(16))
	m.Set(Uint32, uintMapper(32))
	m.Set(Uint64, uintMapper(64))
	m.Set(Uint, uintMapper(0))
	m.Set(Float32, Func{
		To: func(v any) (string, error) { return strconv.FormatFloat(float64(v.(float32)), 'g', -1, 32), nil },
		From: func(s string) (any, error) {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, errorutil.NewWrapperError(ErrDecode, err)
			}
			return float32(f), nil
		},
	})
	m.Set(Float64, Func{
		To: func(v any) (string, error) { return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil },
		From: func(s string) (any, error) {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, errorutil.NewWrapperError(ErrDecode, err)
			}
			return f, nil
		},
	})
	m.Set(String, Func{
		To:   func(v any) (string, error) { return v.(string), nil },
		From: func(s string) (any, error) { return s, nil },
	})
	// char decodes the first character of the empty-safe string (§4.2).
	m.Set(Rune, Func{
		To: func(v any) (string, error) { return string(v.(rune)), nil },
		From: func(s string) (any, error) {
			if s == "" {
				return rune(0), nil
			}
			r := []rune(s)
			return r[0], nil
		},
	})
}

func intMapper(bits int) Mapper {
	return Func{
		To: func(v any) (string, error) { return strconv.FormatInt(asInt64(v), 10), nil },
		From: func(s string) (any, error) {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errorutil.NewWrapperError(ErrDecode, err)
			}
			switch bits {
			case 8:
				return int8(n), nil
			case 16:
				return int16(n), nil
			case 32:
				return int32(n), nil
			case 64:
				return n, nil
			default:
				return int(n), nil
			}
		},
	}
}

func uintMapper(bits int) Mapper {
	return Func{
		To: func(v any) (string, error) { return strconv.FormatUint(asUint64(v), 10), nil },
		From: func(s string) (any, error) {
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, errorutil.NewWrapperError(ErrDecode, err)
			}
			switch bits {
			case 8:
				return uint8(n), nil
			case 16:
				return uint16(n), nil
			case 32:
				return uint32(n), nil
			case 64:
				return n, nil
			default:
				return uint(n), nil
			}
		},
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	default:
		return 0
	}
}

func parse[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrDecode, err)
	}
	return v, nil
}
