package abi

import "math"

// Unsigned is the set of unsigned targets a Go number can be coerced to.
type Unsigned interface {
	uint8 | uint16 | uint32 | uint64
}

// Signed is the set of signed targets a Go number can be coerced to.
type Signed interface {
	int8 | int16 | int32 | int64
}

func unsignedWidth[T Unsigned]() int {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 8
	case uint16:
		return 16
	case uint32:
		return 32
	default:
		return 64
	}
}

func signedWidth[T Signed]() int {
	var zero T
	switch any(zero).(type) {
	case int8:
		return 8
	case int16:
		return 16
	case int32:
		return 32
	default:
		return 64
	}
}

// CoerceUnsigned converts any Go integer or integral float to T when the
// value is in range. Floats cover JSON decoded numbers.
func CoerceUnsigned[T Unsigned](value any) (T, bool) {
	width := unsignedWidth[T]()
	limit := uint64(math.MaxUint64) >> (64 - width)

	var u uint64
	switch v := value.(type) {
	case uint8:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint64:
		u = v
	case uint:
		u = uint64(v)
	case int8, int16, int32, int64, int:
		s, _ := asInt64(v)
		if s < 0 {
			return 0, false
		}
		u = uint64(s)
	case float32:
		return floatToUnsigned[T](float64(v), width)
	case float64:
		return floatToUnsigned[T](v, width)
	default:
		return 0, false
	}
	if u > limit {
		return 0, false
	}
	return T(u), true
}

func floatToUnsigned[T Unsigned](f float64, width int) (T, bool) {
	if f < 0 || f != math.Trunc(f) || f >= math.Ldexp(1, width) {
		return 0, false
	}
	return T(f), true
}

// CoerceSigned converts any Go integer or integral float to T when the
// value is in range.
func CoerceSigned[T Signed](value any) (T, bool) {
	width := signedWidth[T]()
	hi := int64(math.MaxInt64 >> (64 - width))
	lo := -hi - 1

	var s int64
	switch v := value.(type) {
	case int8, int16, int32, int64, int:
		s, _ = asInt64(v)
	case uint8:
		s = int64(v)
	case uint16:
		s = int64(v)
	case uint32:
		s = int64(v)
	case uint64:
		if v > uint64(hi) {
			return 0, false
		}
		s = int64(v)
	case uint:
		if uint64(v) > uint64(hi) {
			return 0, false
		}
		s = int64(v)
	case float32:
		return floatToSigned[T](float64(v), width)
	case float64:
		return floatToSigned[T](v, width)
	default:
		return 0, false
	}
	if s < lo || s > hi {
		return 0, false
	}
	return T(s), true
}

func floatToSigned[T Signed](f float64, width int) (T, bool) {
	bound := math.Ldexp(1, width-1)
	if f != math.Trunc(f) || f < -bound || f >= bound {
		return 0, false
	}
	return T(f), true
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// CoerceFloat converts any Go number to float64.
func CoerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int8, int16, int32, int64, int:
		s, _ := asInt64(v)
		return float64(s), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint:
		return float64(v), true
	}
	return 0, false
}
