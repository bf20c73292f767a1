package abi

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f32 = api.ValueTypeF32
	f64 = api.ValueTypeF64
)

// FlatTypes returns the core types of the flat representation of t.
// Variant-like types are a discriminant word followed by the element-wise
// join of every case payload.
func FlatTypes(t wit.Type) []api.ValueType {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []api.ValueType{i32}
	case wit.U64, wit.S64:
		return []api.ValueType{i64}
	case wit.F32:
		return []api.ValueType{f32}
	case wit.F64:
		return []api.ValueType{f64}
	case wit.String:
		return []api.ValueType{i32, i32}
	case *wit.TypeDef:
		switch kind := t.Kind.(type) {
		case *wit.Record:
			var out []api.ValueType
			for _, f := range kind.Fields {
				out = append(out, FlatTypes(f.Type)...)
			}
			return out
		case *wit.Tuple:
			var out []api.ValueType
			for _, elem := range kind.Types {
				out = append(out, FlatTypes(elem)...)
			}
			return out
		case *wit.List:
			return []api.ValueType{i32, i32}
		case *wit.Enum:
			return []api.ValueType{i32}
		case *wit.Option:
			return flatCases([]wit.Type{nil, kind.Type})
		case *wit.Result:
			return flatCases([]wit.Type{kind.OK, kind.Err})
		case *wit.Variant:
			payloads := make([]wit.Type, len(kind.Cases))
			for i, c := range kind.Cases {
				payloads[i] = c.Type
			}
			return flatCases(payloads)
		case wit.Type:
			return FlatTypes(kind)
		}
	}
	return nil
}

func flatCases(payloads []wit.Type) []api.ValueType {
	var joined []api.ValueType
	for _, p := range payloads {
		if p == nil {
			continue
		}
		for i, ft := range FlatTypes(p) {
			if i < len(joined) {
				joined[i] = Join(joined[i], ft)
			} else {
				joined = append(joined, ft)
			}
		}
	}
	return append([]api.ValueType{i32}, joined...)
}

// Join returns the core type able to carry both a and b.
func Join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == i32 && b == f32) || (a == f32 && b == i32) {
		return i32
	}
	return i64
}

// GetFlatCount returns the number of flat words of t.
func GetFlatCount(t wit.Type) int {
	return len(FlatTypes(t))
}

// DiscriminantSize is 1 byte for up to 256 cases, 2 for up to 65536, else 4.
func DiscriminantSize(numCases int) uint32 {
	if numCases <= 256 {
		return 1
	} else if numCases <= 65536 {
		return 2
	}
	return 4
}

// CoreWidth returns the byte width of a core value type.
func CoreWidth(t api.ValueType) uint32 {
	switch t {
	case i64, f64:
		return 8
	default:
		return 4
	}
}
