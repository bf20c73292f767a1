package transcoder

import (
	"strconv"

	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/transcoder/internal/abi"
)

// ValueOf converts a plain Go value into a Value of type ct.
//
// Accepted shapes: Go numbers for integers and floats (range checked),
// string or []byte for strings, []any or []byte for lists, map[string]any
// for records, []any for tuples, nil or the payload for options,
// map{"ok"|"err": v} for results, map{case: payload} for variants, and a
// case index or name for enums. A Value is returned unchanged.
func ValueOf(ct *CompiledType, v any) (Value, error) {
	return valueOf(ct, v, nil)
}

func valueOf(ct *CompiledType, v any, path []string) (Value, error) {
	if val, ok := v.(Value); ok {
		return val, nil
	}

	switch ct.Kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return Bool(b), nil
		}
	case KindU8:
		if x, ok := abi.CoerceUnsigned[uint8](v); ok {
			return U8(x), nil
		}
	case KindS8:
		if x, ok := abi.CoerceSigned[int8](v); ok {
			return S8(x), nil
		}
	case KindU16:
		if x, ok := abi.CoerceUnsigned[uint16](v); ok {
			return U16(x), nil
		}
	case KindS16:
		if x, ok := abi.CoerceSigned[int16](v); ok {
			return S16(x), nil
		}
	case KindU32:
		if x, ok := abi.CoerceUnsigned[uint32](v); ok {
			return U32(x), nil
		}
	case KindS32:
		if x, ok := abi.CoerceSigned[int32](v); ok {
			return S32(x), nil
		}
	case KindU64:
		if x, ok := abi.CoerceUnsigned[uint64](v); ok {
			return U64(x), nil
		}
	case KindS64:
		if x, ok := abi.CoerceSigned[int64](v); ok {
			return S64(x), nil
		}
	case KindF32:
		if x, ok := abi.CoerceFloat(v); ok {
			return F32(float32(x)), nil
		}
	case KindF64:
		if x, ok := abi.CoerceFloat(v); ok {
			return F64(x), nil
		}
	case KindChar:
		if r, ok := v.(rune); ok {
			if !abi.ValidateChar(r) {
				return nil, errors.InvalidData(errors.PhaseLower, path, "invalid Unicode scalar value")
			}
			return Char(r), nil
		}

	case KindString:
		switch s := v.(type) {
		case string:
			return NewString(s), nil
		case []byte:
			return StringBytes(s), nil
		}

	case KindList:
		if b, ok := v.([]byte); ok && ct.ElemType.Kind == KindU8 {
			return NewByteList(b), nil
		}
		if items, ok := v.([]any); ok {
			out := make([]Value, len(items))
			for i, item := range items {
				iv, err := valueOf(ct.ElemType, item, append(path, "["+strconv.Itoa(i)+"]"))
				if err != nil {
					return nil, err
				}
				out[i] = iv
			}
			return NewList(out...), nil
		}

	case KindRecord:
		if m, ok := v.(map[string]any); ok {
			fields := make(map[string]Value, len(m))
			for name, fv := range m {
				i := ct.FieldIndex(name)
				if i < 0 {
					return nil, errors.FieldUnknown(errors.PhaseLower, path, name)
				}
				val, err := valueOf(ct.Fields[i].Type, fv, append(path, name))
				if err != nil {
					return nil, err
				}
				fields[name] = val
			}
			r, err := RecordOf(ct, fields)
			if err != nil {
				return nil, atPath(err, path)
			}
			return r, nil
		}

	case KindTuple:
		if items, ok := v.([]any); ok {
			if len(items) != len(ct.Fields) {
				return nil, errors.Arity(errors.PhaseLower, ct.Name, len(items), len(ct.Fields))
			}
			out := make([]Value, len(items))
			for i, item := range items {
				iv, err := valueOf(ct.Fields[i].Type, item, append(path, strconv.Itoa(i)))
				if err != nil {
					return nil, err
				}
				out[i] = iv
			}
			return NewRecord(out...), nil
		}

	case KindOption:
		if v == nil {
			return None(), nil
		}
		inner, err := valueOf(ct.ElemType, v, append(path, "some"))
		if err != nil {
			return nil, err
		}
		return Some(inner), nil

	case KindResult:
		if m, ok := v.(map[string]any); ok && len(m) == 1 {
			if okv, has := m["ok"]; has {
				return caseOf(ct, 0, okv, path)
			}
			if e, has := m["err"]; has {
				return caseOf(ct, 1, e, path)
			}
		}
		return nil, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
			Path(path...).
			WitType(ct.Name).
			Detail("result must have exactly one of 'ok' or 'err'").
			Build()

	case KindVariant:
		if m, ok := v.(map[string]any); ok && len(m) == 1 {
			for name, payload := range m {
				i := ct.CaseIndex(name)
				if i < 0 {
					return nil, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
						Path(path...).
						WitType(ct.Name).
						Detail("unknown case %q", name).
						Build()
				}
				return caseOf(ct, uint32(i), payload, path)
			}
		}

	case KindEnum:
		if name, ok := v.(string); ok {
			i := ct.CaseIndex(name)
			if i < 0 {
				return nil, errors.InvalidEnum(errors.PhaseLower, path, name, ct.Name)
			}
			return Enum(i), nil
		}
		if x, ok := abi.CoerceUnsigned[uint32](v); ok {
			if int(x) >= len(ct.Cases) {
				return nil, errors.InvalidEnum(errors.PhaseLower, path, x, ct.Name)
			}
			return Enum(x), nil
		}
	}

	if v == nil {
		return nil, errors.NilPointer(errors.PhaseLower, path, ct.Name)
	}
	return nil, errors.TypeMismatch(errors.PhaseLower, path, abi.TypeName(v), ct.Name)
}

func caseOf(ct *CompiledType, disc uint32, payload any, path []string) (Value, error) {
	c := ct.Cases[disc]
	if c.Type == nil {
		if payload != nil {
			return nil, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
				Path(append(path, c.Name)...).
				Detail("case %q carries no payload", c.Name).
				Build()
		}
		return Variant{Case: disc}, nil
	}
	pv, err := valueOf(c.Type, payload, append(path, c.Name))
	if err != nil {
		return nil, err
	}
	return Variant{Case: disc, Payload: pv}, nil
}

// Native converts v into the plain Go shape ValueOf accepts. Strings and
// byte lists are copied, so the result outlives the memory v was lifted
// from.
func Native(ct *CompiledType, v Value) (any, error) {
	return native(ct, v, nil)
}

func native(ct *CompiledType, v Value, path []string) (any, error) {
	switch x := v.(type) {
	case Bool:
		return bool(x), nil
	case U8:
		return uint8(x), nil
	case S8:
		return int8(x), nil
	case U16:
		return uint16(x), nil
	case S16:
		return int16(x), nil
	case U32:
		return uint32(x), nil
	case S32:
		return int32(x), nil
	case U64:
		return uint64(x), nil
	case S64:
		return int64(x), nil
	case F32:
		return float32(x), nil
	case F64:
		return float64(x), nil
	case Char:
		return rune(x), nil
	case Enum:
		return uint32(x), nil
	case String:
		return x.String(), nil

	case List:
		if ct.Kind != KindList {
			return nil, errors.TypeMismatch(errors.PhaseLift, path, "List", ct.Name)
		}
		if ct.ElemType.Kind == KindU8 {
			if raw, ok := x.Bytes(); ok {
				return append([]byte{}, raw...), nil
			}
		}
		items, err := x.Items()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			nv, err := native(ct.ElemType, item, append(path, "["+strconv.Itoa(i)+"]"))
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		if ct.ElemType.Kind == KindU8 {
			b := make([]byte, len(out))
			for i, item := range out {
				b[i] = item.(uint8)
			}
			return b, nil
		}
		return out, nil

	case Record:
		if ct.Kind != KindRecord && ct.Kind != KindTuple {
			return nil, errors.TypeMismatch(errors.PhaseLift, path, "Record", ct.Name)
		}
		if x.Len() != len(ct.Fields) {
			return nil, errors.Arity(errors.PhaseLift, ct.Name, x.Len(), len(ct.Fields))
		}
		if ct.Kind == KindTuple {
			out := make([]any, x.Len())
			for i, f := range ct.Fields {
				nv, err := native(f.Type, x.fields[i], append(path, strconv.Itoa(i)))
				if err != nil {
					return nil, err
				}
				out[i] = nv
			}
			return out, nil
		}
		out := make(map[string]any, x.Len())
		for i, f := range ct.Fields {
			nv, err := native(f.Type, x.fields[i], append(path, f.Name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = nv
		}
		return out, nil

	case Variant:
		if int(x.Case) >= len(ct.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseLift, path, x.Case, uint32(len(ct.Cases)-1))
		}
		c := ct.Cases[x.Case]
		var payload any
		if c.Type != nil && x.Payload != nil {
			nv, err := native(c.Type, x.Payload, append(path, c.Name))
			if err != nil {
				return nil, err
			}
			payload = nv
		}
		switch ct.Kind {
		case KindOption:
			return payload, nil
		case KindResult:
			if x.Case == 0 {
				return map[string]any{"ok": payload}, nil
			}
			return map[string]any{"err": payload}, nil
		case KindEnum:
			return x.Case, nil
		}
		return map[string]any{c.Name: payload}, nil
	}

	if v == nil {
		return nil, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseLift, path, abi.TypeName(v), ct.Name)
}
