package transcoder

import (
	"math"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/transcoder/internal/abi"
)

// Encoder lowers Values into flat words and canonical memory.
//
// Every string and list payload is copied into a fresh buffer from alloc
// and recorded in the allocation list, so the caller can roll back a
// failed encode or free the buffers after the call.
//
// With ReuseViews set, strings and lists lifted from the same arena are
// passed through as-is. Only the side that owns those buffers may set it.
type Encoder struct {
	ReuseViews bool
}

// Lower appends the flat representation of v to flat.
func (e Encoder) Lower(ct *CompiledType, v Value, flat []uint64, mem Memory, alloc Allocator, allocs *AllocationList) ([]uint64, error) {
	return e.lower(ct, v, flat, mem, alloc, allocs, nil)
}

// LowerAll lowers one value per type into consecutive flat words.
func (e Encoder) LowerAll(cts []*CompiledType, vs []Value, flat []uint64, mem Memory, alloc Allocator, allocs *AllocationList) ([]uint64, error) {
	if len(vs) != len(cts) {
		return flat, errors.Arity(errors.PhaseLower, "values", len(vs), len(cts))
	}
	var err error
	for i, ct := range cts {
		flat, err = e.lower(ct, vs[i], flat, mem, alloc, allocs, []string{"param[" + strconv.Itoa(i) + "]"})
		if err != nil {
			return flat, err
		}
	}
	return flat, nil
}

// Store writes v at addr in its canonical layout.
func (e Encoder) Store(ct *CompiledType, v Value, addr uint32, mem Memory, alloc Allocator, allocs *AllocationList) error {
	return e.store(ct, v, addr, mem, alloc, allocs, nil)
}

func (e Encoder) lower(ct *CompiledType, v Value, flat []uint64, mem Memory, alloc Allocator, allocs *AllocationList, path []string) ([]uint64, error) {
	if v == nil && ct.Kind == KindOption {
		v = None()
	}

	switch ct.Kind {
	case KindString:
		s, ok := v.(String)
		if !ok {
			return flat, mismatch(path, v, ct)
		}
		ptr, n, err := e.lowerString(s, mem, alloc, allocs, path)
		if err != nil {
			return flat, err
		}
		return append(flat, api.EncodeU32(ptr), api.EncodeU32(n)), nil

	case KindList:
		l, ok := v.(List)
		if !ok {
			return flat, mismatch(path, v, ct)
		}
		ptr, n, err := e.lowerList(ct, l, mem, alloc, allocs, path)
		if err != nil {
			return flat, err
		}
		return append(flat, api.EncodeU32(ptr), api.EncodeU32(n)), nil

	case KindRecord, KindTuple:
		r, ok := v.(Record)
		if !ok {
			return flat, mismatch(path, v, ct)
		}
		if r.Len() != len(ct.Fields) {
			return flat, errors.Arity(errors.PhaseLower, ct.Name, r.Len(), len(ct.Fields))
		}
		var err error
		for i, f := range ct.Fields {
			flat, err = e.lower(f.Type, r.fields[i], flat, mem, alloc, allocs, append(path, fieldName(ct, i)))
			if err != nil {
				return flat, err
			}
		}
		return flat, nil

	case KindEnum:
		disc, err := enumCase(ct, v, path)
		if err != nil {
			return flat, err
		}
		return append(flat, api.EncodeU32(disc)), nil

	case KindVariant, KindOption, KindResult:
		vr, c, err := variantCase(ct, v, path)
		if err != nil {
			return flat, err
		}
		start := len(flat)
		flat = append(flat, api.EncodeU32(vr.Case))
		if c.Type != nil {
			flat, err = e.lower(c.Type, vr.Payload, flat, mem, alloc, allocs, append(path, c.Name))
			if err != nil {
				return flat, err
			}
		}
		// Unused joined payload words are zero.
		for len(flat)-start < ct.FlatCount() {
			flat = append(flat, 0)
		}
		return flat, nil
	}

	w, err := lowerScalar(ct, v, path)
	if err != nil {
		return flat, err
	}
	return append(flat, w), nil
}

func lowerScalar(ct *CompiledType, v Value, path []string) (uint64, error) {
	switch ct.Kind {
	case KindBool:
		if b, ok := v.(Bool); ok {
			if b {
				return api.EncodeI32(1), nil
			}
			return api.EncodeI32(0), nil
		}
	case KindU8:
		if x, ok := v.(U8); ok {
			return api.EncodeU32(uint32(x)), nil
		}
	case KindS8:
		if x, ok := v.(S8); ok {
			return api.EncodeI32(int32(x)), nil
		}
	case KindU16:
		if x, ok := v.(U16); ok {
			return api.EncodeU32(uint32(x)), nil
		}
	case KindS16:
		if x, ok := v.(S16); ok {
			return api.EncodeI32(int32(x)), nil
		}
	case KindU32:
		if x, ok := v.(U32); ok {
			return api.EncodeU32(uint32(x)), nil
		}
	case KindS32:
		if x, ok := v.(S32); ok {
			return api.EncodeI32(int32(x)), nil
		}
	case KindU64:
		if x, ok := v.(U64); ok {
			return uint64(x), nil
		}
	case KindS64:
		if x, ok := v.(S64); ok {
			return api.EncodeI64(int64(x)), nil
		}
	case KindF32:
		if x, ok := v.(F32); ok {
			return uint64(abi.CanonicalizeF32(math.Float32bits(float32(x)))), nil
		}
	case KindF64:
		if x, ok := v.(F64); ok {
			return abi.CanonicalizeF64(math.Float64bits(float64(x))), nil
		}
	case KindChar:
		if x, ok := v.(Char); ok {
			if !abi.ValidateChar(rune(x)) {
				return 0, errors.InvalidData(errors.PhaseLower, path, "invalid Unicode scalar value "+strconv.FormatInt(int64(x), 16))
			}
			return api.EncodeU32(uint32(x)), nil
		}
	default:
		return 0, errors.Unsupported(errors.PhaseLower, ct.Kind.String())
	}
	return 0, mismatch(path, v, ct)
}

func (e Encoder) store(ct *CompiledType, v Value, addr uint32, mem Memory, alloc Allocator, allocs *AllocationList, path []string) error {
	if v == nil && ct.Kind == KindOption {
		v = None()
	}

	switch ct.Kind {
	case KindBool, KindU8, KindS8:
		w, err := lowerScalar(ct, v, path)
		if err != nil {
			return err
		}
		return atPath(mem.WriteU8(addr, uint8(w)), path)
	case KindU16, KindS16:
		w, err := lowerScalar(ct, v, path)
		if err != nil {
			return err
		}
		return atPath(mem.WriteU16(addr, uint16(w)), path)
	case KindU32, KindS32, KindF32, KindChar:
		w, err := lowerScalar(ct, v, path)
		if err != nil {
			return err
		}
		return atPath(mem.WriteU32(addr, uint32(w)), path)
	case KindU64, KindS64, KindF64:
		w, err := lowerScalar(ct, v, path)
		if err != nil {
			return err
		}
		return atPath(mem.WriteU64(addr, w), path)

	case KindString, KindList:
		var ptr, n uint32
		var err error
		if ct.Kind == KindString {
			s, ok := v.(String)
			if !ok {
				return mismatch(path, v, ct)
			}
			ptr, n, err = e.lowerString(s, mem, alloc, allocs, path)
		} else {
			l, ok := v.(List)
			if !ok {
				return mismatch(path, v, ct)
			}
			ptr, n, err = e.lowerList(ct, l, mem, alloc, allocs, path)
		}
		if err != nil {
			return err
		}
		if err := mem.WriteU32(addr, ptr); err != nil {
			return atPath(err, path)
		}
		return atPath(mem.WriteU32(addr+4, n), path)

	case KindRecord, KindTuple:
		r, ok := v.(Record)
		if !ok {
			return mismatch(path, v, ct)
		}
		if r.Len() != len(ct.Fields) {
			return errors.Arity(errors.PhaseLower, ct.Name, r.Len(), len(ct.Fields))
		}
		for i, f := range ct.Fields {
			if err := e.store(f.Type, r.fields[i], addr+f.WitOffset, mem, alloc, allocs, append(path, fieldName(ct, i))); err != nil {
				return err
			}
		}
		return nil

	case KindEnum:
		disc, err := enumCase(ct, v, path)
		if err != nil {
			return err
		}
		return atPath(storeDisc(ct.DiscSize, addr, disc, mem), path)

	case KindVariant, KindOption, KindResult:
		vr, c, err := variantCase(ct, v, path)
		if err != nil {
			return err
		}
		if err := storeDisc(ct.DiscSize, addr, vr.Case, mem); err != nil {
			return atPath(err, path)
		}
		if c.Type == nil {
			return nil
		}
		return e.store(c.Type, vr.Payload, addr+ct.PayloadOffset, mem, alloc, allocs, append(path, c.Name))
	}

	return errors.Unsupported(errors.PhaseLower, ct.Kind.String())
}

func (e Encoder) lowerString(s String, mem Memory, alloc Allocator, allocs *AllocationList, path []string) (uint32, uint32, error) {
	if s.Len() == 0 {
		return 0, 0, nil
	}
	if e.ReuseViews && s.lifted {
		return s.view.Ptr, s.view.Len, nil
	}
	if uint64(s.Len()) > abi.MaxStringSize {
		return 0, 0, errors.New(errors.PhaseLower, errors.KindOverflow).
			Path(path...).
			Detail("string size %d exceeds maximum %d", s.Len(), abi.MaxStringSize).
			Build()
	}
	n := uint32(s.Len())
	ptr, err := e.allocate(n, 1, alloc, allocs, path)
	if err != nil {
		return 0, 0, err
	}
	if err := mem.Write(ptr, s.data); err != nil {
		return 0, 0, atPath(err, path)
	}
	return ptr, n, nil
}

func (e Encoder) lowerList(ct *CompiledType, l List, mem Memory, alloc Allocator, allocs *AllocationList, path []string) (uint32, uint32, error) {
	elem := ct.ElemType
	if l.count == 0 {
		return 0, 0, nil
	}
	if l.raw != nil && elem.Kind != KindU8 {
		return 0, 0, errors.TypeMismatch(errors.PhaseLower, path, "list<u8>", ct.Name)
	}
	if l.lifted && l.elem != elem && l.elem.Name != elem.Name {
		return 0, 0, errors.TypeMismatch(errors.PhaseLower, path, "list<"+l.elem.Name+">", ct.Name)
	}
	if e.ReuseViews && l.lifted {
		return l.view.Ptr, uint32(l.count), nil
	}
	if l.count > abi.MaxListLength {
		return 0, 0, errors.New(errors.PhaseLower, errors.KindOverflow).
			Path(path...).
			Detail("list length %d exceeds maximum %d", l.count, abi.MaxListLength).
			Build()
	}

	count := uint32(l.count)
	size, ok := abi.SafeMulU32(count, elem.WitSize)
	if !ok {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, uint64(count)*uint64(elem.WitSize), "u32")
	}
	ptr, err := e.allocate(size, elem.WitAlign, alloc, allocs, path)
	if err != nil {
		return 0, 0, err
	}

	// Lists of pure elements are byte copies.
	if raw, ok := l.Bytes(); ok && elem.IsPure() {
		if err := mem.Write(ptr, raw); err != nil {
			return 0, 0, atPath(err, path)
		}
		return ptr, count, nil
	}

	for i := 0; i < l.count; i++ {
		item, err := l.At(i)
		if err != nil {
			return 0, 0, err
		}
		if err := e.store(elem, item, ptr+uint32(i)*elem.WitSize, mem, alloc, allocs, append(path, "["+strconv.Itoa(i)+"]")); err != nil {
			return 0, 0, err
		}
	}
	return ptr, count, nil
}

func (e Encoder) allocate(size, align uint32, alloc Allocator, allocs *AllocationList, path []string) (uint32, error) {
	if alloc == nil {
		return 0, errors.NotInitialized(errors.PhaseLower, "allocator")
	}
	ptr, err := alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.New(errors.PhaseLower, errors.KindAllocation).
			Path(path...).
			Cause(err).
			Detail("failed to allocate %d bytes aligned to %d", size, align).
			Build()
	}
	if allocs != nil {
		allocs.Add(ptr, size, align)
	}
	return ptr, nil
}

func enumCase(ct *CompiledType, v Value, path []string) (uint32, error) {
	var disc uint32
	switch x := v.(type) {
	case Enum:
		disc = uint32(x)
	case Variant:
		if x.Payload != nil {
			return 0, errors.InvalidEnum(errors.PhaseLower, path, x, ct.Name)
		}
		disc = x.Case
	default:
		return 0, mismatch(path, v, ct)
	}
	if int(disc) >= len(ct.Cases) {
		return 0, errors.InvalidEnum(errors.PhaseLower, path, disc, ct.Name)
	}
	return disc, nil
}

func variantCase(ct *CompiledType, v Value, path []string) (Variant, CompiledCase, error) {
	vr, ok := v.(Variant)
	if !ok {
		return Variant{}, CompiledCase{}, mismatch(path, v, ct)
	}
	if int(vr.Case) >= len(ct.Cases) {
		return Variant{}, CompiledCase{}, errors.InvalidDiscriminant(errors.PhaseLower, path, vr.Case, uint32(len(ct.Cases)-1))
	}
	c := ct.Cases[vr.Case]
	if c.Type == nil && vr.Payload != nil {
		return Variant{}, CompiledCase{}, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
			Path(append(path, c.Name)...).
			WitType(ct.Name).
			Detail("case %q carries no payload", c.Name).
			Build()
	}
	if c.Type != nil && vr.Payload == nil && c.Type.Kind != KindOption {
		return Variant{}, CompiledCase{}, errors.NilPointer(errors.PhaseLower, append(path, c.Name), c.Type.Name)
	}
	return vr, c, nil
}

func mismatch(path []string, v Value, ct *CompiledType) error {
	return errors.TypeMismatch(errors.PhaseLower, path, abi.TypeName(v), ct.Name)
}
