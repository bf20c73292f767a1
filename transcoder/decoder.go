package transcoder

import (
	"math"
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cabi/arena"
	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/transcoder/internal/abi"
)

// Decoder lifts flat words and canonical memory into Values.
//
// By default strings and lists are views into memory and nothing is
// copied. With Copy set the decoder copies every payload out, so the
// result stays valid after the memory is released.
type Decoder struct {
	Copy bool
}

// Lift reads a value of type ct from the front of flat and returns it with
// the number of words consumed.
func (d Decoder) Lift(ct *CompiledType, flat []uint64, mem Memory) (Value, int, error) {
	return d.lift(ct, flat, mem, nil)
}

// LiftAll lifts one value per type from consecutive flat words.
func (d Decoder) LiftAll(cts []*CompiledType, flat []uint64, mem Memory) ([]Value, error) {
	out := make([]Value, len(cts))
	offset := 0
	for i, ct := range cts {
		v, n, err := d.lift(ct, flat[offset:], mem, []string{"param[" + strconv.Itoa(i) + "]"})
		if err != nil {
			return nil, err
		}
		out[i] = v
		offset += n
	}
	return out, nil
}

// Load reads a value of type ct stored at addr in its canonical layout.
func (d Decoder) Load(ct *CompiledType, addr uint32, mem Memory) (Value, error) {
	return d.load(ct, addr, mem, nil)
}

func (d Decoder) lift(ct *CompiledType, flat []uint64, mem Memory, path []string) (Value, int, error) {
	n := ct.FlatCount()
	if len(flat) < n {
		return nil, 0, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			WitType(ct.Name).
			Detail("need %d flat words, have %d", n, len(flat)).
			Build()
	}

	switch ct.Kind {
	case KindBool:
		return Bool(api.DecodeU32(flat[0]) != 0), 1, nil
	case KindU8:
		return U8(api.DecodeU32(flat[0])), 1, nil
	case KindS8:
		return S8(api.DecodeI32(flat[0])), 1, nil
	case KindU16:
		return U16(api.DecodeU32(flat[0])), 1, nil
	case KindS16:
		return S16(api.DecodeI32(flat[0])), 1, nil
	case KindU32:
		return U32(api.DecodeU32(flat[0])), 1, nil
	case KindS32:
		return S32(api.DecodeI32(flat[0])), 1, nil
	case KindU64:
		return U64(flat[0]), 1, nil
	case KindS64:
		return S64(int64(flat[0])), 1, nil
	case KindF32:
		return F32(api.DecodeF32(flat[0])), 1, nil
	case KindF64:
		return F64(api.DecodeF64(flat[0])), 1, nil
	case KindChar:
		v, err := liftChar(api.DecodeU32(flat[0]), path)
		return v, 1, err

	case KindString:
		v, err := d.liftString(api.DecodeU32(flat[0]), api.DecodeU32(flat[1]), mem, path)
		return v, 2, err

	case KindList:
		v, err := d.liftList(ct, api.DecodeU32(flat[0]), api.DecodeU32(flat[1]), mem, path)
		return v, 2, err

	case KindRecord, KindTuple:
		fields := make([]Value, len(ct.Fields))
		offset := 0
		for i, f := range ct.Fields {
			v, used, err := d.lift(f.Type, flat[offset:], mem, append(path, fieldName(ct, i)))
			if err != nil {
				return nil, 0, err
			}
			fields[i] = v
			offset += used
		}
		return Record{fields: fields}, offset, nil

	case KindEnum:
		disc := api.DecodeU32(flat[0])
		if int(disc) >= len(ct.Cases) {
			return nil, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, uint32(len(ct.Cases)-1))
		}
		return Enum(disc), 1, nil

	case KindVariant, KindOption, KindResult:
		disc := api.DecodeU32(flat[0])
		if int(disc) >= len(ct.Cases) {
			return nil, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, uint32(len(ct.Cases)-1))
		}
		c := ct.Cases[disc]
		out := Variant{Case: disc}
		if c.Type != nil {
			v, _, err := d.lift(c.Type, flat[1:], mem, append(path, c.Name))
			if err != nil {
				return nil, 0, err
			}
			out.Payload = v
		}
		return out, n, nil
	}

	return nil, 0, errors.Unsupported(errors.PhaseLift, ct.Kind.String())
}

func (d Decoder) load(ct *CompiledType, addr uint32, mem Memory, path []string) (Value, error) {
	if ct.WitAlign > 1 && addr%ct.WitAlign != 0 {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			WitType(ct.Name).
			Detail("address %d not aligned to %d", addr, ct.WitAlign).
			Build()
	}

	switch ct.Kind {
	case KindBool:
		v, err := mem.ReadU8(addr)
		return Bool(v != 0), atPath(err, path)
	case KindU8:
		v, err := mem.ReadU8(addr)
		return U8(v), atPath(err, path)
	case KindS8:
		v, err := mem.ReadU8(addr)
		return S8(int8(v)), atPath(err, path)
	case KindU16:
		v, err := mem.ReadU16(addr)
		return U16(v), atPath(err, path)
	case KindS16:
		v, err := mem.ReadU16(addr)
		return S16(int16(v)), atPath(err, path)
	case KindU32:
		v, err := mem.ReadU32(addr)
		return U32(v), atPath(err, path)
	case KindS32:
		v, err := mem.ReadU32(addr)
		return S32(int32(v)), atPath(err, path)
	case KindU64:
		v, err := mem.ReadU64(addr)
		return U64(v), atPath(err, path)
	case KindS64:
		v, err := mem.ReadU64(addr)
		return S64(int64(v)), atPath(err, path)
	case KindF32:
		v, err := mem.ReadU32(addr)
		return F32(math.Float32frombits(v)), atPath(err, path)
	case KindF64:
		v, err := mem.ReadU64(addr)
		return F64(math.Float64frombits(v)), atPath(err, path)
	case KindChar:
		v, err := mem.ReadU32(addr)
		if err != nil {
			return nil, atPath(err, path)
		}
		return liftChar(v, path)

	case KindString, KindList:
		ptr, err := mem.ReadU32(addr)
		if err != nil {
			return nil, atPath(err, path)
		}
		length, err := mem.ReadU32(addr + 4)
		if err != nil {
			return nil, atPath(err, path)
		}
		if ct.Kind == KindString {
			return d.liftString(ptr, length, mem, path)
		}
		return d.liftList(ct, ptr, length, mem, path)

	case KindRecord, KindTuple:
		fields := make([]Value, len(ct.Fields))
		for i, f := range ct.Fields {
			v, err := d.load(f.Type, addr+f.WitOffset, mem, append(path, fieldName(ct, i)))
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		return Record{fields: fields}, nil

	case KindEnum, KindVariant, KindOption, KindResult:
		disc, err := loadDisc(ct.DiscSize, addr, mem)
		if err != nil {
			return nil, atPath(err, path)
		}
		if int(disc) >= len(ct.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, uint32(len(ct.Cases)-1))
		}
		if ct.Kind == KindEnum {
			return Enum(disc), nil
		}
		c := ct.Cases[disc]
		out := Variant{Case: disc}
		if c.Type != nil {
			v, err := d.load(c.Type, addr+ct.PayloadOffset, mem, append(path, c.Name))
			if err != nil {
				return nil, err
			}
			out.Payload = v
		}
		return out, nil
	}

	return nil, errors.Unsupported(errors.PhaseLift, ct.Kind.String())
}

func (d Decoder) liftString(ptr, length uint32, mem Memory, path []string) (Value, error) {
	if length > abi.MaxStringSize {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			Detail("string length %d exceeds maximum %d", length, abi.MaxStringSize).
			Build()
	}
	if length == 0 {
		if d.Copy {
			return String{}, nil
		}
		return String{view: arena.View{Ptr: ptr}, lifted: true}, nil
	}
	data, err := mem.Read(ptr, length)
	if err != nil {
		return nil, atPath(err, path)
	}
	if d.Copy {
		return String{data: append([]byte(nil), data...)}, nil
	}
	return String{data: data, view: arena.View{Ptr: ptr, Len: length}, lifted: true}, nil
}

func (d Decoder) liftList(ct *CompiledType, ptr, count uint32, mem Memory, path []string) (Value, error) {
	elem := ct.ElemType
	if count > abi.MaxListLength {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			Detail("list length %d exceeds maximum %d", count, abi.MaxListLength).
			Build()
	}
	byteLen, ok := abi.SafeMulU32(count, elem.WitSize)
	if !ok {
		return nil, errors.Overflow(errors.PhaseLift, path, uint64(count)*uint64(elem.WitSize), "u32")
	}
	if count > 0 && elem.WitAlign > 1 && ptr%elem.WitAlign != 0 {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			WitType(ct.Name).
			Detail("list pointer %d not aligned to %d", ptr, elem.WitAlign).
			Build()
	}
	if byteLen > 0 {
		if _, err := mem.Read(ptr, byteLen); err != nil {
			return nil, atPath(err, path)
		}
	}

	view := List{
		elem:   elem,
		mem:    mem,
		view:   arena.View{Ptr: ptr, Len: byteLen},
		count:  int(count),
		lifted: true,
	}
	if !d.Copy {
		return view, nil
	}

	if elem.Kind == KindU8 {
		raw, _ := view.Bytes()
		return List{elem: elem, raw: append([]byte{}, raw...), count: int(count)}, nil
	}
	items := make([]Value, count)
	for i := range items {
		v, err := d.load(elem, ptr+uint32(i)*elem.WitSize, mem, append(path, "["+strconv.Itoa(i)+"]"))
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return List{elem: elem, items: items, count: int(count)}, nil
}

func liftChar(v uint32, path []string) (Value, error) {
	if !abi.ValidateChar(rune(v)) {
		return nil, errors.InvalidData(errors.PhaseLift, path, "invalid Unicode scalar value "+strconv.FormatUint(uint64(v), 16))
	}
	return Char(rune(v)), nil
}

func loadDisc(size, addr uint32, mem Memory) (uint32, error) {
	switch size {
	case 1:
		v, err := mem.ReadU8(addr)
		return uint32(v), err
	case 2:
		v, err := mem.ReadU16(addr)
		return uint32(v), err
	default:
		return mem.ReadU32(addr)
	}
}

func storeDisc(size, addr, disc uint32, mem Memory) error {
	switch size {
	case 1:
		return mem.WriteU8(addr, uint8(disc))
	case 2:
		return mem.WriteU16(addr, uint16(disc))
	default:
		return mem.WriteU32(addr, disc)
	}
}

// fieldName names member i for error paths.
func fieldName(ct *CompiledType, i int) string {
	if n := ct.Fields[i].Name; n != "" {
		return n
	}
	return strconv.Itoa(i)
}

func atPath(err error, path []string) error {
	if err == nil || len(path) == 0 {
		return err
	}
	if e, ok := err.(*errors.Error); ok {
		return e.WithPath(path...)
	}
	return err
}
