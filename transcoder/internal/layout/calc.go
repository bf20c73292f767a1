package layout

import (
	"github.com/wippyai/wasm-cabi/transcoder/internal/abi"
	"go.bytecodealliance.org/wit"
)

// Info is the canonical memory layout of a type.
type Info struct {
	// Offsets holds record/tuple member offsets in declaration order.
	Offsets []uint32
	Size    uint32
	Align   uint32
	// PayloadOffset is where a variant-like payload starts.
	PayloadOffset uint32
	// DiscSize is the discriminant width of a variant-like type.
	DiscSize uint32
}

type Calculator struct {
	cache map[*wit.TypeDef]Info
}

func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[*wit.TypeDef]Info),
	}
}

func (c *Calculator) Calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		return c.calculateTypeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func (c *Calculator) calculateTypeDef(t *wit.TypeDef) Info {
	if cached, ok := c.cache[t]; ok {
		return cached
	}

	var info Info

	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		info = c.calculateSequence(types)
	case *wit.Tuple:
		info = c.calculateSequence(kind.Types)
	case *wit.Variant:
		payloads := make([]wit.Type, len(kind.Cases))
		for i, cs := range kind.Cases {
			payloads[i] = cs.Type
		}
		info = c.calculateCases(payloads)
	case *wit.Enum:
		info = c.calculateCases(make([]wit.Type, len(kind.Cases)))
	case *wit.Option:
		info = c.calculateCases([]wit.Type{nil, kind.Type})
	case *wit.Result:
		info = c.calculateCases([]wit.Type{kind.OK, kind.Err})
	case *wit.List:
		info = Info{Size: 8, Align: 4}
	case wit.Type:
		info = c.Calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}

	c.cache[t] = info
	return info
}

// calculateSequence lays members out one after another, each aligned to
// its own alignment.
func (c *Calculator) calculateSequence(members []wit.Type) Info {
	if len(members) == 0 {
		return Info{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(members))
	maxAlign := uint32(1)
	offset := uint32(0)

	for i, m := range members {
		l := c.Calculate(m)

		offset = abi.AlignTo(offset, l.Align)
		offsets[i] = offset

		if l.Align > maxAlign {
			maxAlign = l.Align
		}

		offset += l.Size
	}

	return Info{
		Offsets: offsets,
		Size:    abi.AlignTo(offset, maxAlign),
		Align:   maxAlign,
	}
}

// calculateCases lays out a discriminant followed by the largest payload.
// A nil payload is a case without one.
func (c *Calculator) calculateCases(payloads []wit.Type) Info {
	if len(payloads) == 0 {
		return Info{Size: 0, Align: 1}
	}

	discSize := abi.DiscriminantSize(len(payloads))

	maxAlign := discSize
	maxSize := uint32(0)

	for _, p := range payloads {
		if p == nil {
			continue
		}
		l := c.Calculate(p)
		if l.Align > maxAlign {
			maxAlign = l.Align
		}
		if l.Size > maxSize {
			maxSize = l.Size
		}
	}

	payloadOffset := abi.AlignTo(discSize, maxAlign)

	return Info{
		Size:          abi.AlignTo(payloadOffset+maxSize, maxAlign),
		Align:         maxAlign,
		PayloadOffset: payloadOffset,
		DiscSize:      discSize,
	}
}
