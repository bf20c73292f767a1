package transcoder

import (
	"github.com/wippyai/wasm-cabi/arena"
	"github.com/wippyai/wasm-cabi/errors"
)

// Value is a structured value crossing the boundary. The set of
// implementations is closed.
type Value interface {
	isValue()
}

type (
	Bool bool
	U8   uint8
	S8   int8
	U16  uint16
	S16  int16
	U32  uint32
	S32  int32
	U64  uint64
	S64  int64
	F32  float32
	F64  float64
	Char rune
	// Enum is the case index of an enum value.
	Enum uint32
)

func (Bool) isValue() {}
func (U8) isValue()   {}
func (S8) isValue()   {}
func (U16) isValue()  {}
func (S16) isValue()  {}
func (U32) isValue()  {}
func (S32) isValue()  {}
func (U64) isValue()  {}
func (S64) isValue()  {}
func (F32) isValue()  {}
func (F64) isValue()  {}
func (Char) isValue() {}
func (Enum) isValue() {}

// String is a length-delimited byte sequence. Content is raw bytes: it is
// never nul-terminated and may contain zero bytes.
//
// A lifted String is a view into arena memory. It is valid until the owner
// of that memory releases it, and must not be held past post-return.
type String struct {
	data   []byte
	view   arena.View
	lifted bool
}

func (String) isValue() {}

// NewString creates a string value from Go text.
func NewString(s string) String {
	return String{data: []byte(s)}
}

// StringBytes creates a string value over b without copying.
func StringBytes(b []byte) String {
	return String{data: b}
}

// StringView creates a string value that refers to bytes already in the
// arena at v. data must be the bytes v covers.
func StringView(v arena.View, data []byte) String {
	return String{data: data, view: v, lifted: true}
}

// Bytes returns the string bytes. For lifted strings the slice aliases
// arena memory.
func (s String) Bytes() []byte {
	return s.data
}

// String copies the content into a Go string.
func (s String) String() string {
	return string(s.data)
}

// Len returns the length in bytes.
func (s String) Len() int {
	return len(s.data)
}

// View returns the arena region of a lifted string.
func (s String) View() (arena.View, bool) {
	return s.view, s.lifted
}

// List is an ordered sequence of values of one element type.
//
// A lifted List is a view: elements are decoded from arena memory on
// access, under the same validity rules as a lifted String.
type List struct {
	elem   *CompiledType
	mem    Memory
	items  []Value
	raw    []byte
	view   arena.View
	count  int
	lifted bool
}

func (List) isValue() {}

// NewList creates a list from element values.
func NewList(items ...Value) List {
	return List{items: items, count: len(items)}
}

// NewByteList creates a list<u8> over b without copying.
func NewByteList(b []byte) List {
	return List{raw: b, count: len(b)}
}

// Len returns the number of elements.
func (l List) Len() int {
	return l.count
}

// At decodes element i.
func (l List) At(i int) (Value, error) {
	if i < 0 || i >= l.count {
		return nil, errors.OutOfBounds(errors.PhaseLift, nil, i, l.count)
	}
	switch {
	case l.lifted:
		return Decoder{}.Load(l.elem, l.view.Ptr+uint32(i)*l.elem.WitSize, l.mem)
	case l.raw != nil:
		return U8(l.raw[i]), nil
	default:
		return l.items[i], nil
	}
}

// Items decodes every element.
func (l List) Items() ([]Value, error) {
	if !l.lifted && l.raw == nil {
		return l.items, nil
	}
	out := make([]Value, l.count)
	for i := range out {
		v, err := l.At(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Bytes returns the raw element bytes of a lifted list or a byte list.
func (l List) Bytes() ([]byte, bool) {
	if l.raw != nil {
		return l.raw, true
	}
	if l.lifted {
		if l.view.Len == 0 {
			return nil, true
		}
		data, err := l.mem.Read(l.view.Ptr, l.view.Len)
		return data, err == nil
	}
	return nil, false
}

// View returns the arena region of a lifted list. Len is in bytes.
func (l List) View() (arena.View, bool) {
	return l.view, l.lifted
}

// Record is a fixed sequence of fields in declaration order. Tuples are
// records whose fields are unnamed.
type Record struct {
	fields []Value
}

func (Record) isValue() {}

// NewRecord creates a record from fields in declaration order.
func NewRecord(fields ...Value) Record {
	return Record{fields: fields}
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Field returns field i, or nil when out of range.
func (r Record) Field(i int) Value {
	if i < 0 || i >= len(r.fields) {
		return nil
	}
	return r.fields[i]
}

// Fields returns every field in declaration order.
func (r Record) Fields() []Value {
	return r.fields
}

// RecordOf builds a record of type ct from named fields. The result holds
// fields in declaration order whatever order fields are given in.
func RecordOf(ct *CompiledType, fields map[string]Value) (Record, error) {
	if ct.Kind != KindRecord {
		return Record{}, errors.TypeMismatch(errors.PhaseLower, nil, "map[string]Value", ct.Name)
	}
	for name := range fields {
		if ct.FieldIndex(name) < 0 {
			return Record{}, errors.FieldUnknown(errors.PhaseLower, nil, name)
		}
	}
	out := make([]Value, len(ct.Fields))
	for i, f := range ct.Fields {
		v, ok := fields[f.Name]
		if !ok {
			return Record{}, errors.FieldMissing(errors.PhaseLower, nil, f.Name)
		}
		out[i] = v
	}
	return Record{fields: out}, nil
}

// Variant is a case index and its payload. Payload is nil for cases
// without one. Options and results are variants.
type Variant struct {
	Payload Value
	Case    uint32
}

func (Variant) isValue() {}

// Some is option<T>::some(v).
func Some(v Value) Variant {
	return Variant{Case: 1, Payload: v}
}

// None is option<T>::none.
func None() Variant {
	return Variant{Case: 0}
}

// Ok is result<T, E>::ok(v). v may be nil for result<_, E>.
func Ok(v Value) Variant {
	return Variant{Case: 0, Payload: v}
}

// Err is result<T, E>::error(v). v may be nil for result<T>.
func Err(v Value) Variant {
	return Variant{Case: 1, Payload: v}
}
