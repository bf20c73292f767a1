package types

import (
	"github.com/tetratelabs/wazero/api"
)

// CompiledType is a WIT type resolved once into everything the codec needs:
// canonical size and alignment, field offsets and the flat core types.
//
// Options and results are normalized to cases: option is [none, some(T)],
// result is [ok(T?), error(E?)].
type CompiledType struct {
	ElemType      *CompiledType
	Name          string
	Cases         []Case
	Fields        []Field
	Flat          []api.ValueType
	WitSize       uint32
	WitAlign      uint32
	PayloadOffset uint32
	DiscSize      uint32
	Kind          Kind
}

type Field struct {
	Type      *CompiledType
	Name      string
	WitOffset uint32
}

// Case is one alternative of a variant-like type. Type is nil when the
// case carries no payload.
type Case struct {
	Type *CompiledType
	Name string
}

func (ct *CompiledType) IsPrimitive() bool {
	return ct.Kind.IsPrimitive()
}

// FlatCount returns the number of core words in the flat representation.
func (ct *CompiledType) FlatCount() int {
	return len(ct.Flat)
}

// IsPure returns true if type contains only primitives (no strings/lists requiring memory ops).
func (ct *CompiledType) IsPure() bool {
	switch ct.Kind {
	case KindString, KindList:
		return false
	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			if !f.Type.IsPure() {
				return false
			}
		}
		return true
	case KindVariant, KindOption, KindResult:
		for _, c := range ct.Cases {
			if c.Type != nil && !c.Type.IsPure() {
				return false
			}
		}
		return true
	case KindEnum:
		return true
	default:
		return ct.IsPrimitive()
	}
}

// FieldIndex returns the declaration index of the named field, or -1.
func (ct *CompiledType) FieldIndex(name string) int {
	for i, f := range ct.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// CaseIndex returns the discriminant of the named case, or -1.
func (ct *CompiledType) CaseIndex(name string) int {
	for i, c := range ct.Cases {
		if c.Name == name {
			return i
		}
	}
	return -1
}
