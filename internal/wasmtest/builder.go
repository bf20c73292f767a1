// Package wasmtest assembles small core wasm modules for tests.
package wasmtest

import (
	"github.com/tetratelabs/wazero/api"
)

// Opcodes used by the test modules.
const (
	OpIf         = 0x04
	OpEnd        = 0x0b
	OpReturn     = 0x0f
	OpCall       = 0x10
	OpSelect     = 0x1b
	OpLocalGet   = 0x20
	OpLocalSet   = 0x21
	OpGlobalGet  = 0x23
	OpGlobalSet  = 0x24
	OpMemorySize = 0x3f
	OpI32Const   = 0x41
	OpI32LtU     = 0x49
	OpI32GtU     = 0x4b
	OpI32Add     = 0x6a
	OpI32Sub     = 0x6b
	OpI32And     = 0x71
	OpI32Or      = 0x72
	OpI32Shl     = 0x74
	OpPrefixFC   = 0xfc
	OpMemoryCopy = 0x0a // after OpPrefixFC

	BlockEmpty = 0x40
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10

	externFunc   = 0x00
	externMemory = 0x02
	externGlobal = 0x03
)

// FuncType is a core function signature.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

type importFunc struct {
	module, name string
	typ          uint32
}

type function struct {
	locals []api.ValueType
	body   []byte
	typ    uint32
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type global struct {
	init    int32
	mutable bool
}

// Builder accumulates module sections. Imports must be declared before any
// function so function indexes stay stable.
type Builder struct {
	types    []FuncType
	imports  []importFunc
	funcs    []function
	exports  []export
	globals  []global
	memPages uint32
	hasMem   bool
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) typeIndex(t FuncType) uint32 {
	for i, have := range b.types {
		if sameTypes(have.Params, t.Params) && sameTypes(have.Results, t.Results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, t)
	return uint32(len(b.types) - 1)
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Import declares an imported function and returns its function index.
func (b *Builder) Import(module, name string, t FuncType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	b.imports = append(b.imports, importFunc{module: module, name: name, typ: b.typeIndex(t)})
	return uint32(len(b.imports) - 1)
}

// Func defines a function and returns its index. The body must not include
// the local declarations; it must end with OpEnd.
func (b *Builder) Func(t FuncType, locals []api.ValueType, body []byte) uint32 {
	b.funcs = append(b.funcs, function{typ: b.typeIndex(t), locals: locals, body: body})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Memory declares the module memory and exports it under name.
func (b *Builder) Memory(pages uint32, name string) {
	b.memPages = pages
	b.hasMem = true
	if name != "" {
		b.exports = append(b.exports, export{name: name, kind: externMemory})
	}
}

// GlobalI32 declares an i32 global and returns its index.
func (b *Builder) GlobalI32(init int32, mutable bool) uint32 {
	b.globals = append(b.globals, global{init: init, mutable: mutable})
	return uint32(len(b.globals) - 1)
}

// ExportFunc exports function idx.
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: externFunc, index: idx})
}

// ExportGlobal exports global idx.
func (b *Builder) ExportGlobal(name string, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: externGlobal, index: idx})
}

// Bytes encodes the module binary.
func (b *Builder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.types)))
		for _, t := range b.types {
			s = append(s, 0x60)
			s = appendValueTypes(s, t.Params)
			s = appendValueTypes(s, t.Results)
		}
		out = appendSection(out, sectionType, s)
	}

	if len(b.imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.imports)))
		for _, imp := range b.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, externFunc)
			s = appendU32(s, imp.typ)
		}
		out = appendSection(out, sectionImport, s)
	}

	if len(b.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			s = appendU32(s, f.typ)
		}
		out = appendSection(out, sectionFunction, s)
	}

	if b.hasMem {
		s := []byte{0x01, 0x00}
		s = appendU32(s, b.memPages)
		out = appendSection(out, sectionMemory, s)
	}

	if len(b.globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.globals)))
		for _, g := range b.globals {
			s = append(s, byte(api.ValueTypeI32))
			if g.mutable {
				s = append(s, 0x01)
			} else {
				s = append(s, 0x00)
			}
			s = append(s, OpI32Const)
			s = AppendI32(s, g.init)
			s = append(s, OpEnd)
		}
		out = appendSection(out, sectionGlobal, s)
	}

	if len(b.exports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.exports)))
		for _, e := range b.exports {
			s = appendName(s, e.name)
			s = append(s, e.kind)
			s = appendU32(s, e.index)
		}
		out = appendSection(out, sectionExport, s)
	}

	if len(b.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body []byte
			body = appendU32(body, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = appendU32(body, 1)
				body = append(body, byte(l))
			}
			body = append(body, f.body...)
			s = appendU32(s, uint32(len(body)))
			s = append(s, body...)
		}
		out = appendSection(out, sectionCode, s)
	}

	return out
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(payload)))
	return append(out, payload...)
}

func appendValueTypes(out []byte, ts []api.ValueType) []byte {
	out = appendU32(out, uint32(len(ts)))
	for _, t := range ts {
		out = append(out, byte(t))
	}
	return out
}

func appendName(out []byte, name string) []byte {
	out = appendU32(out, uint32(len(name)))
	return append(out, name...)
}

// appendU32 appends v as unsigned LEB128.
func appendU32(out []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, c|0x80)
			continue
		}
		return append(out, c)
	}
}

// AppendU32 appends v as unsigned LEB128, as used for indexes.
func AppendU32(out []byte, v uint32) []byte {
	return appendU32(out, v)
}

// AppendI32 appends v as signed LEB128, as used by i32.const.
func AppendI32(out []byte, v int32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}
