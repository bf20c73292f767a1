package wasmtest

import (
	"github.com/tetratelabs/wazero/api"
)

// HeapBase is the first address the bump allocator hands out from.
const HeapBase = 1024

var i32 = api.ValueTypeI32

// ReallocType is the signature of cabi_realloc.
var ReallocType = FuncType{
	Params:  []api.ValueType{i32, i32, i32, i32},
	Results: []api.ValueType{i32},
}

// ReallocModule returns a guest with one page of memory exported as
// "memory", a bump allocator exported as "cabi_realloc" and its heap
// pointer exported as the global "heap".
//
// The allocator never frees. It returns 0 once a request does not fit in
// the current memory, and copies min(old, new) bytes when reallocating.
func ReallocModule() []byte {
	b := NewBuilder()
	addRealloc(b)
	return b.Bytes()
}

// CallerModule returns a guest like ReallocModule that also imports
// hostModule.fn with the given flat params and an i32 result, plus
// hostModule."cabi_post_"+fn. They are re-exported as "call" and "post",
// forwarding their arguments unchanged.
func CallerModule(hostModule, fn string, params []api.ValueType) []byte {
	b := NewBuilder()
	callType := FuncType{Params: params, Results: []api.ValueType{i32}}
	postType := FuncType{Params: []api.ValueType{i32}}

	callIdx := b.Import(hostModule, fn, callType)
	postIdx := b.Import(hostModule, "cabi_post_"+fn, postType)

	addRealloc(b)

	var call []byte
	for i := range params {
		call = append(call, OpLocalGet)
		call = AppendU32(call, uint32(i))
	}
	call = append(call, OpCall)
	call = AppendU32(call, callIdx)
	call = append(call, OpEnd)
	b.ExportFunc("call", b.Func(callType, nil, call))

	post := []byte{OpLocalGet, 0x00, OpCall}
	post = AppendU32(post, postIdx)
	post = append(post, OpEnd)
	b.ExportFunc("post", b.Func(postType, nil, post))

	return b.Bytes()
}

func addRealloc(b *Builder) {
	b.Memory(1, "memory")
	heap := b.GlobalI32(HeapBase, true)
	b.ExportGlobal("heap", heap)

	// params: 0 old ptr, 1 old size, 2 align, 3 new size; local 4 new ptr
	body := []byte{
		// new = (heap + align - 1) & -align
		OpGlobalGet, byte(heap),
		OpLocalGet, 2, OpI32Add,
		OpI32Const, 1, OpI32Sub,
		OpI32Const, 0, OpLocalGet, 2, OpI32Sub,
		OpI32And,
		OpLocalSet, 4,

		// if new+size > limit || size > limit { return 0 }
		OpLocalGet, 4, OpLocalGet, 3, OpI32Add,
		OpMemorySize, 0x00, OpI32Const, 16, OpI32Shl,
		OpI32GtU,
		OpLocalGet, 3,
		OpMemorySize, 0x00, OpI32Const, 16, OpI32Shl,
		OpI32GtU,
		OpI32Or,
		OpIf, BlockEmpty,
		OpI32Const, 0, OpReturn,
		OpEnd,

		// heap = new + size
		OpLocalGet, 4, OpLocalGet, 3, OpI32Add,
		OpGlobalSet, byte(heap),

		// if old != 0 { memory.copy(new, old, min(oldSize, size)) }
		OpLocalGet, 0,
		OpIf, BlockEmpty,
		OpLocalGet, 4, OpLocalGet, 0,
		OpLocalGet, 1, OpLocalGet, 3,
		OpLocalGet, 1, OpLocalGet, 3, OpI32LtU,
		OpSelect,
		OpPrefixFC, OpMemoryCopy, 0x00, 0x00,
		OpEnd,

		OpLocalGet, 4,
		OpEnd,
	}
	b.ExportFunc("cabi_realloc", b.Func(ReallocType, []api.ValueType{i32}, body))
}
