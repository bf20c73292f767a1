// Package transcoder converts structured values to and from the flat
// calling convention and the canonical memory layout.
//
// # Types
//
// WIT types are compiled once into a CompiledType that carries everything
// the codec needs:
//
//	Type            Size    Align   Flat words
//	────────────────────────────────────────────────
//	bool            1       1       i32
//	u8/s8           1       1       i32
//	u16/s16         2       2       i32
//	u32/s32/char    4       4       i32
//	f32             4       4       f32
//	u64/s64         8       8       i64
//	f64             8       8       f64
//	string          8       4       i32 ptr, i32 len
//	list<T>         8       4       i32 ptr, i32 count
//	record/tuple    sum     max     fields in declaration order
//	variant         disc+   max     disc, joined payload words
//
// Options and results are variants with cases [none, some] and
// [ok, error]. Payload words of different cases are joined: i32 and f32
// share an i32, any other mismatch widens to i64.
//
// # Values
//
// Value is a closed set: the scalar types, String, List, Record, Variant
// and Enum. ValueOf and Native convert from and to plain Go shapes.
//
// # Lifting
//
// Decoder.Lift reads flat words, Decoder.Load reads canonical memory.
// Strings and lists come back as views into memory and are only valid
// until their owner releases them. Decoder{Copy: true} copies instead.
//
// # Lowering
//
// Encoder.Lower and Encoder.Store copy every string and list payload into
// a buffer from the allocator and record it in an AllocationList:
//
//	allocs := transcoder.NewAllocationList()
//	defer allocs.Release()
//	flat, err := transcoder.Encoder{}.Lower(ct, v, nil, mem, alloc, allocs)
//	if err != nil {
//	    allocs.Free(alloc) // roll back
//	}
//
// Release walks a lowered value and frees the same buffers, nested list
// elements first. Empty strings and lists lower to (0, 0) and own
// nothing.
//
// # Result blocks
//
// BlockLayout places flat result words in an indirect block, each at its
// core width. A string result is the 8-byte block (ptr, len).
package transcoder
