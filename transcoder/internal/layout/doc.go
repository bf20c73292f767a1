// Package layout provides Canonical ABI layout calculations for WIT types.
//
// This package computes size, alignment, and member offsets. These
// calculations determine how WIT types are represented in linear memory.
//
// # Layout Rules
//
//   - Primitives: size equals alignment (u8=1, u32=4, u64=8, etc.)
//   - Records and tuples: members laid out in declaration order with padding
//   - Variants, enums, options, results: discriminant then the largest payload
//   - Lists/Strings: (pointer, length) pair in memory, content elsewhere
//
// # Usage
//
//	info := layout.NewCalculator().Calculate(witType)
//	// info.Size, info.Align, info.Offsets, info.PayloadOffset
//
// This package is internal to the transcoder.
package layout
