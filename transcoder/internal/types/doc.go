// Package types defines the compiled type structures for fast transcoding.
//
// CompiledType holds precomputed layout information (size, alignment, offsets)
// and the flat core-type sequence of a WIT type. By compiling type metadata
// once, the codec avoids repeated layout calculations during hot paths.
//
// # Key Types
//
//   - CompiledType: Cached type metadata with layout info
//   - Kind: Type discriminator (primitive, record, list, variant, etc.)
//
// This package is internal to the transcoder.
package types
