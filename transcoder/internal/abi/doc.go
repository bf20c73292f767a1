// Package abi provides internal utilities for Canonical ABI lifting and
// lowering.
//
// # Contents
//
//   - coerce.go: Go number coercion into WIT integer widths
//   - flat.go: Flat core-type sequences and the variant join rule
//   - helpers.go: Overflow-safe arithmetic, alignment and float canonicalization
//
// This package is internal to the transcoder.
package abi
