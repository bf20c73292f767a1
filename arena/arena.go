package arena

import (
	"go.uber.org/zap"

	wasmcabi "github.com/wippyai/wasm-cabi"
	"github.com/wippyai/wasm-cabi/errors"
)

const (
	// Null is the failure sentinel. It is never a valid allocation.
	Null uint32 = 0

	// PageSize is the growth unit of a linear memory.
	PageSize = 65536

	// MaxPages bounds a 32-bit address space.
	MaxPages = 65535

	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"
)

// Memory and Allocator are re-exported so callers need one import.
type (
	Memory      = wasmcabi.Memory
	MemorySizer = wasmcabi.MemorySizer
	Allocator   = wasmcabi.Allocator
)

// Arena is the allocator both sides of a boundary agree to use for every
// buffer crossing it.
//
// Alloc is the exhausting path: what happens when it cannot satisfy a
// request is decided by the arena's Policy. Grow never aborts: it returns
// Null on failure and leaves the original buffer valid and unmodified.
//
// Arenas are not safe for concurrent use unless stated otherwise.
type Arena interface {
	Memory
	Allocator

	// Grow resizes the buffer at ptr from oldSize to newSize bytes,
	// preserving the first min(oldSize, newSize) bytes. A Null ptr or zero
	// oldSize allocates; a zero newSize releases.
	Grow(ptr, oldSize, align, newSize uint32) uint32
}

// Policy selects the behaviour of Alloc when the arena is exhausted.
type Policy uint8

const (
	// PolicyAbort logs and panics with the allocation error. The core
	// calling convention has no error channel, so this is the default.
	PolicyAbort Policy = iota
	// PolicyPropagate returns the allocation error to the caller.
	PolicyPropagate
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicyPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of arena accounting.
type Stats struct {
	Live      int    // outstanding allocations
	LiveBytes uint64 // bytes held by outstanding allocations
	Allocs    uint64
	Frees     uint64
	Grows     uint64
	Failed    uint64 // requests that could not be satisfied
	Size      uint32 // current memory size in bytes
}

// Span is one outstanding allocation.
type Span struct {
	Ptr  uint32
	Size uint32
}

// exhausted applies policy to a failed allocation.
func exhausted(policy Policy, err *errors.Error, fields ...zap.Field) (uint32, error) {
	if policy == PolicyPropagate {
		return Null, err
	}
	Logger().Error("arena exhausted", append(fields, zap.Error(err))...)
	panic(err)
}

// zeroSized is the non-null address handed out for zero-byte requests.
func zeroSized(align uint32) uint32 {
	if align == 0 {
		return 1
	}
	return align
}

func isPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
