package host

import (
	"github.com/wippyai/wasm-cabi/arena"
	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/export"
	"github.com/wippyai/wasm-cabi/transcoder"
)

// Result is the caller-owned result of one call. Close runs the paired
// post-return hook; it is safe to call more than once.
type Result struct {
	export *export.Export
	arena  arena.Arena
	block  uint32
	closed bool
}

// Block returns the address of the result block, or Null for functions
// without a result.
func (r *Result) Block() uint32 {
	return r.block
}

// Value lifts the result. Strings and lists in it are views that are valid
// until Close.
func (r *Result) Value() (transcoder.Value, error) {
	if r.closed {
		return nil, errors.Closed(errors.PhasePostReturn, "result of "+r.export.Name())
	}
	return r.export.ReadResult(r.arena, r.block)
}

// Close releases the result buffers.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.export.PostReturn(r.arena, r.block)
}
