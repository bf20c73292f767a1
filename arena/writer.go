package arena

import (
	"math"

	"github.com/wippyai/wasm-cabi/errors"
)

const minWriterCap = 64

// Writer accumulates bytes into a single caller-owned arena buffer, growing
// it through Grow as data arrives. Growth failures are returned from Write
// and leave already written bytes intact.
type Writer struct {
	a     Arena
	err   error
	buf   Owned
	n     uint32
	align uint32
}

// NewWriter creates a writer over a. An align of zero means byte alignment.
func NewWriter(a Arena, align uint32) *Writer {
	if align == 0 {
		align = 1
	}
	return &Writer{a: a, align: align}
}

// Len returns the number of bytes written.
func (w *Writer) Len() uint32 {
	return w.n
}

// Write appends p, growing the buffer geometrically. When the doubled
// capacity cannot be satisfied it retries with the exact size.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	need := uint64(w.n) + uint64(len(p))
	if need > math.MaxUint32 {
		w.err = errors.Overflow(errors.PhaseAlloc, nil, need, "u32")
		return 0, w.err
	}
	if need > uint64(w.buf.Size) {
		if err := w.reserve(uint32(need)); err != nil {
			return 0, err
		}
	}
	if err := w.a.Write(w.buf.Ptr+w.n, p); err != nil {
		w.err = err
		return 0, err
	}
	w.n += uint32(len(p))
	return len(p), nil
}

func (w *Writer) reserve(need uint32) error {
	target := uint64(w.buf.Size) * 2
	if target < minWriterCap {
		target = minWriterCap
	}
	if target < uint64(need) {
		target = uint64(need)
	}
	if target > math.MaxUint32 {
		target = math.MaxUint32
	}

	ptr := w.a.Grow(w.buf.Ptr, w.buf.Size, w.align, uint32(target))
	if ptr == Null && uint32(target) != need {
		target = uint64(need)
		ptr = w.a.Grow(w.buf.Ptr, w.buf.Size, w.align, need)
	}
	if ptr == Null {
		return errors.GrowFailed(errors.PhaseAlloc, w.buf.Ptr, w.buf.Size, need)
	}
	w.buf = Owned{Ptr: ptr, Size: uint32(target), Align: w.align, Len: w.n}
	return nil
}

// Finish shrinks the buffer to the written length and hands ownership to
// the caller. Len is the written length. When the shrink fails Size stays
// the allocated size. The writer is reset afterwards.
func (w *Writer) Finish() (Owned, error) {
	defer w.reset()
	if w.err != nil {
		w.buf.Release(w.a)
		return Owned{}, w.err
	}
	if w.n == 0 {
		w.buf.Release(w.a)
		return Owned{Align: w.align}, nil
	}
	out := w.buf
	out.Len = w.n
	if w.n < w.buf.Size {
		// A failed shrink keeps the larger buffer and its size.
		if ptr := w.a.Grow(w.buf.Ptr, w.buf.Size, w.align, w.n); ptr != Null {
			out.Ptr = ptr
			out.Size = w.n
		}
	}
	return out, nil
}

// Abort releases the buffer and resets the writer.
func (w *Writer) Abort() {
	w.buf.Release(w.a)
	w.reset()
}

func (w *Writer) reset() {
	w.buf = Owned{}
	w.n = 0
	w.err = nil
}
