package arena

import (
	"github.com/wippyai/wasm-cabi/errors"
)

// View is a borrowed region of arena memory. It is never released through
// a View; whoever handed it out keeps ownership.
type View struct {
	Ptr uint32
	Len uint32
}

// Bytes reads the viewed bytes. The slice aliases memory and stays valid
// until the next operation that can grow the memory.
func (v View) Bytes(mem Memory) ([]byte, error) {
	if v.Len == 0 {
		return nil, nil
	}
	return mem.Read(v.Ptr, v.Len)
}

// Empty reports whether the view covers no bytes.
func (v View) Empty() bool {
	return v.Len == 0
}

// Owned is a buffer its holder must release exactly once.
//
// Size is the allocated size and is what Release hands back to the arena.
// Len is the number of bytes in use, at most Size.
type Owned struct {
	Ptr   uint32
	Size  uint32
	Align uint32
	Len   uint32
}

// Allocate obtains an owned buffer from a.
func Allocate(a Arena, size, align uint32) (Owned, error) {
	if size == 0 {
		return Owned{Align: align}, nil
	}
	ptr, err := a.Alloc(size, align)
	if err != nil {
		return Owned{}, err
	}
	if ptr == Null {
		return Owned{}, errors.AllocationFailed(errors.PhaseAlloc, size, align)
	}
	return Owned{Ptr: ptr, Size: size, Align: align, Len: size}, nil
}

// View borrows the bytes in use.
func (o Owned) View() View {
	return View{Ptr: o.Ptr, Len: o.Len}
}

// Bytes reads the bytes in use.
func (o Owned) Bytes(mem Memory) ([]byte, error) {
	return o.View().Bytes(mem)
}

// Release returns the buffer to a and clears o. Releasing an empty buffer
// is a no-op.
func (o *Owned) Release(a Arena) {
	if o.Size != 0 && o.Ptr != Null {
		a.Free(o.Ptr, o.Size, o.Align)
	}
	*o = Owned{}
}
