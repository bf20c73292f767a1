package arena

import (
	"encoding/binary"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cabi/errors"
)

// granule is the allocation unit; every span is a multiple of it.
const granule = 8

type span struct {
	off  uint32
	size uint32
}

// Linear is an in-process arena over a contiguous byte region addressed by
// 32-bit offsets. The first granule is reserved so Null is never handed out.
//
// Free space is kept as a sorted, coalesced span list searched first fit.
// When no span fits, the region grows by whole pages up to the configured
// limit. Growth may move the backing slice, so byte slices returned by Read
// must not be held across allocations.
type Linear struct {
	live   map[uint32]uint32
	mem    []byte
	free   []span
	limit  uint64
	stats  Stats
	policy Policy
}

// NewLinear creates a Linear arena.
func NewLinear(cfg Config) (*Linear, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	size := uint64(cfg.InitialPages) * PageSize
	a := &Linear{
		live:   make(map[uint32]uint32),
		mem:    make([]byte, size),
		limit:  uint64(cfg.MemoryLimitPages) * PageSize,
		policy: cfg.Policy,
	}
	a.free = []span{{off: granule, size: uint32(size - granule)}}
	return a, nil
}

// Policy returns the exhaustion policy.
func (a *Linear) Policy() Policy {
	return a.policy
}

// Alloc returns a fresh buffer of size bytes aligned to align.
func (a *Linear) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return zeroSized(align), nil
	}
	if align != 0 && !isPow2(align) {
		return Null, errors.InvalidInput(errors.PhaseAlloc, "alignment must be a power of two")
	}
	if ptr, ok := a.alloc(size, align); ok {
		return ptr, nil
	}
	a.stats.Failed++
	return exhausted(a.policy, errors.AllocationFailed(errors.PhaseAlloc, size, align),
		zap.Uint32("size", size),
		zap.Uint32("align", align),
		zap.Int("memory", len(a.mem)))
}

// Free releases a buffer. Unknown pointers are ignored.
func (a *Linear) Free(ptr, size, align uint32) {
	if size == 0 || ptr == Null {
		return
	}
	held, ok := a.live[ptr]
	if !ok {
		Logger().Debug("free of unknown pointer", zap.Uint32("ptr", ptr), zap.Uint32("size", size))
		return
	}
	delete(a.live, ptr)
	a.insertFree(ptr, held)
	a.stats.Frees++
	a.stats.LiveBytes -= uint64(held)
}

// Grow resizes the buffer at ptr. Shrinking and growth into an adjacent free
// span happen in place; otherwise the contents move to a new buffer.
func (a *Linear) Grow(ptr, oldSize, align, newSize uint32) uint32 {
	if align != 0 && !isPow2(align) {
		return Null
	}
	if ptr == Null || oldSize == 0 {
		if newSize == 0 {
			return zeroSized(align)
		}
		p, ok := a.alloc(newSize, align)
		if !ok {
			a.stats.Failed++
			return Null
		}
		return p
	}
	if newSize == 0 {
		a.Free(ptr, oldSize, align)
		return zeroSized(align)
	}

	held, ok := a.live[ptr]
	if !ok {
		return Null
	}
	need64 := roundUp(uint64(newSize))
	if need64 > uint64(^uint32(0)) {
		a.stats.Failed++
		return Null
	}
	need := uint32(need64)

	if need <= held {
		if need < held {
			a.insertFree(ptr+need, held-need)
			a.live[ptr] = need
			a.stats.LiveBytes -= uint64(held - need)
		}
		a.stats.Grows++
		return ptr
	}

	if a.extend(ptr, held, need) {
		a.stats.Grows++
		return ptr
	}

	p, ok := a.alloc(newSize, align)
	if !ok {
		a.stats.Failed++
		return Null
	}
	n := oldSize
	if n > held {
		n = held
	}
	copy(a.mem[p:p+n], a.mem[ptr:ptr+n])
	a.Free(ptr, oldSize, align)
	a.stats.Grows++
	return p
}

// extend grows the allocation at ptr in place by taking the front of the
// free span directly after it.
func (a *Linear) extend(ptr, held, need uint32) bool {
	end := ptr + held
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off >= end })
	if i == len(a.free) || a.free[i].off != end {
		return false
	}
	extra := need - held
	if a.free[i].size < extra {
		return false
	}
	if a.free[i].size == extra {
		a.free = append(a.free[:i], a.free[i+1:]...)
	} else {
		a.free[i].off += extra
		a.free[i].size -= extra
	}
	a.live[ptr] = need
	a.stats.LiveBytes += uint64(extra)
	return true
}

func (a *Linear) alloc(size, align uint32) (uint32, bool) {
	if align < granule {
		align = granule
	}
	need := roundUp(uint64(size))
	if need > uint64(^uint32(0)) {
		return Null, false
	}
	if ptr, ok := a.carve(uint32(need), align); ok {
		return ptr, true
	}
	if !a.growMemory(need + uint64(align)) {
		return Null, false
	}
	return a.carve(uint32(need), align)
}

// carve takes need bytes from the first span that fits after alignment.
func (a *Linear) carve(need, align uint32) (uint32, bool) {
	for i, s := range a.free {
		start := (uint64(s.off) + uint64(align) - 1) &^ uint64(align-1)
		pad := start - uint64(s.off)
		if pad+uint64(need) > uint64(s.size) {
			continue
		}
		ptr := uint32(start)
		tail := s.size - uint32(pad) - need

		var repl []span
		if pad > 0 {
			repl = append(repl, span{off: s.off, size: uint32(pad)})
		}
		if tail > 0 {
			repl = append(repl, span{off: ptr + need, size: tail})
		}
		a.free = append(a.free[:i], append(repl, a.free[i+1:]...)...)

		a.live[ptr] = need
		a.stats.Allocs++
		a.stats.LiveBytes += uint64(need)
		return ptr, true
	}
	return Null, false
}

// growMemory appends enough whole pages to fit at least n more bytes.
func (a *Linear) growMemory(n uint64) bool {
	cur := uint64(len(a.mem))
	pages := (n + PageSize - 1) / PageSize
	next := cur + pages*PageSize
	if next > a.limit {
		return false
	}
	a.mem = append(a.mem, make([]byte, next-cur)...)
	a.insertFree(uint32(cur), uint32(next-cur))
	Logger().Debug("arena grown", zap.Uint64("from", cur), zap.Uint64("to", next))
	return true
}

// insertFree returns a span to the free list, merging with neighbours.
func (a *Linear) insertFree(off, size uint32) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off >= off })

	if i > 0 && a.free[i-1].off+a.free[i-1].size == off {
		a.free[i-1].size += size
		if i < len(a.free) && a.free[i-1].off+a.free[i-1].size == a.free[i].off {
			a.free[i-1].size += a.free[i].size
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return
	}
	if i < len(a.free) && off+size == a.free[i].off {
		a.free[i].off = off
		a.free[i].size += size
		return
	}
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{off: off, size: size}
}

// Stats returns a snapshot of arena accounting.
func (a *Linear) Stats() Stats {
	s := a.stats
	s.Live = len(a.live)
	s.Size = uint32(len(a.mem))
	return s
}

// Outstanding lists live allocations ordered by address.
func (a *Linear) Outstanding() []Span {
	out := make([]Span, 0, len(a.live))
	for p, n := range a.live {
		out = append(out, Span{Ptr: p, Size: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ptr < out[j].Ptr })
	return out
}

// Size returns the current memory size in bytes.
func (a *Linear) Size() uint32 {
	return uint32(len(a.mem))
}

func (a *Linear) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(a.mem)) {
		return errors.MemoryOutOfBounds(offset, length, uint32(len(a.mem)))
	}
	return nil
}

// Read returns a view of length bytes at offset. The slice aliases arena
// memory.
func (a *Linear) Read(offset, length uint32) ([]byte, error) {
	if err := a.bounds(offset, length); err != nil {
		return nil, err
	}
	return a.mem[offset : offset+length : offset+length], nil
}

// Write copies data into memory at offset.
func (a *Linear) Write(offset uint32, data []byte) error {
	if err := a.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(a.mem[offset:], data)
	return nil
}

func (a *Linear) ReadU8(offset uint32) (uint8, error) {
	if err := a.bounds(offset, 1); err != nil {
		return 0, err
	}
	return a.mem[offset], nil
}

func (a *Linear) ReadU16(offset uint32) (uint16, error) {
	if err := a.bounds(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(a.mem[offset:]), nil
}

func (a *Linear) ReadU32(offset uint32) (uint32, error) {
	if err := a.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.mem[offset:]), nil
}

func (a *Linear) ReadU64(offset uint32) (uint64, error) {
	if err := a.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(a.mem[offset:]), nil
}

func (a *Linear) WriteU8(offset uint32, value uint8) error {
	if err := a.bounds(offset, 1); err != nil {
		return err
	}
	a.mem[offset] = value
	return nil
}

func (a *Linear) WriteU16(offset uint32, value uint16) error {
	if err := a.bounds(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(a.mem[offset:], value)
	return nil
}

func (a *Linear) WriteU32(offset uint32, value uint32) error {
	if err := a.bounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.mem[offset:], value)
	return nil
}

func (a *Linear) WriteU64(offset uint32, value uint64) error {
	if err := a.bounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.mem[offset:], value)
	return nil
}

func roundUp(n uint64) uint64 {
	return (n + granule - 1) &^ (granule - 1)
}
