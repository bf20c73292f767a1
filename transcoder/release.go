package transcoder

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cabi/errors"
)

// Release frees every string and list payload referenced by a flat value
// of type ct, nested list elements before the lists holding them.
// Pure types own no buffers and are skipped.
func Release(ct *CompiledType, flat []uint64, mem Memory, alloc Allocator) error {
	if ct.IsPure() {
		return nil
	}
	_, err := release(ct, flat, mem, alloc)
	return err
}

// ReleaseAll releases consecutive flat values, one per type.
func ReleaseAll(cts []*CompiledType, flat []uint64, mem Memory, alloc Allocator) error {
	offset := 0
	for _, ct := range cts {
		if offset+ct.FlatCount() > len(flat) {
			return errors.InvalidData(errors.PhasePostReturn, nil, "flat words shorter than types")
		}
		if !ct.IsPure() {
			if _, err := release(ct, flat[offset:], mem, alloc); err != nil {
				return err
			}
		}
		offset += ct.FlatCount()
	}
	return nil
}

func release(ct *CompiledType, flat []uint64, mem Memory, alloc Allocator) (int, error) {
	n := ct.FlatCount()
	if len(flat) < n {
		return 0, errors.InvalidData(errors.PhasePostReturn, nil, "flat words shorter than "+ct.Name)
	}

	switch ct.Kind {
	case KindString:
		freeString(api.DecodeU32(flat[0]), api.DecodeU32(flat[1]), alloc)

	case KindList:
		if err := freeList(ct, api.DecodeU32(flat[0]), api.DecodeU32(flat[1]), mem, alloc); err != nil {
			return 0, err
		}

	case KindRecord, KindTuple:
		offset := 0
		for _, f := range ct.Fields {
			used := f.Type.FlatCount()
			if !f.Type.IsPure() {
				if _, err := release(f.Type, flat[offset:], mem, alloc); err != nil {
					return 0, err
				}
			}
			offset += used
		}

	case KindVariant, KindOption, KindResult:
		disc := api.DecodeU32(flat[0])
		if int(disc) >= len(ct.Cases) {
			return 0, errors.InvalidDiscriminant(errors.PhasePostReturn, nil, disc, uint32(len(ct.Cases)-1))
		}
		if c := ct.Cases[disc]; c.Type != nil && !c.Type.IsPure() {
			if _, err := release(c.Type, flat[1:], mem, alloc); err != nil {
				return 0, err
			}
		}
	}
	return n, nil
}

// releaseAt frees the buffers of a value stored at addr.
func releaseAt(ct *CompiledType, addr uint32, mem Memory, alloc Allocator) error {
	switch ct.Kind {
	case KindString, KindList:
		ptr, err := mem.ReadU32(addr)
		if err != nil {
			return err
		}
		n, err := mem.ReadU32(addr + 4)
		if err != nil {
			return err
		}
		if ct.Kind == KindString {
			freeString(ptr, n, alloc)
			return nil
		}
		return freeList(ct, ptr, n, mem, alloc)

	case KindRecord, KindTuple:
		for _, f := range ct.Fields {
			if f.Type.IsPure() {
				continue
			}
			if err := releaseAt(f.Type, addr+f.WitOffset, mem, alloc); err != nil {
				return err
			}
		}

	case KindVariant, KindOption, KindResult:
		disc, err := loadDisc(ct.DiscSize, addr, mem)
		if err != nil {
			return err
		}
		if int(disc) >= len(ct.Cases) {
			return errors.InvalidDiscriminant(errors.PhasePostReturn, nil, disc, uint32(len(ct.Cases)-1))
		}
		if c := ct.Cases[disc]; c.Type != nil && !c.Type.IsPure() {
			return releaseAt(c.Type, addr+ct.PayloadOffset, mem, alloc)
		}
	}
	return nil
}

func freeString(ptr, n uint32, alloc Allocator) {
	if n == 0 || ptr == 0 {
		return
	}
	alloc.Free(ptr, n, 1)
}

func freeList(ct *CompiledType, ptr, count uint32, mem Memory, alloc Allocator) error {
	if count == 0 || ptr == 0 {
		return nil
	}
	elem := ct.ElemType
	if !elem.IsPure() {
		for i := uint32(0); i < count; i++ {
			if err := releaseAt(elem, ptr+i*elem.WitSize, mem, alloc); err != nil {
				return err
			}
		}
	}
	if size := count * elem.WitSize; size > 0 {
		alloc.Free(ptr, size, elem.WitAlign)
	}
	return nil
}
