package transcoder

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/transcoder/internal/abi"
	"github.com/wippyai/wasm-cabi/transcoder/internal/layout"
)

type LayoutInfo = layout.Info

type LayoutCalculator struct {
	calc *layout.Calculator
}

func NewLayoutCalculator() *LayoutCalculator {
	return &LayoutCalculator{
		calc: layout.NewCalculator(),
	}
}

// Calculate returns the canonical memory layout of t.
func (lc *LayoutCalculator) Calculate(t wit.Type) LayoutInfo {
	return lc.calc.Calculate(t)
}

// minBlockSize keeps a non-empty block at least two i32 words wide.
const minBlockSize = 8

// BlockLayout places flat words in an indirect result block. Each word is
// stored at its core width and aligned to it.
type BlockLayout struct {
	Types   []api.ValueType
	Offsets []uint32
	Size    uint32
	Align   uint32
}

// NewBlockLayout lays out a block for the given flat core types.
func NewBlockLayout(flat []api.ValueType) BlockLayout {
	bl := BlockLayout{
		Types:   flat,
		Offsets: make([]uint32, len(flat)),
		Align:   4,
	}
	if len(flat) == 0 {
		bl.Align = 1
		return bl
	}
	offset := uint32(0)
	for i, t := range flat {
		w := abi.CoreWidth(t)
		offset = abi.AlignTo(offset, w)
		bl.Offsets[i] = offset
		offset += w
		if w > bl.Align {
			bl.Align = w
		}
	}
	if offset < minBlockSize {
		offset = minBlockSize
	}
	bl.Size = abi.AlignTo(offset, bl.Align)
	return bl
}

// Write stores words at addr.
func (bl BlockLayout) Write(mem Memory, addr uint32, words []uint64) error {
	if len(words) != len(bl.Types) {
		return errors.Arity(errors.PhaseLower, "block", len(words), len(bl.Types))
	}
	for i, t := range bl.Types {
		var err error
		if abi.CoreWidth(t) == 8 {
			err = mem.WriteU64(addr+bl.Offsets[i], words[i])
		} else {
			err = mem.WriteU32(addr+bl.Offsets[i], api.DecodeU32(words[i]))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Read loads the block at addr, appending its words to dst.
func (bl BlockLayout) Read(mem Memory, addr uint32, dst []uint64) ([]uint64, error) {
	for i, t := range bl.Types {
		off := addr + bl.Offsets[i]
		if abi.CoreWidth(t) == 8 {
			w, err := mem.ReadU64(off)
			if err != nil {
				return dst, err
			}
			dst = append(dst, w)
			continue
		}
		w, err := mem.ReadU32(off)
		if err != nil {
			return dst, err
		}
		dst = append(dst, api.EncodeU32(w))
	}
	return dst, nil
}
