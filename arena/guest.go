package arena

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cabi/errors"
)

// Guest is an arena backed by a wazero module's exported memory and its
// cabi_realloc. When the module also exports cabi_free it is used for
// releases; otherwise a release is a realloc to zero bytes.
//
// Guest is NOT safe for concurrent use: calls share one stack buffer.
type Guest struct {
	*WazeroMemory
	ctx     context.Context
	realloc api.Function
	free    api.Function
	name    string
	stack   [4]uint64
	policy  Policy
}

// NewGuest binds an arena to mod.
func NewGuest(mod api.Module, policy Policy) (*Guest, error) {
	if mod == nil {
		return nil, errors.NilPointer(errors.PhaseAlloc, nil, "api.Module")
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseAlloc, "memory of module", mod.Name())
	}
	realloc := mod.ExportedFunction(CabiRealloc)
	if realloc == nil {
		return nil, errors.NotFound(errors.PhaseAlloc, "export", CabiRealloc)
	}
	return &Guest{
		WazeroMemory: WrapMemory(mem),
		ctx:          context.Background(),
		realloc:      realloc,
		free:         mod.ExportedFunction(CabiFree),
		name:         mod.Name(),
		policy:       policy,
	}, nil
}

// SetContext sets the context used for calls into the guest.
func (g *Guest) SetContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.ctx = ctx
}

// Policy returns the exhaustion policy.
func (g *Guest) Policy() Policy {
	return g.policy
}

func (g *Guest) callRealloc(ptr, oldSize, align, newSize uint32) (uint32, error) {
	g.stack[0] = uint64(ptr)
	g.stack[1] = uint64(oldSize)
	g.stack[2] = uint64(align)
	g.stack[3] = uint64(newSize)
	if err := g.realloc.CallWithStack(g.ctx, g.stack[:4]); err != nil {
		return Null, err
	}
	return api.DecodeU32(g.stack[0]), nil
}

// Alloc calls cabi_realloc(0, 0, align, size).
func (g *Guest) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return zeroSized(align), nil
	}
	ptr, err := g.callRealloc(Null, 0, align, size)
	if err == nil && ptr != Null {
		return ptr, nil
	}
	e := errors.AllocationFailed(errors.PhaseAlloc, size, align)
	e.Cause = err
	return exhausted(g.policy, e,
		zap.String("module", g.name),
		zap.Uint32("size", size),
		zap.Uint32("align", align))
}

// Grow calls cabi_realloc. A trap or a null result reports Null.
func (g *Guest) Grow(ptr, oldSize, align, newSize uint32) uint32 {
	if newSize == 0 {
		g.Free(ptr, oldSize, align)
		return zeroSized(align)
	}
	if oldSize == 0 {
		ptr = Null
	}
	p, err := g.callRealloc(ptr, oldSize, align, newSize)
	if err != nil {
		Logger().Warn("Grow: cabi_realloc trapped",
			zap.String("module", g.name),
			zap.Uint32("ptr", ptr),
			zap.Uint32("new_size", newSize),
			zap.Error(err))
		return Null
	}
	return p
}

// Free releases a buffer through cabi_free, or cabi_realloc to zero bytes
// when the module has no cabi_free.
func (g *Guest) Free(ptr, size, align uint32) {
	if ptr == Null || size == 0 {
		return
	}
	if g.free == nil {
		if _, err := g.callRealloc(ptr, size, align, 0); err != nil {
			Logger().Warn("Free: failed to call cabi_realloc for deallocation",
				zap.Uint32("ptr", ptr),
				zap.Uint32("size", size),
				zap.Error(err))
		}
		return
	}
	g.stack[0] = uint64(ptr)
	g.stack[1] = uint64(size)
	g.stack[2] = uint64(align)
	if err := g.free.CallWithStack(g.ctx, g.stack[:3]); err != nil {
		Logger().Warn("Free: failed to call cabi_free",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}
