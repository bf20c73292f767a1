package export

import (
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-cabi/arena"
	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/transcoder"
)

// Export is a compiled call adapter and its post-return hook.
//
// Call runs Decode, Invoke, Encode and Return for one call. The block it
// returns and every buffer the block refers to belong to the caller until
// PostReturn is called with that block.
type Export struct {
	fn        Func
	params    []*transcoder.CompiledType
	result    *transcoder.CompiledType
	flat      []api.ValueType
	block     transcoder.BlockLayout
	name      string
	flatCount int
}

// Compile resolves the types of fn.
func Compile(fn Func) (*Export, error) {
	name := fn.QualifiedName()
	if fn.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseRoute, "function name is empty")
	}
	if fn.Handler == nil {
		return nil, errors.Registration(errors.PhaseRoute, fn.Interface, fn.Name,
			errors.NilPointer(errors.PhaseRoute, nil, "Handler"))
	}

	e := &Export{
		fn:     fn,
		name:   name,
		params: make([]*transcoder.CompiledType, len(fn.Params)),
	}
	for i, p := range fn.Params {
		ct, err := transcoder.Compile(p.Type)
		if err != nil {
			return nil, errors.Registration(errors.PhaseRoute, fn.Interface, fn.Name, err)
		}
		e.params[i] = ct
		e.flat = append(e.flat, ct.Flat...)
	}
	e.flatCount = len(e.flat)

	if fn.Result != nil {
		ct, err := transcoder.Compile(fn.Result)
		if err != nil {
			return nil, errors.Registration(errors.PhaseRoute, fn.Interface, fn.Name, err)
		}
		e.result = ct
		e.block = transcoder.NewBlockLayout(ct.Flat)
	}
	return e, nil
}

// Name returns the qualified name.
func (e *Export) Name() string {
	return e.name
}

// Func returns the function description.
func (e *Export) Func() Func {
	return e.fn
}

// ParamTypes returns the flat core types of the parameters.
func (e *Export) ParamTypes() []api.ValueType {
	return e.flat
}

// Params returns the compiled parameter types.
func (e *Export) Params() []*transcoder.CompiledType {
	return e.params
}

// Result returns the compiled result type, or nil.
func (e *Export) Result() *transcoder.CompiledType {
	return e.result
}

// Block returns the layout of the result block.
func (e *Export) Block() transcoder.BlockLayout {
	return e.block
}

// Call lifts flat, invokes the handler, and lowers its result into a block
// allocated from a. Functions without a result return Null.
//
// If encoding fails after some buffers were allocated, they are released
// before the error is returned. Under the abort policy an exhausted arena
// panics instead.
func (e *Export) Call(a arena.Arena, flat []uint64) (uint32, error) {
	if len(flat) != e.flatCount {
		return arena.Null, errors.Arity(errors.PhaseCall, e.name, len(flat), e.flatCount)
	}

	args, err := transcoder.Decoder{}.LiftAll(e.params, flat, a)
	if err != nil {
		return arena.Null, err
	}

	result := e.fn.Handler(args)
	if e.result == nil {
		Logger().Debug("call", zap.String("export", e.name))
		return arena.Null, nil
	}

	allocs := transcoder.NewAllocationList()
	defer allocs.Release()
	buf := transcoder.GetFlat()
	defer transcoder.PutFlat(buf)

	words, err := transcoder.Encoder{}.Lower(e.result, result, (*buf)[:0], a, a, allocs)
	*buf = words
	if err != nil {
		allocs.Free(a)
		return arena.Null, err
	}

	block, err := a.Alloc(e.block.Size, e.block.Align)
	if err != nil {
		allocs.Free(a)
		return arena.Null, errors.New(errors.PhaseCall, errors.KindAllocation).
			Cause(err).
			Detail("result block for %s", e.name).
			Build()
	}
	if err := e.block.Write(a, block, words); err != nil {
		a.Free(block, e.block.Size, e.block.Align)
		allocs.Free(a)
		return arena.Null, err
	}

	Logger().Debug("call",
		zap.String("export", e.name),
		zap.Uint32("block", block),
		zap.Int("buffers", allocs.Count()))
	return block, nil
}

// PostReturn releases every buffer referenced by block and then block
// itself. It must run exactly once per block returned by Call.
func (e *Export) PostReturn(a arena.Arena, block uint32) error {
	if e.result == nil || block == arena.Null {
		return nil
	}

	buf := transcoder.GetFlat()
	defer transcoder.PutFlat(buf)

	words, err := e.block.Read(a, block, (*buf)[:0])
	*buf = words
	if err != nil {
		return errors.Wrap(errors.PhasePostReturn, errors.KindOutOfBounds, err, "read result block of "+e.name)
	}
	if err := transcoder.Release(e.result, words, a, a); err != nil {
		return err
	}
	a.Free(block, e.block.Size, e.block.Align)

	Logger().Debug("post-return", zap.String("export", e.name), zap.Uint32("block", block))
	return nil
}

// ReadResult lifts the value stored in block. Strings and lists in the
// result are views that stay valid until PostReturn.
func (e *Export) ReadResult(mem transcoder.Memory, block uint32) (transcoder.Value, error) {
	if e.result == nil {
		return nil, nil
	}
	words, err := e.block.Read(mem, block, make([]uint64, 0, len(e.block.Types)))
	if err != nil {
		return nil, err
	}
	v, _, err := transcoder.Decoder{}.Lift(e.result, words, mem)
	return v, err
}
