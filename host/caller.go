package host

import (
	"io"

	"go.uber.org/multierr"

	"github.com/wippyai/wasm-cabi/arena"
	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/export"
	"github.com/wippyai/wasm-cabi/transcoder"
)

// Caller invokes routed exports from the caller side of the boundary.
//
// Parameters are lowered into caller-owned buffers allocated through Grow,
// so exhaustion while lowering is an error, never an abort. The buffers
// are released once the export returns.
//
// A Caller is not safe for concurrent use unless its arena is.
type Caller struct {
	table *export.Table
	arena arena.Arena
}

func New(table *export.Table, a arena.Arena) *Caller {
	return &Caller{table: table, arena: a}
}

// Call lowers args, runs the named export and returns its result. The
// result must be closed to run post-return.
func (c *Caller) Call(name string, args ...transcoder.Value) (*Result, error) {
	e, ok := c.table.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRoute, "export", name)
	}
	if len(args) != len(e.Params()) {
		return nil, errors.Arity(errors.PhaseCall, name, len(args), len(e.Params()))
	}

	alloc := growAllocator{c.arena}
	allocs := transcoder.NewAllocationList()
	defer allocs.FreeAndRelease(alloc)

	buf := transcoder.GetFlat()
	defer transcoder.PutFlat(buf)

	flat, err := transcoder.Encoder{ReuseViews: true}.LowerAll(e.Params(), args, (*buf)[:0], c.arena, alloc, allocs)
	*buf = flat
	if err != nil {
		return nil, err
	}

	block, err := e.Call(c.arena, flat)
	if err != nil {
		return nil, err
	}
	return &Result{export: e, arena: c.arena, block: block}, nil
}

// Invoke calls the named export, hands the result to consume and then
// closes it. Errors from every step are combined.
func (c *Caller) Invoke(name string, consume func(transcoder.Value) error, args ...transcoder.Value) error {
	res, err := c.Call(name, args...)
	if err != nil {
		return err
	}
	v, err := res.Value()
	if err == nil && consume != nil {
		err = consume(v)
	}
	return multierr.Append(err, res.Close())
}

// CallNative is Invoke for plain Go values. Arguments are converted with
// transcoder.ValueOf and the result is copied out with transcoder.Native.
func (c *Caller) CallNative(name string, args ...any) (any, error) {
	e, ok := c.table.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRoute, "export", name)
	}
	params := e.Params()
	if len(args) != len(params) {
		return nil, errors.Arity(errors.PhaseCall, name, len(args), len(params))
	}

	vals := make([]transcoder.Value, len(args))
	for i, arg := range args {
		v, err := transcoder.ValueOf(params[i], arg)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	var out any
	err := c.Invoke(name, func(v transcoder.Value) error {
		if e.Result() == nil {
			return nil
		}
		var err error
		out, err = transcoder.Native(e.Result(), v)
		return err
	}, vals...)
	return out, err
}

// Stream copies r into a caller-owned arena buffer and returns a string
// view over it. Passing the view to Call does not copy it again. The
// caller releases the buffer once the calls using it are done.
func (c *Caller) Stream(r io.Reader) (transcoder.String, arena.Owned, error) {
	w := arena.NewWriter(c.arena, 1)
	if _, err := io.Copy(w, r); err != nil {
		w.Abort()
		return transcoder.String{}, arena.Owned{}, err
	}
	owned, err := w.Finish()
	if err != nil {
		return transcoder.String{}, arena.Owned{}, err
	}
	data, err := owned.Bytes(c.arena)
	if err != nil {
		owned.Release(c.arena)
		return transcoder.String{}, arena.Owned{}, err
	}
	return transcoder.StringView(owned.View(), data), owned, nil
}

// growAllocator allocates through Grow so failures are reported instead of
// aborting.
type growAllocator struct {
	a arena.Arena
}

func (g growAllocator) Alloc(size, align uint32) (uint32, error) {
	ptr := g.a.Grow(arena.Null, 0, align, size)
	if ptr == arena.Null {
		return arena.Null, errors.AllocationFailed(errors.PhaseAlloc, size, align)
	}
	return ptr, nil
}

func (g growAllocator) Free(ptr, size, align uint32) {
	g.a.Free(ptr, size, align)
}
