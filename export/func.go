package export

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-cabi/transcoder"
)

// Handler is the business function behind an export. Arguments are views
// into the arena and are only valid until the handler returns; a result
// that refers to them is copied before the call completes.
type Handler func(args []transcoder.Value) transcoder.Value

// Param is a named function parameter.
type Param struct {
	Type wit.Type
	Name string
}

// Func describes one exported function. A nil Result means the function
// returns nothing.
type Func struct {
	Result    wit.Type
	Handler   Handler
	Interface string
	Name      string
	Params    []Param
}

// QualifiedName returns the routed name "iface#fn".
func (f Func) QualifiedName() string {
	return QualifiedName(f.Interface, f.Name)
}

// With returns a copy of f bound to h.
func (f Func) With(h Handler) Func {
	f.Handler = h
	return f
}
