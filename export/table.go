package export

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-cabi/errors"
)

// Role tells which half of an export a core symbol reaches.
type Role int

const (
	RoleCall Role = iota
	RolePostReturn
)

func (r Role) String() string {
	switch r {
	case RoleCall:
		return "call"
	case RolePostReturn:
		return "post-return"
	default:
		return "unknown"
	}
}

// Table routes qualified names to compiled exports. Registration is
// explicit and happens before calls start; lookups are safe for
// concurrent use.
type Table struct {
	exports map[string]*Export
	order   []string
	mu      sync.RWMutex
}

func NewTable() *Table {
	return &Table{exports: make(map[string]*Export)}
}

// Register compiles fn and adds it under its qualified name.
func (t *Table) Register(fn Func) (*Export, error) {
	e, err := Compile(fn)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.exports[e.name]; dup {
		return nil, errors.Registration(errors.PhaseRoute, fn.Interface, fn.Name,
			errors.InvalidInput(errors.PhaseRoute, "already registered"))
	}
	t.exports[e.name] = e
	t.order = append(t.order, e.name)

	Logger().Debug("export registered",
		zap.String("name", e.name),
		zap.Int("params", len(e.flat)),
		zap.Bool("result", e.result != nil))
	return e, nil
}

// MustRegister is like Register but panics on error.
func (t *Table) MustRegister(fn Func) *Export {
	e, err := t.Register(fn)
	if err != nil {
		panic(err)
	}
	return e
}

// Lookup returns the export registered under a qualified name.
func (t *Table) Lookup(name string) (*Export, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.exports[name]
	return e, ok
}

// Resolve maps a core symbol to its export and role: a qualified name
// reaches the call adapter, "cabi_post_" plus a qualified name reaches the
// post-return hook.
func (t *Table) Resolve(symbol string) (*Export, Role, error) {
	if e, ok := t.Lookup(symbol); ok {
		return e, RoleCall, nil
	}
	if name, ok := IsPostReturnSymbol(symbol); ok {
		if e, ok := t.Lookup(name); ok {
			return e, RolePostReturn, nil
		}
	}
	return nil, RoleCall, errors.NotFound(errors.PhaseRoute, "export", symbol)
}

// Exports returns every export in registration order.
func (t *Table) Exports() []*Export {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Export, len(t.order))
	for i, name := range t.order {
		out[i] = t.exports[name]
	}
	return out
}

// Len returns the number of registered exports.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
