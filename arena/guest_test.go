package arena

import (
	"context"
	goerrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/internal/wasmtest"
)

func newTestGuest(t *testing.T, policy Policy) (*Guest, api.Module) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })

	mod, err := r.Instantiate(ctx, wasmtest.ReallocModule())
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	g, err := NewGuest(mod, policy)
	if err != nil {
		t.Fatalf("NewGuest: %v", err)
	}
	g.SetContext(ctx)
	return g, mod
}

func TestNewGuest_MissingRealloc(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	b := wasmtest.NewBuilder()
	b.Memory(1, "memory")
	mod, err := r.Instantiate(ctx, b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewGuest(mod, PolicyAbort)
	if !goerrors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestGuest_AllocWrite(t *testing.T) {
	g, mod := newTestGuest(t, PolicyPropagate)

	p, err := g.Alloc(5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p != wasmtest.HeapBase {
		t.Errorf("ptr = %d, want %d", p, wasmtest.HeapBase)
	}
	if err := g.Write(p, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	data, ok := mod.Memory().Read(p, 5)
	if !ok || string(data) != "hello" {
		t.Errorf("guest memory = %q", data)
	}
	if heap := mod.ExportedGlobal("heap").Get(); api.DecodeU32(heap) != p+5 {
		t.Errorf("heap = %d, want %d", heap, p+5)
	}
}

func TestGuest_Grow(t *testing.T) {
	g, _ := newTestGuest(t, PolicyPropagate)

	p := g.Grow(Null, 0, 1, 3)
	if p == Null {
		t.Fatal("Grow(Null) failed")
	}
	_ = g.Write(p, []byte("abc"))

	q := g.Grow(p, 3, 1, 6)
	if q == Null {
		t.Fatal("Grow failed")
	}
	data, _ := g.Read(q, 3)
	if string(data) != "abc" {
		t.Errorf("contents after grow = %q", data)
	}

	if r := g.Grow(q, 6, 1, 1<<20); r != Null {
		t.Errorf("oversized Grow = %d, want Null", r)
	}
	data, _ = g.Read(q, 3)
	if string(data) != "abc" {
		t.Error("original changed after failed grow")
	}
}

func TestGuest_Exhaustion(t *testing.T) {
	t.Run("propagate", func(t *testing.T) {
		g, _ := newTestGuest(t, PolicyPropagate)
		p, err := g.Alloc(1<<20, 8)
		if p != Null || !goerrors.Is(err, &errors.Error{Kind: errors.KindAllocation}) {
			t.Errorf("Alloc = %d, %v", p, err)
		}
	})

	t.Run("abort", func(t *testing.T) {
		g, _ := newTestGuest(t, PolicyAbort)
		defer func() {
			if _, ok := recover().(*errors.Error); !ok {
				t.Error("expected panic with *errors.Error")
			}
		}()
		_, _ = g.Alloc(1<<20, 8)
	})
}

func TestGuest_FreeWithoutCabiFree(t *testing.T) {
	g, _ := newTestGuest(t, PolicyPropagate)
	p, _ := g.Alloc(16, 8)
	g.Free(p, 16, 8)
	g.Free(Null, 16, 8)
	g.Free(p, 0, 8)
}

func TestGuest_Bounds(t *testing.T) {
	g, _ := newTestGuest(t, PolicyPropagate)
	if _, err := g.Read(g.Size()-2, 4); !goerrors.Is(err, &errors.Error{Phase: errors.PhaseMemory, Kind: errors.KindOutOfBounds}) {
		t.Errorf("err = %v, want memory out_of_bounds", err)
	}
}
