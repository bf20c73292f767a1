package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cabi/arena"
	cabierrors "github.com/wippyai/wasm-cabi/errors"
	"github.com/wippyai/wasm-cabi/export"
	"github.com/wippyai/wasm-cabi/internal/wasmtest"
	"github.com/wippyai/wasm-cabi/transcoder"
)

var i32 = api.ValueTypeI32

func newTestTable(t *testing.T) *export.Table {
	t.Helper()
	funcs, err := export.ParseFuncs("foo", `
		concat: func(left: string, right: string) -> string;
		add: func(a: u8, b: u8) -> u8;
		broken: func(n: u32) -> u32;
	`)
	if err != nil {
		t.Fatalf("ParseFuncs failed: %v", err)
	}
	handlers := map[string]export.Handler{
		"concat": func(args []transcoder.Value) transcoder.Value {
			return transcoder.NewString(args[0].(transcoder.String).String() + args[1].(transcoder.String).String())
		},
		"add": func(args []transcoder.Value) transcoder.Value {
			return args[0].(transcoder.U8) + args[1].(transcoder.U8)
		},
		"broken": func([]transcoder.Value) transcoder.Value {
			return transcoder.NewString("not a u32")
		},
	}
	table := export.NewTable()
	for _, fn := range funcs {
		table.MustRegister(fn.With(handlers[fn.Name]))
	}
	return table
}

func newTestRuntime(t *testing.T) (context.Context, wazero.Runtime) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	return ctx, r
}

// countingArena tracks the allocations made through it in live.
type countingArena struct {
	arena.Arena
	live map[uint32]uint32
}

func (c countingArena) Alloc(size, align uint32) (uint32, error) {
	ptr, err := c.Arena.Alloc(size, align)
	if err == nil && size > 0 {
		c.live[ptr] = size
	}
	return ptr, err
}

func (c countingArena) Free(ptr, size, align uint32) {
	if size > 0 {
		delete(c.live, ptr)
	}
	c.Arena.Free(ptr, size, align)
}

// countingSource hands out guest arenas that record into one live map.
func countingSource(guests *GuestArenas, live map[uint32]uint32) ArenaSource {
	return ArenaSourceFunc(func(ctx context.Context, mod api.Module) (arena.Arena, error) {
		a, err := guests.Arena(ctx, mod)
		if err != nil {
			return nil, err
		}
		return countingArena{Arena: a, live: live}, nil
	})
}

func newGuest(t *testing.T, ctx context.Context, r wazero.Runtime, fn string, params ...api.ValueType) api.Module {
	t.Helper()
	guest, err := r.Instantiate(ctx, wasmtest.CallerModule(DefaultModuleName, fn, params))
	if err != nil {
		t.Fatalf("guest Instantiate failed: %v", err)
	}
	return guest
}

func TestInstantiate_GuestCallsConcat(t *testing.T) {
	ctx, r := newTestRuntime(t)
	live := map[uint32]uint32{}
	src := countingSource(CallerArena(arena.PolicyPropagate), live)
	if _, err := Instantiate(ctx, r, newTestTable(t), src, DefaultConfig()); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	guest := newGuest(t, ctx, r, "foo#concat", i32, i32, i32, i32)

	mem := guest.Memory()
	if !mem.Write(16, []byte("foo")) || !mem.Write(32, []byte("bar")) {
		t.Fatal("write arguments failed")
	}

	res, err := guest.ExportedFunction("call").Call(ctx, 16, 3, 32, 3)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	block := api.DecodeU32(res[0])
	if block < wasmtest.HeapBase {
		t.Fatalf("block = %d, want an address from cabi_realloc", block)
	}

	ptr, _ := mem.ReadUint32Le(block)
	n, _ := mem.ReadUint32Le(block + 4)
	got, ok := mem.Read(ptr, n)
	if !ok {
		t.Fatalf("string (%d, %d) out of bounds", ptr, n)
	}
	if string(got) != "foobar" {
		t.Errorf("result = %q, want %q", got, "foobar")
	}
	if len(live) != 2 {
		t.Errorf("live = %v before post-return, want the block and the string", live)
	}

	if _, err := guest.ExportedFunction("post").Call(ctx, uint64(block)); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("live = %v after post-return, want none", live)
	}
}

func TestInstantiate_GuestCallsAdd(t *testing.T) {
	ctx, r := newTestRuntime(t)
	live := map[uint32]uint32{}
	src := countingSource(CallerArena(arena.PolicyPropagate), live)

	cfg := Config{ModuleName: "marshal"}
	mod, err := Instantiate(ctx, r, newTestTable(t), src, cfg)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if mod.Name() != "marshal" {
		t.Errorf("module name = %q, want marshal", mod.Name())
	}

	defs := mod.ExportedFunctionDefinitions()
	def, ok := defs["foo#add"]
	if !ok {
		t.Fatal("foo#add not exported")
	}
	if got := def.ParamTypes(); len(got) != 2 || got[0] != i32 || got[1] != i32 {
		t.Errorf("params = %v, want (i32, i32)", got)
	}
	if got := def.ResultTypes(); len(got) != 1 || got[0] != i32 {
		t.Errorf("results = %v, want (i32)", got)
	}
	post, ok := defs["cabi_post_foo#add"]
	if !ok {
		t.Fatal("cabi_post_foo#add not exported")
	}
	if got := post.ParamTypes(); len(got) != 1 || len(post.ResultTypes()) != 0 {
		t.Errorf("post-return signature = %v -> %v, want (i32)", got, post.ResultTypes())
	}

	guest, err := r.Instantiate(ctx, wasmtest.CallerModule("marshal", "foo#add", []api.ValueType{i32, i32}))
	if err != nil {
		t.Fatalf("guest Instantiate failed: %v", err)
	}
	res, err := guest.ExportedFunction("call").Call(ctx, 200, 100)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	block := api.DecodeU32(res[0])
	v, ok := guest.Memory().ReadByte(block)
	if !ok {
		t.Fatalf("block %d out of bounds", block)
	}
	if v != 44 {
		t.Errorf("add(200, 100) = %d, want 44", v)
	}
	if len(live) != 1 {
		t.Errorf("live = %v before post-return, want the block", live)
	}

	if _, err := guest.ExportedFunction("post").Call(ctx, uint64(block)); err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("live = %v after post-return, want none", live)
	}
}

func TestInstantiate_FailedCallTraps(t *testing.T) {
	ctx, r := newTestRuntime(t)
	live := map[uint32]uint32{}
	src := countingSource(CallerArena(arena.PolicyPropagate), live)
	if _, err := Instantiate(ctx, r, newTestTable(t), src, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	guest := newGuest(t, ctx, r, "foo#broken", i32)

	if _, err := guest.ExportedFunction("call").Call(ctx, 1); err == nil {
		t.Fatal("expected trap")
	}
	if len(live) != 0 {
		t.Errorf("live = %v after failed call, want none", live)
	}
}

func TestInstantiate_SourceError(t *testing.T) {
	ctx, r := newTestRuntime(t)
	src := ArenaSourceFunc(func(context.Context, api.Module) (arena.Arena, error) {
		return nil, errors.New("no arena")
	})
	if _, err := Instantiate(ctx, r, newTestTable(t), src, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	guest := newGuest(t, ctx, r, "foo#add", i32, i32)

	if _, err := guest.ExportedFunction("call").Call(ctx, 1, 2); err == nil {
		t.Error("expected trap when the arena source fails")
	}
	if _, err := guest.ExportedFunction("post").Call(ctx, wasmtest.HeapBase); err == nil {
		t.Error("expected post-return trap when the arena source fails")
	}
}

func TestInstantiate_NilArguments(t *testing.T) {
	ctx, r := newTestRuntime(t)
	table := export.NewTable()
	src := CallerArena(arena.PolicyAbort)

	tests := []struct {
		name  string
		r     wazero.Runtime
		table *export.Table
		src   ArenaSource
	}{
		{"runtime", nil, table, src},
		{"table", r, nil, src},
		{"source", r, table, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Instantiate(ctx, tt.r, tt.table, tt.src, DefaultConfig())
			if !errors.Is(err, &cabierrors.Error{Kind: cabierrors.KindNilPointer}) {
				t.Errorf("err = %v, want nil_pointer", err)
			}
		})
	}
}

func TestGuestArenas_Caches(t *testing.T) {
	ctx, r := newTestRuntime(t)
	guest, err := r.Instantiate(ctx, wasmtest.ReallocModule())
	if err != nil {
		t.Fatal(err)
	}

	src := CallerArena(arena.PolicyPropagate)
	a1, err := src.Arena(ctx, guest)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := src.Arena(ctx, guest)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("expected the same arena for the same module")
	}
	if src.Len() != 1 {
		t.Errorf("Len = %d, want 1", src.Len())
	}
}

func TestGuestArenas_ClosedModules(t *testing.T) {
	ctx, r := newTestRuntime(t)
	guests := CallerArena(arena.PolicyPropagate)
	if _, err := Instantiate(ctx, r, newTestTable(t), guests, DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	bin := wasmtest.CallerModule(DefaultModuleName, "foo#add", []api.ValueType{i32, i32})
	cfg := wazero.NewModuleConfig().WithName("guest")

	call := func(guest api.Module) {
		t.Helper()
		res, err := guest.ExportedFunction("call").Call(ctx, 2, 3)
		if err != nil {
			t.Fatalf("call failed: %v", err)
		}
		if _, err := guest.ExportedFunction("post").Call(ctx, res[0]); err != nil {
			t.Fatalf("post failed: %v", err)
		}
	}

	first, err := r.InstantiateWithConfig(ctx, bin, cfg)
	if err != nil {
		t.Fatal(err)
	}
	call(first)
	if guests.Len() != 1 {
		t.Fatalf("Len = %d after first guest, want 1", guests.Len())
	}
	if err := first.Close(ctx); err != nil {
		t.Fatal(err)
	}

	second, err := r.InstantiateWithConfig(ctx, bin, cfg)
	if err != nil {
		t.Fatalf("re-instantiate failed: %v", err)
	}
	call(second)
	if guests.Len() != 1 {
		t.Errorf("Len = %d after re-instantiation, want the closed guest evicted", guests.Len())
	}

	guests.Forget(second)
	if guests.Len() != 0 {
		t.Errorf("Len = %d after Forget, want 0", guests.Len())
	}
	call(second)
	if guests.Len() != 1 {
		t.Errorf("Len = %d after calling again, want 1", guests.Len())
	}
}

func TestGuestArenas_NoRealloc(t *testing.T) {
	ctx, r := newTestRuntime(t)
	b := wasmtest.NewBuilder()
	b.Memory(1, "memory")
	guest, err := r.Instantiate(ctx, b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	src := CallerArena(arena.PolicyAbort)
	if _, err := src.Arena(ctx, guest); err == nil {
		t.Error("expected error for module without cabi_realloc")
	}
	if src.Len() != 0 {
		t.Errorf("Len = %d, want nothing cached for a failed module", src.Len())
	}
}

func TestConfig_ModuleName(t *testing.T) {
	if got := (Config{}).moduleName(); got != DefaultModuleName {
		t.Errorf("moduleName() = %q, want %q", got, DefaultModuleName)
	}
	if got := (Config{ModuleName: "x"}).moduleName(); got != "x" {
		t.Errorf("moduleName() = %q, want x", got)
	}
}
