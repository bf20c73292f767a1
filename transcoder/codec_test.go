package transcoder

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-cabi/arena"
	cabierrors "github.com/wippyai/wasm-cabi/errors"
)

func newTestArena(t *testing.T) *arena.Linear {
	t.Helper()
	cfg := arena.DefaultConfig()
	cfg.Policy = arena.PolicyPropagate
	a, err := arena.NewLinear(cfg)
	if err != nil {
		t.Fatalf("NewLinear failed: %v", err)
	}
	return a
}

func mustCompile(t *testing.T, typ wit.Type) *CompiledType {
	t.Helper()
	ct, err := NewCompiler().Compile(typ)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return ct
}

// roundTrip lowers v to flat words, lifts it back and checks the flat
// count matches the type.
func roundTrip(t *testing.T, a *arena.Linear, ct *CompiledType, v Value) (Value, []uint64) {
	t.Helper()
	allocs := NewAllocationList()
	defer allocs.Release()

	flat, err := Encoder{}.Lower(ct, v, nil, a, a, allocs)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	if len(flat) != ct.FlatCount() {
		t.Fatalf("Lower produced %d words, want %d", len(flat), ct.FlatCount())
	}
	got, n, err := Decoder{}.Lift(ct, flat, a)
	if err != nil {
		t.Fatalf("Lift failed: %v", err)
	}
	if n != len(flat) {
		t.Errorf("Lift consumed %d words, want %d", n, len(flat))
	}
	return got, flat
}

func TestCodec_Scalars(t *testing.T) {
	a := newTestArena(t)
	tests := []struct {
		typ wit.Type
		v   Value
	}{
		{wit.Bool{}, Bool(true)},
		{wit.Bool{}, Bool(false)},
		{wit.U8{}, U8(255)},
		{wit.S8{}, S8(-128)},
		{wit.U16{}, U16(65535)},
		{wit.S16{}, S16(-2)},
		{wit.U32{}, U32(math.MaxUint32)},
		{wit.S32{}, S32(math.MinInt32)},
		{wit.U64{}, U64(math.MaxUint64)},
		{wit.S64{}, S64(-1)},
		{wit.F32{}, F32(1.5)},
		{wit.F64{}, F64(-0.25)},
		{wit.Char{}, Char('λ')},
	}

	for _, tt := range tests {
		ct := mustCompile(t, tt.typ)
		t.Run(ct.Name, func(t *testing.T) {
			got, _ := roundTrip(t, a, ct, tt.v)
			if got != tt.v {
				t.Errorf("got %v, want %v", got, tt.v)
			}
		})
	}
}

func TestCodec_String(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"ascii", []byte("hello")},
		{"embedded nul", []byte("a\x00b\x00")},
		{"invalid utf8", []byte{0xff, 0xfe}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestArena(t)
			ct := mustCompile(t, wit.String{})
			got, flat := roundTrip(t, a, ct, StringBytes(tt.data))

			s, ok := got.(String)
			if !ok {
				t.Fatalf("got %T, want String", got)
			}
			if !bytes.Equal(s.Bytes(), tt.data) {
				t.Errorf("bytes = %q, want %q", s.Bytes(), tt.data)
			}
			if uint64(len(tt.data)) != flat[1] {
				t.Errorf("len word = %d, want %d", flat[1], len(tt.data))
			}
			if len(tt.data) == 0 {
				if flat[0] != 0 {
					t.Errorf("empty string ptr = %d, want 0", flat[0])
				}
				if n := a.Stats().Live; n != 0 {
					t.Errorf("empty string allocated %d buffers", n)
				}
			}
		})
	}
}

func TestCodec_LiftedStringIsView(t *testing.T) {
	a := newTestArena(t)
	ptr, err := a.Alloc(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Write(ptr, []byte("abc")); err != nil {
		t.Fatal(err)
	}

	ct := mustCompile(t, wit.String{})
	v, _, err := Decoder{}.Lift(ct, []uint64{uint64(ptr), 3}, a)
	if err != nil {
		t.Fatal(err)
	}
	view, ok := v.(String).View()
	if !ok || view.Ptr != ptr || view.Len != 3 {
		t.Errorf("View = %+v %v, want {%d 3} true", view, ok, ptr)
	}

	// The view observes later writes; a copy does not.
	copied, _, err := Decoder{Copy: true}.Lift(ct, []uint64{uint64(ptr), 3}, a)
	if err != nil {
		t.Fatal(err)
	}
	_ = a.WriteU8(ptr, 'z')
	if got := v.(String).String(); got != "zbc" {
		t.Errorf("view = %q, want zbc", got)
	}
	if got := copied.(String).String(); got != "abc" {
		t.Errorf("copy = %q, want abc", got)
	}
}

func TestCodec_LiftBounds(t *testing.T) {
	a := newTestArena(t)
	str := mustCompile(t, wit.String{})
	list := mustCompile(t, &wit.TypeDef{Kind: &wit.List{Type: wit.U32{}}})

	tests := []struct {
		name string
		ct   *CompiledType
		flat []uint64
		kind cabierrors.Kind
	}{
		{"string past end", str, []uint64{uint64(a.Size() - 2), 4}, cabierrors.KindOutOfBounds},
		{"list overflow", list, []uint64{8, math.MaxUint32}, cabierrors.KindInvalidData},
		{"list misaligned", list, []uint64{9, 1}, cabierrors.KindInvalidData},
		{"short flat", str, []uint64{8}, cabierrors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decoder{}.Lift(tt.ct, tt.flat, a)
			if !errors.Is(err, &cabierrors.Error{Kind: tt.kind}) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestCodec_RecordDeclarationOrder(t *testing.T) {
	a := newTestArena(t)
	ct := mustCompile(t, pointType())

	named := map[string]Value{
		"y":     F64(2.5),
		"label": NewString("p"),
		"x":     U32(7),
		"flag":  Bool(true),
	}
	r, err := RecordOf(ct, named)
	if err != nil {
		t.Fatalf("RecordOf failed: %v", err)
	}

	got, flat := roundTrip(t, a, ct, r)
	if flat[0] != 1 || flat[1] != 7 || flat[3] != 1 {
		t.Errorf("flat = %v, want flag, x, label ptr/len, y in order", flat)
	}
	rec := got.(Record)
	if rec.Field(1) != U32(7) || rec.Field(3) != F64(2.5) {
		t.Errorf("fields = %v", rec.Fields())
	}
	if s := rec.Field(2).(String).String(); s != "p" {
		t.Errorf("label = %q, want p", s)
	}
}

func TestRecordOf_Errors(t *testing.T) {
	ct := mustCompile(t, pointType())

	_, err := RecordOf(ct, map[string]Value{"x": U32(1)})
	if !errors.Is(err, &cabierrors.Error{Kind: cabierrors.KindFieldMissing}) {
		t.Errorf("missing field error = %v", err)
	}

	_, err = RecordOf(ct, map[string]Value{
		"flag": Bool(true), "x": U32(1), "label": NewString(""), "y": F64(0), "z": U8(0),
	})
	if !errors.Is(err, &cabierrors.Error{Kind: cabierrors.KindFieldUnknown}) {
		t.Errorf("unknown field error = %v", err)
	}
}

func TestCodec_ListOfStrings(t *testing.T) {
	a := newTestArena(t)
	ct := mustCompile(t, &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}})

	in := NewList(NewString("one"), NewString(""), NewString("three"))
	got, flat := roundTrip(t, a, ct, in)

	l := got.(List)
	if l.Len() != 3 || flat[1] != 3 {
		t.Fatalf("len = %d (word %d), want 3", l.Len(), flat[1])
	}
	want := []string{"one", "", "three"}
	for i, w := range want {
		item, err := l.At(i)
		if err != nil {
			t.Fatal(err)
		}
		if s := item.(String).String(); s != w {
			t.Errorf("item %d = %q, want %q", i, s, w)
		}
	}
	if _, err := l.At(3); !errors.Is(err, &cabierrors.Error{Kind: cabierrors.KindOutOfBounds}) {
		t.Errorf("At(3) error = %v", err)
	}

	// list buffer plus two non-empty strings
	if n := a.Stats().Live; n != 3 {
		t.Errorf("live = %d, want 3", n)
	}
	if err := Release(ct, flat, a, a); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if out := a.Outstanding(); len(out) != 0 {
		t.Errorf("outstanding after release: %v", out)
	}
}

func TestCodec_ByteList(t *testing.T) {
	a := newTestArena(t)
	ct := mustCompile(t, &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}})

	got, _ := roundTrip(t, a, ct, NewByteList([]byte{1, 2, 3}))
	raw, ok := got.(List).Bytes()
	if !ok || !bytes.Equal(raw, []byte{1, 2, 3}) {
		t.Errorf("Bytes = %v %v", raw, ok)
	}

	u32s := mustCompile(t, &wit.TypeDef{Kind: &wit.List{Type: wit.U32{}}})
	_, err := Encoder{}.Lower(u32s, NewByteList([]byte{1}), nil, a, a, nil)
	if !errors.Is(err, &cabierrors.Error{Kind: cabierrors.KindTypeMismatch}) {
		t.Errorf("byte list as list<u32> error = %v", err)
	}
}

func TestCodec_VariantLike(t *testing.T) {
	opt := mustCompile(t, &wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}})
	res := mustCompile(t, &wit.TypeDef{Kind: &wit.Result{OK: wit.U32{}, Err: wit.String{}}})
	vnt := mustCompile(t, &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "f", Type: wit.F32{}},
		{Name: "n", Type: wit.U64{}},
		{Name: "empty"},
	}}})
	enm := mustCompile(t, &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}, {Name: "b"}}}})

	tests := []struct {
		name  string
		ct    *CompiledType
		in    Value
		check func(t *testing.T, got Value)
	}{
		{"option some", opt, Some(NewString("x")), func(t *testing.T, got Value) {
			v := got.(Variant)
			if v.Case != 1 || v.Payload.(String).String() != "x" {
				t.Errorf("got %+v", v)
			}
		}},
		{"option none", opt, None(), func(t *testing.T, got Value) {
			if v := got.(Variant); v.Case != 0 || v.Payload != nil {
				t.Errorf("got %+v", v)
			}
		}},
		{"option nil", opt, nil, func(t *testing.T, got Value) {
			if v := got.(Variant); v.Case != 0 {
				t.Errorf("got %+v", v)
			}
		}},
		{"result ok", res, Ok(U32(9)), func(t *testing.T, got Value) {
			if v := got.(Variant); v.Case != 0 || v.Payload != U32(9) {
				t.Errorf("got %+v", v)
			}
		}},
		{"result err", res, Err(NewString("bad")), func(t *testing.T, got Value) {
			v := got.(Variant)
			if v.Case != 1 || v.Payload.(String).String() != "bad" {
				t.Errorf("got %+v", v)
			}
		}},
		{"variant f32 in i64 slot", vnt, Variant{Case: 0, Payload: F32(3.5)}, func(t *testing.T, got Value) {
			if v := got.(Variant); v.Payload != F32(3.5) {
				t.Errorf("got %+v", v)
			}
		}},
		{"variant u64", vnt, Variant{Case: 1, Payload: U64(math.MaxUint64)}, func(t *testing.T, got Value) {
			if v := got.(Variant); v.Payload != U64(math.MaxUint64) {
				t.Errorf("got %+v", v)
			}
		}},
		{"variant empty pads", vnt, Variant{Case: 2}, func(t *testing.T, got Value) {
			if v := got.(Variant); v.Case != 2 || v.Payload != nil {
				t.Errorf("got %+v", v)
			}
		}},
		{"enum", enm, Enum(1), func(t *testing.T, got Value) {
			if got != Enum(1) {
				t.Errorf("got %v", got)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestArena(t)
			got, _ := roundTrip(t, a, tt.ct, tt.in)
			tt.check(t, got)
		})
	}
}

func TestCodec_LowerErrors(t *testing.T) {
	a := newTestArena(t)
	opt := mustCompile(t, &wit.TypeDef{Kind: &wit.Option{Type: wit.U32{}}})
	enm := mustCompile(t, &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}}}})
	vnt := mustCompile(t, &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{{Name: "empty"}}}})

	tests := []struct {
		name string
		ct   *CompiledType
		v    Value
		kind cabierrors.Kind
	}{
		{"wrong scalar", mustCompile(t, wit.U32{}), S32(1), cabierrors.KindTypeMismatch},
		{"string as u8", mustCompile(t, wit.U8{}), NewString("x"), cabierrors.KindTypeMismatch},
		{"bad case", opt, Variant{Case: 5}, cabierrors.KindInvalidVariant},
		{"bad enum", enm, Enum(3), cabierrors.KindInvalidEnum},
		{"payload on empty case", vnt, Variant{Case: 0, Payload: U8(1)}, cabierrors.KindInvalidVariant},
		{"missing payload", opt, Variant{Case: 1}, cabierrors.KindNilPointer},
		{"invalid char", mustCompile(t, wit.Char{}), Char(0xD800), cabierrors.KindInvalidData},
		{"record arity", mustCompile(t, pointType()), NewRecord(Bool(true)), cabierrors.KindArity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encoder{}.Lower(tt.ct, tt.v, nil, a, a, nil)
			if !errors.Is(err, &cabierrors.Error{Kind: tt.kind}) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestCodec_StoreLoad(t *testing.T) {
	a := newTestArena(t)
	ct := mustCompile(t, &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{
		wit.U8{},
		&wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}},
		&wit.TypeDef{Kind: &wit.List{Type: pointType()}},
	}}})
	pt := ct.Fields[2].Type.ElemType

	p, err := RecordOf(pt, map[string]Value{
		"flag": Bool(false), "x": U32(3), "label": NewString("pt"), "y": F64(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	in := NewRecord(U8(42), Some(NewString("hi")), NewList(p, p))

	addr, err := a.Alloc(ct.WitSize, ct.WitAlign)
	if err != nil {
		t.Fatal(err)
	}
	allocs := NewAllocationList()
	defer allocs.Release()
	if err := (Encoder{}).Store(ct, in, addr, a, a, allocs); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := Decoder{}.Load(ct, addr, a)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rec := got.(Record)
	if rec.Field(0) != U8(42) {
		t.Errorf("field 0 = %v", rec.Field(0))
	}
	if s := rec.Field(1).(Variant).Payload.(String).String(); s != "hi" {
		t.Errorf("field 1 = %q", s)
	}
	items, err := rec.Field(2).(List).Items()
	if err != nil || len(items) != 2 {
		t.Fatalf("items = %v, %v", items, err)
	}
	if lbl := items[1].(Record).Field(2).(String).String(); lbl != "pt" {
		t.Errorf("label = %q", lbl)
	}

	// Two labels, the option string and the list buffer.
	if allocs.Count() != 4 {
		t.Errorf("allocations = %d, want 4", allocs.Count())
	}
	if err := releaseAt(ct, addr, a, a); err != nil {
		t.Fatal(err)
	}
	a.Free(addr, ct.WitSize, ct.WitAlign)
	if out := a.Outstanding(); len(out) != 0 {
		t.Errorf("outstanding after release: %v", out)
	}
}

func TestCodec_RollbackOnFailure(t *testing.T) {
	a := newTestArena(t)
	ct := mustCompile(t, &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.String{}, wit.U8{}}}})

	allocs := NewAllocationList()
	defer allocs.Release()
	_, err := Encoder{}.Lower(ct, NewRecord(NewString("leak?"), S8(1)), nil, a, a, allocs)
	if err == nil {
		t.Fatal("expected type mismatch")
	}
	if allocs.Count() != 1 {
		t.Fatalf("allocations = %d, want 1", allocs.Count())
	}
	allocs.Free(a)
	if n := a.Stats().Live; n != 0 {
		t.Errorf("live after rollback = %d", n)
	}
}

func TestCodec_ReuseViews(t *testing.T) {
	a := newTestArena(t)
	ct := mustCompile(t, wit.String{})

	allocs := NewAllocationList()
	defer allocs.Release()
	flat, err := Encoder{}.Lower(ct, NewString("owned"), nil, a, a, allocs)
	if err != nil {
		t.Fatal(err)
	}
	view, _, err := Decoder{}.Lift(ct, flat, a)
	if err != nil {
		t.Fatal(err)
	}

	again, err := Encoder{ReuseViews: true}.Lower(ct, view, nil, a, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again[0] != flat[0] || again[1] != flat[1] {
		t.Errorf("reused = %v, want %v", again, flat)
	}
	if n := a.Stats().Live; n != 1 {
		t.Errorf("live = %d, want 1", n)
	}

	copied, err := Encoder{}.Lower(ct, view, nil, a, a, allocs)
	if err != nil {
		t.Fatal(err)
	}
	if copied[0] == flat[0] {
		t.Error("without ReuseViews the view should be copied")
	}
}

func TestCodec_AllocationFailure(t *testing.T) {
	cfg := arena.Config{InitialPages: 1, MemoryLimitPages: 1, Policy: arena.PolicyPropagate}
	a, err := arena.NewLinear(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ct := mustCompile(t, &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}})

	_, err = Encoder{}.Lower(ct, NewByteList(make([]byte, 2*arena.PageSize)), nil, a, a, nil)
	if !errors.Is(err, &cabierrors.Error{Phase: cabierrors.PhaseLower, Kind: cabierrors.KindAllocation}) {
		t.Errorf("error = %v, want lower allocation", err)
	}
}
