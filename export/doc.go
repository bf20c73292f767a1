// Package export adapts plain handlers to the flat calling convention.
//
// A Func names a handler and its WIT signature. Compiling it yields an
// Export with two entry points:
//
//	Call(arena, flat) -> block     lift params, invoke, lower result
//	PostReturn(arena, block)       release result buffers and the block
//
// The result is always returned indirectly: Call allocates a block holding
// the result's flat words and returns its address. The caller reads the
// block, then calls PostReturn exactly once.
//
// A Table routes names to exports. Functions are addressed by qualified
// names of the form "interface#function"; the paired hook is
// "cabi_post_interface#function":
//
//	table := export.NewTable()
//	table.MustRegister(fn)
//	e, role, err := table.Resolve("cabi_post_foo#concat") // role == RolePostReturn
//
// ParseFuncs builds Funcs from WIT text so signatures can be declared once:
//
//	funcs, _ := export.ParseFuncs("foo", `concat: func(a: string, b: string) -> string;`)
//	table.MustRegister(funcs[0].With(concat))
package export
