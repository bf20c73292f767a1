// Package engine binds a routing table to wazero.
//
// Instantiate registers a host module whose functions are the table's
// exports in the flat calling convention. Guests import them by qualified
// name:
//
//	(import "cabi" "foo#concat"           (func (param i32 i32 i32 i32) (result i32)))
//	(import "cabi" "cabi_post_foo#concat" (func (param i32)))
//
// The arena for each call comes from an ArenaSource. CallerArena uses the
// calling module's own memory and cabi_realloc, so the block pointer the
// guest receives is valid in its memory:
//
//	table := export.NewTable()
//	table.MustRegister(concat)
//	_, err := engine.Instantiate(ctx, r, table, engine.CallerArena(arena.PolicyAbort), engine.DefaultConfig())
package engine
