// Package arena provides the shared allocator every value crossing a call
// boundary is placed in.
//
// Two implementations are provided:
//
//	Linear  in-process region with a first-fit free list, grown by pages
//	Guest   a wazero module's memory driven through its cabi_realloc export
//
// Both satisfy Arena: Alloc (policy governed on exhaustion), Grow (returns
// Null on failure and never aborts) and Free. Buffers are tagged by
// ownership: a View is borrowed and never released, an Owned buffer must be
// released exactly once.
//
// Arenas are not synchronized. Wrap one with Synchronized and use Locked.Do
// to hold exclusive access across a complete call and its post-return.
package arena
