// Package wasmcabi implements the calling-boundary marshalling layer that lets
// two independently compiled modules exchange structured values through a
// shared flat memory region.
//
// # Architecture Overview
//
//	wasmcabi/            Root package with core Memory and Allocator interfaces
//	├── arena/           Shared allocator: allocate, grow, release
//	├── transcoder/      Value codec: lift/lower between Values and flat words
//	├── export/          Call adapters, post-return hooks, routing table
//	├── host/            Caller side: parameter lowering and result consumption
//	├── engine/          wazero host module binding for a routing table
//	└── errors/          Structured error types
//
// # Call Flow
//
//	caller ──params (ptr,len)──▶ Export.Call ──lift──▶ Handler
//	                                  │
//	                       lower result into arena
//	                                  │
//	caller ◀──── block pointer ───────┘
//	caller reads block, then Export.PostReturn releases every buffer
//
// # Quick Start
//
//	mem, _ := arena.NewLinear(arena.DefaultConfig())
//
//	table := export.NewTable()
//	table.MustRegister(export.Func{
//	    Interface: "foo",
//	    Name:      "concat",
//	    Params:    []export.Param{{Name: "left", Type: wit.String{}}, {Name: "right", Type: wit.String{}}},
//	    Result:    wit.String{},
//	    Handler: func(args []transcoder.Value) transcoder.Value {
//	        l := args[0].(transcoder.String).String()
//	        r := args[1].(transcoder.String).String()
//	        return transcoder.NewString(l + r)
//	    },
//	})
//
//	c := host.New(table, mem)
//	err := c.Invoke("foo#concat", func(v transcoder.Value) error {
//	    fmt.Println(v.(transcoder.String).String()) // "foobar"
//	    return nil
//	}, transcoder.NewString("foo"), transcoder.NewString("bar"))
//
// # Ownership
//
// Parameter buffers stay owned by the caller for the whole call. Result
// buffers are allocated by the callee and become caller-owned on return; the
// caller must invoke the paired post-return hook exactly once after it has
// finished reading the result.
//
// # Thread Safety
//
// Arenas are not safe for concurrent use. Wrap an arena with arena.Synchronized
// when more than one goroutine marshals through it. Tables are safe for
// concurrent lookup once registration is complete.
package wasmcabi
