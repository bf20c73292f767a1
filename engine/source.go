package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-cabi/arena"
)

// ArenaSource picks the arena a call from mod marshals through.
//
// The returned arena must live in mod's own memory: the guest reads the
// result block and writes its parameters there.
type ArenaSource interface {
	Arena(ctx context.Context, mod api.Module) (arena.Arena, error)
}

// ArenaSourceFunc adapts a function to ArenaSource.
type ArenaSourceFunc func(ctx context.Context, mod api.Module) (arena.Arena, error)

func (f ArenaSourceFunc) Arena(ctx context.Context, mod api.Module) (arena.Arena, error) {
	return f(ctx, mod)
}

// GuestArenas derives a Guest arena from the calling module's memory and
// cabi_realloc. Arenas are cached per module. Entries of closed modules
// are dropped whenever a new module is added; Forget drops one at once.
type GuestArenas struct {
	mu     sync.Mutex
	guests map[api.Module]*arena.Guest
	policy arena.Policy
}

// CallerArena marshals every call through the memory of the calling
// module.
func CallerArena(policy arena.Policy) *GuestArenas {
	return &GuestArenas{policy: policy, guests: make(map[api.Module]*arena.Guest)}
}

func (g *GuestArenas) Arena(ctx context.Context, mod api.Module) (arena.Arena, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	guest, ok := g.guests[mod]
	if !ok {
		var err error
		if guest, err = arena.NewGuest(mod, g.policy); err != nil {
			return nil, err
		}
		g.evictClosed()
		g.guests[mod] = guest
	}
	guest.SetContext(ctx)
	return guest, nil
}

// Forget drops the arena cached for mod.
func (g *GuestArenas) Forget(mod api.Module) {
	g.mu.Lock()
	delete(g.guests, mod)
	g.mu.Unlock()
}

// Len returns the number of cached arenas.
func (g *GuestArenas) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.guests)
}

func (g *GuestArenas) evictClosed() {
	for mod := range g.guests {
		if mod.IsClosed() {
			delete(g.guests, mod)
		}
	}
}
