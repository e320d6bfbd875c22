// Package memory provides the per-request bump allocator (the "request
// arena") used to hold header names/values, path parts, and response
// buffers for the lifetime of one request.
package memory

import "sync"

// slabSize is the size of each slab an Arena grows by. Most requests fit in
// a single slab; pathological ones (many headers, long paths) grow into
// additional slabs transparently.
const slabSize = 4096

// Arena is a bump-pointer allocator: all memory handed out by MakeSlice,
// MakeString, and Clone is freed in one shot when the last reference is
// released (Release returns the arena to its ArenaPool), never individually.
//
// An Arena is not safe for concurrent use; it is owned by exactly one
// request at a time (spec invariant: "pool, if non-null, is owned
// exclusively by the request").
type Arena struct {
	slabs   [][]byte
	cur     []byte // tail of slabs[len(slabs)-1], shrinking as we bump-allocate
	refs    int    // see Acquire/Release
}

// ArenaPool recycles Arenas so steady-state request handling does no heap
// allocation beyond the occasional slab growth.
type ArenaPool struct {
	pool sync.Pool
}

// NewArenaPool creates a pool of reusable Arenas.
func NewArenaPool() *ArenaPool {
	return &ArenaPool{
		pool: sync.Pool{
			New: func() any {
				return newArena()
			},
		},
	}
}

func newArena() *Arena {
	a := &Arena{}
	a.slabs = append(a.slabs, make([]byte, slabSize))
	a.cur = a.slabs[0]
	return a
}

// Get returns an Arena ready for use, with refcount 1.
func (p *ArenaPool) Get() *Arena {
	a := p.pool.Get().(*Arena)
	a.refs = 1
	return a
}

// put returns a reset Arena to the pool. Called only once refs reaches 0.
func (p *ArenaPool) put(a *Arena) {
	if len(a.slabs) > 1 {
		// Drop the extra slabs an unusually large request grew; the
		// pooled arena keeps only its first slab.
		a.slabs = a.slabs[:1]
	}
	a.cur = a.slabs[0][:cap(a.slabs[0])]
	p.pool.Put(a)
}

// Acquire increments the arena's reference count. Used when a response view
// (bytes queued on the output channel) must keep the arena alive past
// EndRequest, which detaches the arena from the Request itself.
func (a *Arena) Acquire() {
	a.refs++
}

// Release decrements the reference count; when it reaches zero the arena is
// returned to pool. Safe to call only from the event-loop thread, matching
// every other core mutation.
func (a *Arena) Release(pool *ArenaPool) {
	a.refs--
	if a.refs < 0 {
		panic("memory: Arena released more times than acquired")
	}
	if a.refs == 0 {
		pool.put(a)
	}
}

// MakeSlice allocates an uninitialized byte slice of the given size inside
// the arena.
func (a *Arena) MakeSlice(size int) []byte {
	if size == 0 {
		return nil
	}
	if len(a.cur) < size {
		a.grow(size)
	}
	b := a.cur[:size:size]
	a.cur = a.cur[size:]
	return b
}

// grow appends a new slab large enough to satisfy an allocation of at least
// `need` bytes.
func (a *Arena) grow(need int) {
	sz := slabSize
	if need > sz {
		sz = need
	}
	slab := make([]byte, sz)
	a.slabs = append(a.slabs, slab)
	a.cur = slab
}

// MakeString copies s into the arena and returns a string backed by that
// copy, decoupling it from whatever buffer s originally referenced (e.g. a
// socket read buffer that will be reused for the next read).
func (a *Arena) MakeString(s string) string {
	b := a.MakeSlice(len(s))
	copy(b, s)
	return string(b)
}

// Clone copies src into the arena.
func (a *Arena) Clone(src []byte) []byte {
	b := a.MakeSlice(len(src))
	copy(b, src)
	return b
}
