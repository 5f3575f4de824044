package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoUnitOfWork is returned when a descriptor is stored from a context that
// is not inside an open unit of work.
var ErrNoUnitOfWork = errors.New("session: no open unit of work in context")

type unitOfWorkKey struct{}

// entry tags a stored descriptor with the generation of the unit of work that
// stored it, so a handle from a finished unit of work never reads a
// descriptor stored by the next owner of a recycled slot.
type entry struct {
	gen uint64
	d   *Descriptor
}

type slot struct {
	gen atomic.Uint64
	cur atomic.Pointer[entry]
}

// handle is what travels in the context: a slot plus the generation the
// unit of work was opened with.
type handle struct {
	s   *slot
	gen uint64
}

func handleFrom(ctx context.Context) (handle, bool) {
	if ctx == nil {
		return handle{}, false
	}
	h, ok := ctx.Value(unitOfWorkKey{}).(handle)
	return h, ok
}

// Cache stores at most one Descriptor per unit of work. Storage is a slot
// attached to the request context by Begin; there is no shared map, so
// concurrent units of work never see each other's descriptors.
//
// Slots are pooled. A slot is cleared and its generation advanced before it
// goes back to the pool, and again when it is handed out.
type Cache struct {
	pool   sync.Pool
	active atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.pool.New = func() any { return &slot{} }
	return c
}

// Begin opens a unit of work and returns a context carrying its slot along
// with the function that ends it. The end function clears the slot and is
// safe to call more than once.
func (c *Cache) Begin(ctx context.Context) (context.Context, func()) {
	s := c.pool.Get().(*slot)
	s.cur.Store(nil)
	h := handle{s: s, gen: s.gen.Load()}
	c.active.Add(1)

	var once sync.Once
	end := func() {
		once.Do(func() {
			s.gen.Add(1)
			s.cur.Store(nil)
			c.active.Add(-1)
			c.pool.Put(s)
		})
	}

	return context.WithValue(ctx, unitOfWorkKey{}, h), end
}

// Set stores d as the descriptor of the unit of work in ctx, replacing any
// previous one.
func (c *Cache) Set(ctx context.Context, d *Descriptor) error {
	h, ok := handleFrom(ctx)
	if !ok {
		return ErrNoUnitOfWork
	}

	next := &entry{gen: h.gen, d: d}
	for {
		cur := h.s.cur.Load()
		if h.s.gen.Load() != h.gen || (cur != nil && cur.gen > h.gen) {
			return ErrNoUnitOfWork
		}
		if h.s.cur.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Get returns the descriptor stored for the unit of work in ctx.
func (c *Cache) Get(ctx context.Context) (*Descriptor, bool) {
	return FromContext(ctx)
}

// Clear removes the descriptor of the unit of work in ctx. Clearing an empty
// slot, a finished unit of work, or a context without one is a no-op.
func (c *Cache) Clear(ctx context.Context) {
	h, ok := handleFrom(ctx)
	if !ok {
		return
	}
	for {
		cur := h.s.cur.Load()
		if cur == nil || cur.gen != h.gen {
			return
		}
		if h.s.cur.CompareAndSwap(cur, nil) {
			return
		}
	}
}

// Active reports the number of units of work currently open.
func (c *Cache) Active() int64 {
	return c.active.Load()
}

// FromContext returns the descriptor stored for the unit of work in ctx.
// Callers read it; they never keep it beyond the call that needed it.
func FromContext(ctx context.Context) (*Descriptor, bool) {
	h, ok := handleFrom(ctx)
	if !ok {
		return nil, false
	}
	cur := h.s.cur.Load()
	if cur == nil || cur.gen != h.gen || cur.d == nil {
		return nil, false
	}
	return cur.d, true
}
