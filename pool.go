package framesock

import "sync"

// defaultPoolCapacity is the default ceiling on allocated send contexts.
const defaultPoolCapacity = 100

// sendContext carries one outbound frame while its write is in flight.
// A context is either idle in its pool or checked out for exactly one send.
type sendContext struct {
	buf      []byte
	complete func(n int, err error)
	idle     bool
}

// sendPool hands out reusable send contexts up to a fixed ceiling.
// Acquire and Release are called from issuing goroutines and from transport
// completions, so the idle set is guarded by mu.
type sendPool struct {
	mu        sync.Mutex
	idle      []*sendContext
	allocated int
	capacity  int
	bind      func(*sendContext)
}

// newSendPool creates a pool; bind is called once on every newly allocated
// context to attach its completion handler.
func newSendPool(capacity int, bind func(*sendContext)) *sendPool {
	return &sendPool{
		capacity: capacity,
		bind:     bind,
	}
}

// Acquire returns an idle context, or allocates one while the pool is below
// its ceiling. It reports false once the ceiling is reached and no context
// is idle; the caller drops the send.
func (p *sendPool) Acquire() (*sendContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.idle); n > 0 {
		ctx := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		ctx.idle = false
		return ctx, true
	}

	if p.allocated >= p.capacity {
		return nil, false
	}

	ctx := &sendContext{}
	if p.bind != nil {
		p.bind(ctx)
	}
	p.allocated++
	return ctx, true
}

// Release clears the context's buffer and returns it to the idle set.
// Releasing a context that is already idle is ignored.
func (p *sendPool) Release(ctx *sendContext) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.idle {
		return
	}
	ctx.buf = ctx.buf[:0]
	ctx.idle = true
	p.idle = append(p.idle, ctx)
}

// Stats returns the number of allocated and idle contexts.
func (p *sendPool) Stats() (allocated, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated, len(p.idle)
}
