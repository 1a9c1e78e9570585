package kernel

// ThreadCtx is a bounded pool of per-goroutine scratch values of type T,
// used where a FileOps implementation needs reusable working state (e.g. a
// decode buffer) without allocating it on every call. Grounded on
// original_source/filer/src/thread_ctx.rs, which hands out a crossbeam
// work-stealing-deque-backed clone per thread; a buffered channel is the
// idiomatic Go substitute for that free list.
type ThreadCtx[T any] struct {
	free chan T
	new  func() T
}

// NewThreadCtx builds a pool with the given capacity. new is called to
// produce a fresh T whenever the pool is empty; it must be safe to call
// concurrently.
func NewThreadCtx[T any](capacity int, new func() T) *ThreadCtx[T] {
	return &ThreadCtx[T]{free: make(chan T, capacity), new: new}
}

// Get returns a pooled T, creating one if none is free.
func (p *ThreadCtx[T]) Get() T {
	select {
	case v := <-p.free:
		return v
	default:
		return p.new()
	}
}

// Put returns v to the pool for reuse, dropping it if the pool is full.
func (p *ThreadCtx[T]) Put(v T) {
	select {
	case p.free <- v:
	default:
	}
}

// With runs f against a pooled T, returning it to the pool afterward
// regardless of whether f returns an error.
func (p *ThreadCtx[T]) With(f func(T) *Error) *Error {
	v := p.Get()
	defer p.Put(v)
	return f(v)
}
