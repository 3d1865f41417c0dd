package boc

// CownPtr couples a cown with a value of type T that the cown
// protects. It is the typed surface most programs use; the untyped
// Cown API remains available for collaborator layers that manage
// their own storage.
//
// The value is reached through Get, which is only meaningful inside a
// behaviour that requested this cown; the runtime's scheduling
// guarantees make that access race free.
type CownPtr[T any] struct {
	cown *Cown
	v    *T
}

// NewCownPtr allocates a cown protecting v. The returned handle owns
// one strong reference.
func NewCownPtr[T any](v T) CownPtr[T] {
	box := &v
	c := NewCownWithFinalizer(func() {
		// Last strong reference gone: zero the value so anything it
		// references can be collected even while weak handles keep
		// the cown itself alive.
		var zero T
		*box = zero
	})
	return CownPtr[T]{cown: c, v: box}
}

// Cown returns the underlying cown.
func (p CownPtr[T]) Cown() *Cown {
	return p.cown
}

// Write requests exclusive access.
func (p CownPtr[T]) Write() Request {
	return Write(p.cown)
}

// Read requests shared access.
func (p CownPtr[T]) Read() Request {
	return Read(p.cown)
}

// Move requests exclusive access and transfers the caller's strong
// reference to the scheduler.
func (p CownPtr[T]) Move() Request {
	return Write(p.cown).Move()
}

// MoveRead requests shared access and transfers the caller's strong
// reference to the scheduler.
func (p CownPtr[T]) MoveRead() Request {
	return Read(p.cown).Move()
}

// Get returns the protected value. Call it only from a behaviour that
// requested this cown; writes additionally require the request to
// have been a Write.
func (p CownPtr[T]) Get() *T {
	return p.v
}
