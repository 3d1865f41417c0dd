package boc

// A Promise is a write-once value protected by its own cown.
// Consumers attach read behaviours with Then; they run after the value
// arrives, concurrently with each other. Fulfil delivers the value
// exactly once.
type Promise[T any] struct {
	state CownPtr[promiseState[T]]
}

type promiseState[T any] struct {
	value     T
	fulfilled bool
	// pending holds consumers that arrived before the value.
	pending []func(T)
}

// NewPromise allocates an unfulfilled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{state: NewCownPtr(promiseState[T]{})}
}

// Fulfil delivers the value and releases every waiting consumer as a
// read behaviour on the promise's cown. Fulfilling twice is an error
// in the producer and panics inside the delivering behaviour.
func (p *Promise[T]) Fulfil(v T) {
	When(func() {
		s := p.state.Get()
		if s.fulfilled {
			panic("boc: promise fulfilled twice")
		}
		s.value = v
		s.fulfilled = true
		pending := s.pending
		s.pending = nil
		for _, f := range pending {
			p.scheduleRead(f)
		}
	}, p.state.Write())
}

// Then runs f with the promise's value once it exists. Consumers
// attached after fulfilment run immediately as read behaviours;
// earlier consumers are parked on the promise's cown.
func (p *Promise[T]) Then(f func(T)) {
	When(func() {
		s := p.state.Get()
		if s.fulfilled {
			p.scheduleRead(f)
			return
		}
		s.pending = append(s.pending, f)
	}, p.state.Write())
}

func (p *Promise[T]) scheduleRead(f func(T)) {
	When(func() {
		s := p.state.Get()
		f(s.value)
	}, p.state.Read())
}
