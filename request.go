package boc

// A Request names one cown a behaviour wants and the capability it
// wants it with.
type Request struct {
	cown *Cown
	read bool
	move bool
}

// Write requests exclusive access to c.
func Write(c *Cown) Request {
	return Request{cown: c}
}

// Read requests shared access to c. Readers adjacent in the cown's
// chain run concurrently with each other, never with a writer.
func Read(c *Cown) Request {
	return Request{cown: c, read: true}
}

// Move marks the request as transferring one of the caller's strong
// references on the cown to the scheduler. After scheduling returns
// the caller holds one fewer reference.
func (r Request) Move() Request {
	r.move = true
	return r
}

// Cown returns the requested cown.
func (r Request) Cown() *Cown {
	return r.cown
}

// IsRead reports whether the request is for shared access.
func (r Request) IsRead() bool {
	return r.read
}
