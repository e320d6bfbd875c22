package core

// Freelist is a bounded LIFO of recyclable Request objects. It is
// loop-thread-only: the spec's concurrency model mutates it only from the
// event-loop thread, so it carries no locking of its own (unlike a
// goroutine-per-connection design, which would need one).
type Freelist struct {
	items []*Request
	limit int
}

// NewFreelist returns a Freelist bounded at limit entries.
func NewFreelist(limit int) *Freelist {
	return &Freelist{limit: limit}
}

// Len returns the number of requests currently parked in the freelist.
func (f *Freelist) Len() int { return len(f.items) }

// Checkout returns the most recently freed Request, or a freshly allocated
// one if the freelist is empty. It never returns nil; allocation failure in
// Go is not a recoverable condition the way it is in the original C++
// (new never returns null here), so ErrRequestAllocationFailed exists only
// for interface parity with the spec's error taxonomy and is unused by this
// implementation.
func (f *Freelist) Checkout(client *Client) *Request {
	var req *Request
	if n := len(f.items); n > 0 {
		req = f.items[n-1]
		f.items = f.items[:n-1]
	} else {
		req = newRequest()
	}
	req.reset()
	req.client = client
	req.refcount = 1
	req.httpState = StateParsingHeaders
	return req
}

// AddToFreelist prepends req iff the freelist has room, setting it to the
// IN_FREELIST state and detaching it from its client. Returns whether the
// request was accepted; a rejected request is the caller's to discard.
//
// Per the spec's invariant, state and refcount are set before the request
// becomes observable in the freelist slice.
func (f *Freelist) AddToFreelist(req *Request) bool {
	if len(f.items) >= f.limit {
		return false
	}
	req.client = nil
	req.arena = nil
	req.httpState = StateInFreelist
	req.refcount = 1
	f.items = append(f.items, req)
	return true
}
