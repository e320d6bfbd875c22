package core

import "sync/atomic"

// RefRequest increments req's reference count. Safe to call from any
// thread; relaxed ordering is sufficient since the count only needs to be
// monotonic until the final decrement.
func RefRequest(req *Request) {
	atomic.AddInt32(&req.refcount, 1)
}

// UnrefRequest decrements req's reference count. If this call observes the
// count reaching zero, the zero-refcount handler runs — synchronously if
// we're already on the event-loop thread, or via a thread hop posted to
// the loop otherwise.
//
// The thread hop works by posting a closure that holds one extra
// reference: the loop runs the closure, the closure returns (dropping that
// reference on the loop thread), and because that drop is the one
// observing 1→0, the zero-refcount handler fires from inside this same
// function call, now running on the loop.
func (s *Server) UnrefRequest(req *Request) {
	if atomic.AddInt32(&req.refcount, -1) == 0 {
		if s.loop.OnLoopThread() {
			s.onRequestRefcountZero(req)
			return
		}
		RefRequest(req)
		s.loop.RunOnLoop(func() {
			s.UnrefRequest(req)
		})
	}
}

// onRequestRefcountZero is the loop-thread-only finalizer: it removes the
// request from its client's endedRequests bookkeeping, disassociates the
// client, attempts to recycle the request via the freelist, and finally
// drops the client's own refcount (the request held an implicit reference
// to its client for its entire ended-but-not-yet-dereferenced lifetime).
func (s *Server) onRequestRefcountZero(req *Request) {
	client := req.client
	if client != nil {
		client.removeEndedRequest(req)
	}

	accepted := s.freelist.AddToFreelist(req)
	if !accepted {
		// Freelist full: let req be collected. Nothing further to release;
		// the arena was already detached/destroyed in doneWithCurrentRequest.
	}

	if client != nil {
		client.unrefClient()
	}
}
