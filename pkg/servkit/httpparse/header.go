package httpparse

import (
	"golang.org/x/net/http/httpguts"

	"github.com/watt-toolkit/servkit/pkg/servkit/memory"
)

// maxInlineHeaders is the number of headers stored without a map allocation.
// Real-world requests rarely carry more; a handful of cache/tracing proxies
// push past it, which is what the overflow map is for.
const maxInlineHeaders = 32

// headerPair is one name/value slot. Both slices reference arena memory and
// are only valid for the lifetime of the request that owns the arena.
type headerPair struct {
	name  []byte
	value []byte
}

// Header holds a parsed request's headers. Like the teacher's inline-array
// design, the common case (≤32 headers) never touches the heap beyond the
// arena copies already made while parsing; anything past that spills into
// an overflow map.
type Header struct {
	inline   [maxInlineHeaders]headerPair
	count    int
	overflow map[string][]byte
}

// Reset clears the header set for reuse by the next request.
func (h *Header) Reset() {
	h.count = 0
	h.overflow = nil
}

// add appends a name/value pair already allocated in the request arena.
func (h *Header) add(name, value []byte) {
	if h.count < maxInlineHeaders {
		h.inline[h.count] = headerPair{name: name, value: value}
		h.count++
		return
	}
	if h.overflow == nil {
		h.overflow = make(map[string][]byte, 4)
	}
	h.overflow[string(name)] = value
}

// Get returns the first value matching name (case-insensitive), or nil.
func (h *Header) Get(name string) []byte {
	for i := 0; i < h.count; i++ {
		if equalFold(h.inline[i].name, name) {
			return h.inline[i].value
		}
	}
	if h.overflow != nil {
		for k, v := range h.overflow {
			if equalFold([]byte(k), name) {
				return v
			}
		}
	}
	return nil
}

// Has reports whether a header with the given name is present.
func (h *Header) Has(name string) bool { return h.Get(name) != nil }

// VisitAll calls visit for every header pair in parse order (inline first,
// then overflow in unspecified order).
func (h *Header) VisitAll(visit func(name, value []byte) bool) {
	for i := 0; i < h.count; i++ {
		if !visit(h.inline[i].name, h.inline[i].value) {
			return
		}
	}
	for k, v := range h.overflow {
		if !visit([]byte(k), v) {
			return
		}
	}
}

// Len returns the total number of headers.
func (h *Header) Len() int { return h.count + len(h.overflow) }

// IsConnectionUpgrade reports whether the Connection header lists the
// "upgrade" token, the trigger for the UPGRADED lifecycle path.
func (h *Header) IsConnectionUpgrade() bool {
	v := h.Get("Connection")
	if v == nil {
		return false
	}
	return httpguts.HeaderValuesContainsToken([]string{string(v)}, "upgrade")
}

// ValidateFieldNames checks every stored header name against RFC 7230
// token grammar, rejecting anything a compliant peer could use to smuggle a
// second request past an intermediary.
func (h *Header) ValidateFieldNames() error {
	var err error
	h.VisitAll(func(name, value []byte) bool {
		if !httpguts.ValidHeaderFieldName(string(name)) {
			err = ErrInvalidHeader
			return false
		}
		if !httpguts.ValidHeaderFieldValue(string(value)) {
			err = ErrInvalidHeader
			return false
		}
		return true
	})
	return err
}

// ValidateNoSmuggling rejects header combinations that are classic
// request-smuggling vectors: Content-Length together with
// Transfer-Encoding, or multiple Content-Length headers that disagree.
func (h *Header) ValidateNoSmuggling() error {
	if h.Has("Transfer-Encoding") && h.Has("Content-Length") {
		return ErrContentLengthWithTransferEncoding
	}
	var first string
	seen := false
	var dupErr error
	h.VisitAll(func(name, value []byte) bool {
		if !equalFold(name, "Content-Length") {
			return true
		}
		if !seen {
			first = string(value)
			seen = true
			return true
		}
		if string(value) != first {
			dupErr = ErrDuplicateContentLength
			return false
		}
		return true
	})
	return dupErr
}

func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := range b {
		bc, sc := b[i], s[i]
		if 'A' <= bc && bc <= 'Z' {
			bc += 'a' - 'A'
		}
		if 'A' <= sc && sc <= 'Z' {
			sc += 'a' - 'A'
		}
		if bc != sc {
			return false
		}
	}
	return true
}

// cloneHeaderValue is a convenience wrapper so parser code reads naturally;
// all header bytes must be arena copies, never views into the caller's
// socket-read buffer, since that buffer gets reused on the next read.
func cloneHeaderValue(a *memory.Arena, b []byte) []byte { return a.Clone(b) }
