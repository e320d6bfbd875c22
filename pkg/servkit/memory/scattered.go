package memory

import "bytes"

// Scattered is a scattered string (the original's "LString"): a sequence of
// fragments, each backed by arena memory, without requiring contiguous
// storage. Request paths are held this way; header values are stored as
// plain byte slices instead.
type Scattered struct {
	parts [][]byte
}

// Append adds a fragment, copying it into the arena first so it survives
// the socket buffer being reused.
func (s *Scattered) Append(a *Arena, frag []byte) {
	if len(frag) == 0 {
		return
	}
	s.parts = append(s.parts, a.Clone(frag))
}

// Reset clears the fragment list. Does not touch the arena; the arena's own
// refcounting and pooling (Release) handles memory reclamation.
func (s *Scattered) Reset() {
	s.parts = s.parts[:0]
}

// Len returns the total flattened length.
func (s *Scattered) Len() int {
	n := 0
	for _, p := range s.parts {
		n += len(p)
	}
	return n
}

// String flattens the fragments into a single string. Allocates; callers on
// the hot path should prefer iterating with VisitAll when possible.
func (s *Scattered) String() string {
	if len(s.parts) == 1 {
		return string(s.parts[0])
	}
	var buf bytes.Buffer
	buf.Grow(s.Len())
	for _, p := range s.parts {
		buf.Write(p)
	}
	return buf.String()
}

// VisitAll calls visit for each fragment in order.
func (s *Scattered) VisitAll(visit func(frag []byte)) {
	for _, p := range s.parts {
		visit(p)
	}
}

// Empty reports whether the scattered string has no fragments.
func (s *Scattered) Empty() bool {
	return len(s.parts) == 0
}
