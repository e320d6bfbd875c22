package channel

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// DefaultThreshold is the default in-memory watermark past which a Body
// channel spills further incoming data to disk instead of growing its
// in-memory queue without bound.
const DefaultThreshold = 256 * 1024

// DataCallback is invoked with each delivered chunk. A nil data slice with a
// nil error signals clean end-of-body; a nil data slice with a non-nil
// error signals a body-level error (e.g. unexpected EOF).
type DataCallback func(data []byte, err error) Result

// Body is the per-request, file-buffered body sink the core feeds inbound
// body bytes into and the consumer (via DataCallback) drains. It is the
// concrete analogue of the spec's "bodyChannel".
type Body struct {
	threshold int

	pending    []*bytebufferpool.ByteBuffer // in-memory queue of not-yet-delivered chunks
	pendingOff int                          // bytes already consumed from pending[0]
	pendingLen int

	spill        *spillFile
	spillPending int64 // bytes still unread from the spill file

	dataCB        DataCallback
	flushedCB     func()
	ended         bool
	bufferedBytes int // pendingLen + spillPending, kept in sync on mutation
}

// NewBody creates a Body with the default watermark.
func NewBody() *Body {
	return &Body{threshold: DefaultThreshold}
}

// SetThreshold overrides the backpressure watermark.
func (b *Body) SetThreshold(n int) { b.threshold = n }

// SetDataCallback installs the consumer-facing callback.
func (b *Body) SetDataCallback(cb DataCallback) { b.dataCB = cb }

// SetBuffersFlushedCallback installs the callback invoked the next time a
// drain leaves no buffered bytes, whether or not the threshold was passed.
// It fires once and is then cleared.
func (b *Body) SetBuffersFlushedCallback(cb func()) { b.flushedCB = cb }

// Reset prepares the Body for reuse by a new request.
func (b *Body) Reset() {
	for _, chunk := range b.pending {
		bytebufferpool.Put(chunk)
	}
	b.pending = b.pending[:0]
	b.pendingOff = 0
	b.pendingLen = 0
	if b.spill != nil {
		b.spill.Close()
		b.spill = nil
	}
	b.spillPending = 0
	b.bufferedBytes = 0
	b.dataCB = nil
	b.flushedCB = nil
	b.ended = false
}

// Feed enqueues data bytes read off the socket for this body, copying them
// (the source buffer belongs to the socket read loop and will be reused).
// It drains as much as possible to the consumer before returning.
func (b *Body) Feed(data []byte) {
	if b.ended {
		return
	}
	if len(data) > 0 {
		b.enqueue(data)
	}
	b.drain()
}

// FeedEOF signals clean end-of-body (spec: "an empty mbuf signals clean EOF
// to the consumer").
func (b *Body) FeedEOF() {
	if b.ended {
		return
	}
	// Drain again for as long as the consumer keeps taking bytes, so a
	// consumer that accepts only part of each chunk still sees all of it
	// before the end-of-body signal.
	for {
		before := b.bufferedBytes
		b.drain()
		if b.ended || b.bufferedBytes == 0 || b.bufferedBytes == before {
			break
		}
	}
	b.ended = true
	if b.dataCB != nil {
		b.dataCB(nil, nil)
	}
}

// FeedError signals a body-level error (e.g. ErrUnexpectedEOF) and ends the
// channel.
func (b *Body) FeedError(err error) {
	if b.ended {
		return
	}
	b.ended = true
	if b.dataCB != nil {
		b.dataCB(nil, err)
	}
}

// PassedThreshold reports whether buffered (undelivered) bytes exceed the
// watermark. The core stops reading from the socket while this is true.
func (b *Body) PassedThreshold() bool {
	return b.bufferedBytes > b.threshold
}

// Ended reports whether FeedEOF or FeedError has been called.
func (b *Body) Ended() bool { return b.ended }

func (b *Body) enqueue(data []byte) {
	if b.pendingLen+len(data) <= b.threshold || b.spill != nil {
		// Either we're still under watermark, or we've already started
		// spilling (once spilling starts we keep routing new data there
		// until the consumer has drained what's in memory, to keep chunk
		// ordering intact).
		if b.spill == nil && b.pendingLen+len(data) > b.threshold {
			// crossing the watermark right now: start a spill file and
			// route this chunk (and everything after) to it.
			sf, err := newSpillFile()
			if err == nil {
				b.spill = sf
			}
		}
	}

	if b.spill != nil && !b.spill.draining {
		n, _ := b.spill.Write(data)
		b.spillPending += int64(n)
		b.bufferedBytes += n
		return
	}

	chunk := bytebufferpool.Get()
	chunk.Set(data)
	b.pending = append(b.pending, chunk)
	b.pendingLen += len(chunk.B)
	b.bufferedBytes += len(chunk.B)
}

// drain hands as much buffered data to the consumer as it will accept.
func (b *Body) drain() {
	if b.dataCB == nil {
		return
	}

	for len(b.pending) > 0 {
		chunk := b.pending[0]
		view := chunk.B[b.pendingOff:]
		res := b.dataCB(view, nil)
		consumed := res.Consumed
		if consumed >= len(view) {
			bytebufferpool.Put(chunk)
			b.pending = b.pending[1:]
			b.pendingOff = 0
			b.pendingLen -= len(view)
			b.bufferedBytes -= len(view)
		} else {
			// Partial consumption: remember the offset and stop, the
			// consumer will be fed the remainder on the next drain.
			b.pendingOff += consumed
			b.pendingLen -= consumed
			b.bufferedBytes -= consumed
			if res.Terminal {
				b.ended = true
			}
			return
		}
		if res.Terminal {
			b.ended = true
			return
		}
	}

	// In-memory queue empty: start draining the spill file, if any.
	if b.spill != nil && b.spillPending > 0 {
		if err := b.spill.startDraining(); err != nil {
			b.FeedError(err)
			return
		}
		buf := make([]byte, 32*1024)
		for {
			n, err := b.spill.Read(buf)
			if n > 0 {
				res := b.dataCB(buf[:n], nil)
				b.spillPending -= int64(res.Consumed)
				b.bufferedBytes -= res.Consumed
				if res.Terminal {
					b.ended = true
					break
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				b.FeedError(err)
				return
			}
		}
		b.spill.Close()
		b.spill = nil
		b.spillPending = 0
	}

	if b.bufferedBytes == 0 && b.flushedCB != nil {
		cb := b.flushedCB
		b.flushedCB = nil
		cb()
	}
}
