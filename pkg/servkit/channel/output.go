package channel

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// Output is the client-socket-facing output channel. The core feeds it
// response bytes via Feed; Output buffers whatever the underlying writer
// isn't ready to accept yet and drains the backlog as the writer becomes
// writable again. Close marks end-of-response; once the backlog has fully
// drained past a Close, the flushed callback fires exactly once, which is
// the signal the core's lifecycle uses to move a request out of
// FLUSHING_OUTPUT.
type Output struct {
	w io.Writer

	backlog []*bytebufferpool.ByteBuffer
	backlogOff int
	backlogLen int

	closed     bool
	flushedCB  func()
	acked      bool
}

// NewOutput wraps a writer (typically a buffered net.Conn) in an Output
// channel.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Reset rebinds the channel to a new writer for connection reuse
// (keep-alive), releasing any buffers left from the previous request.
func (o *Output) Reset(w io.Writer) {
	for _, b := range o.backlog {
		bytebufferpool.Put(b)
	}
	o.backlog = o.backlog[:0]
	o.backlogOff = 0
	o.backlogLen = 0
	o.closed = false
	o.flushedCB = nil
	o.acked = false
	o.w = w
}

// SetDataFlushedCallback installs the callback fired once Close has been
// called and every buffered byte has actually been written out.
func (o *Output) SetDataFlushedCallback(cb func()) { o.flushedCB = cb }

// Pending reports whether any bytes are still waiting to be written.
func (o *Output) Pending() bool { return o.backlogLen > 0 }

// Ended reports whether Close has been called.
func (o *Output) Ended() bool { return o.closed }

// EndAcked reports whether the flushed callback has already fired.
func (o *Output) EndAcked() bool { return o.acked }

// Abort forces the flushed callback to fire (if it hasn't already) without
// requiring the backlog to actually drain. The connection plumbing calls
// this when a client disconnects mid-flush, so any view (e.g. a request
// arena) kept alive only until "output fully drained" doesn't wait forever
// on a drain that will now never happen.
func (o *Output) Abort() {
	o.closed = true
	for _, b := range o.backlog {
		bytebufferpool.Put(b)
	}
	o.backlog = nil
	o.backlogLen = 0
	o.maybeAck()
}

// Feed queues data for the client and attempts an immediate write. Data is
// copied; the caller's buffer may be reused the moment Feed returns.
func (o *Output) Feed(data []byte) error {
	if o.closed {
		panic("channel: Feed after Close on Output")
	}
	if len(data) > 0 {
		o.enqueue(data)
	}
	return o.flushBacklog()
}

// Close marks end-of-response. No further Feed calls are permitted. If the
// backlog is already empty, the flushed callback fires synchronously.
func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	err := o.flushBacklog()
	if err == nil {
		o.maybeAck()
	}
	return err
}

// OnWritable should be called by the reactor when the underlying socket
// becomes writable again, to resume draining the backlog.
func (o *Output) OnWritable() error {
	err := o.flushBacklog()
	if err == nil {
		o.maybeAck()
	}
	return err
}

func (o *Output) enqueue(data []byte) {
	b := bytebufferpool.Get()
	b.Set(data)
	o.backlog = append(o.backlog, b)
	o.backlogLen += len(b.B)
}

// flushBacklog writes as much of the backlog as the writer will accept. On
// a partial write (as from a non-blocking socket wrapper returning
// io.ErrShortWrite or similar), it stops and leaves the remainder queued.
func (o *Output) flushBacklog() error {
	for len(o.backlog) > 0 {
		b := o.backlog[0]
		view := b.B[o.backlogOff:]
		n, err := o.w.Write(view)
		o.backlogLen -= n
		if n >= len(view) {
			bytebufferpool.Put(b)
			o.backlog = o.backlog[1:]
			o.backlogOff = 0
		} else {
			o.backlogOff += n
		}
		if err != nil {
			return err
		}
		if n < len(view) {
			// Writer accepted a partial write and returned no error: this is
			// a non-blocking socket signaling it has no more capacity right
			// now. Stop here; OnWritable resumes later.
			return nil
		}
	}
	return nil
}

func (o *Output) maybeAck() {
	if o.closed && o.backlogLen == 0 && !o.acked {
		o.acked = true
		if o.flushedCB != nil {
			o.flushedCB()
		}
	}
}
