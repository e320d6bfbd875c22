package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/watt-toolkit/servkit/pkg/servkit/core"
)

// Conn is one accepted, non-blocking connection's reactor-side state. It
// implements io.Writer and io.Closer so it can be handed straight to
// core.Server.NewClient.
type Conn struct {
	fd   int
	loop *Loop

	client *core.Client

	registeredForWrite bool
	closed             bool

	timer *timerEntry
}

// Write performs a single non-blocking write attempt. EAGAIN/EWOULDBLOCK is
// translated into (0, nil) rather than returned as an error: that's exactly
// how channel.Output's flushBacklog already interprets "writer accepted a
// partial write and returned no error" — the writer has no more capacity
// right now, try again once OnWritable fires.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, unix.EBADF
	}
	n, err := unix.Write(c.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// Close idempotently tears down the fd: deregister from epoll, cancel any
// pending keep-alive timer, drop the loop's bookkeeping entry, close the
// fd. Safe to call from core (as the request lifecycle's io.Closer) or from
// the reactor's own closeConn on a detected peer disconnect.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.loop.cancelKeepAliveDeadline(c)
	unix.EpollCtl(c.loop.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	delete(c.loop.conns, c.fd)
	return unix.Close(c.fd)
}
