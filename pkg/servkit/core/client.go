package core

import (
	"io"
	"sync/atomic"

	"github.com/watt-toolkit/servkit/pkg/servkit/channel"
)

// Client is one accepted connection. The core binds at most one Request to
// it at a time (currentRequest); requests that outlive the connection's
// socket lifetime (still referenced by a downstream worker) live on
// endedRequests until their refcount drops to zero.
type Client struct {
	Number uint64

	currentRequest *Request

	endedRequests     []*Request
	endedRequestCount int

	Input  channel.Input
	Output *channel.Output

	Conn io.Closer

	server *Server

	refcount int32 // atomic; the base-server-level refcount mentioned in §3
}

// CurrentRequest returns the request currently bound to this client, or nil.
func (c *Client) CurrentRequest() *Request { return c.currentRequest }

// EndedRequestCount returns the number of requests still awaiting final
// dereference after the client's socket lifetime.
func (c *Client) EndedRequestCount() int { return c.endedRequestCount }

func (c *Client) addEndedRequest(req *Request) {
	c.endedRequests = append(c.endedRequests, req)
	c.endedRequestCount++
}

func (c *Client) removeEndedRequest(req *Request) {
	for i, r := range c.endedRequests {
		if r == req {
			c.endedRequests = append(c.endedRequests[:i], c.endedRequests[i+1:]...)
			c.endedRequestCount--
			return
		}
	}
}

func (c *Client) refClient() {
	atomic.AddInt32(&c.refcount, 1)
}

// unrefClient drops the client-level refcount; when it reaches zero the
// connection is fully torn down. Must be called on the loop thread, same
// as request refcounting.
func (c *Client) unrefClient() {
	if atomic.AddInt32(&c.refcount, -1) == 0 {
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
}
