package core

import (
	"io"

	"github.com/watt-toolkit/servkit/pkg/servkit/channel"
	"github.com/watt-toolkit/servkit/pkg/servkit/httpparse"
	"github.com/watt-toolkit/servkit/pkg/servkit/memory"
)

// Server owns the shared, loop-thread-only state: the request freelist,
// the arena and parser-state pools, and the hooks/loop collaborators. One
// Server instance serves every client on a given reactor loop.
type Server struct {
	hooks  Hooks
	loop   Loop
	config Config

	freelist   *Freelist
	arenaPool  *memory.ArenaPool
	parserPool *httpparse.Pool

	nextClientNumber      uint64
	totalRequestsAccepted uint64
}

// NewServer wires a Server around the given hooks, loop, and config.
func NewServer(hooks Hooks, loop Loop, config Config) *Server {
	return &Server{
		hooks:      hooks,
		loop:       loop,
		config:     config,
		freelist:   NewFreelist(config.RequestFreelistLimit),
		arenaPool:  memory.NewArenaPool(),
		parserPool: httpparse.NewPool(),
	}
}

// NewClient allocates a Client bound to conn, firing OnClientObjectCreated.
func (s *Server) NewClient(conn io.Closer, out io.Writer) *Client {
	s.nextClientNumber++
	c := &Client{
		Number:   s.nextClientNumber,
		Conn:     conn,
		refcount: 1,
	}
	c.Output = channel.NewOutput(out)
	s.hooks.OnClientObjectCreated(c)
	return c
}

// OnClientAccepted binds the first request to a freshly accepted client.
func (s *Server) OnClientAccepted(client *Client) {
	s.handleNextRequest(client)
}

// OnClientDisconnecting cleans up a still-bound request (idempotent
// de-initialization, promotion to WAITING_FOR_REFERENCES, dereference) even
// if EndRequest was never called — a peer hanging up mid-request must never
// leak.
func (s *Server) OnClientDisconnecting(client *Client) {
	// A body still being received ends with ErrUnexpectedEOF before the
	// request is torn down.
	if req := client.currentRequest; req != nil {
		s.onClientDataEOF(client, req, nil)
	}
	if client.Output != nil {
		client.Output.Abort()
	}

	req := client.currentRequest
	if req != nil && req.httpState != StateWaitingForReferences && req.httpState != StateInFreelist {
		client.currentRequest = nil

		if req.arena != nil {
			req.arena.Release(s.arenaPool)
			req.arena = nil
		}
		if req.headerParser != nil {
			s.parserPool.PutHeaderParser(req.headerParser)
			req.headerParser = nil
		}
		if req.chunkedParser != nil {
			s.parserPool.PutChunkedParser(req.chunkedParser)
			req.chunkedParser = nil
		}

		s.hooks.DeinitializeRequest(client, req)
		req.httpState = StateWaitingForReferences
		client.addEndedRequest(req)
		s.UnrefRequest(req)
	}
}

// FreelistLen exposes the current freelist occupancy, mostly for tests and
// introspection.
func (s *Server) FreelistLen() int { return s.freelist.Len() }

// disconnectClient closes the underlying connection once the core itself
// decides a connection must not be reused (no keep-alive). Closing the
// socket here, rather than waiting on the reactor to notice, is what lets
// a non-keep-alive response path proceed straight to connection teardown
// instead of idling until some outside timeout fires.
func (s *Server) disconnectClient(client *Client) {
	if client.Conn != nil {
		client.Conn.Close()
	}
}
