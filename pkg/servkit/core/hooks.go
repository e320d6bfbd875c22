package core

import "github.com/watt-toolkit/servkit/pkg/servkit/channel"

// Hooks is the capability interface a consumer supplies to customize
// per-request and per-client behavior. It replaces the source's template
// subclassing + virtual-hook surface with a single Go interface the core
// calls into — no inheritance depth required.
type Hooks interface {
	// OnClientObjectCreated is called once per accepted client, before the
	// first request is bound; typical use is installing an
	// output-drained callback.
	OnClientObjectCreated(client *Client)

	// OnRequestObjectCreated is called once per Request object, when
	// checkout has to allocate it because the freelist is empty, to wire
	// per-request channel hooks. Recycled objects do not trigger it.
	OnRequestObjectCreated(client *Client, req *Request)

	// OnRequestBegin is called exactly once per request, after headers are
	// parsed and the body mode has been decided.
	OnRequestBegin(client *Client, req *Request)

	// OnRequestBody delivers body bytes (data == nil, err == nil marks
	// clean EOF; data == nil, err != nil marks a body-level error such as
	// ErrUnexpectedEOF).
	OnRequestBody(client *Client, req *Request, data []byte, err error) channel.Result

	// SupportsUpgrade predicates whether an HTTP Upgrade request is
	// accepted for this request.
	SupportsUpgrade(client *Client, req *Request) bool

	// ReinitializeRequest/DeinitializeRequest are extension points for
	// consumer per-request state. DeinitializeRequest MUST be idempotent:
	// it is called by both EndRequest and OnClientDisconnecting.
	ReinitializeRequest(client *Client, req *Request)
	DeinitializeRequest(client *Client, req *Request)
}

// Loop is the subset of the external reactor the core depends on: knowing
// whether the calling goroutine is the loop "thread", and a way to post a
// closure onto it. See pkg/servkit/reactor for the concrete implementation
// (an actual epoll-driven single-goroutine loop).
type Loop interface {
	OnLoopThread() bool
	RunOnLoop(fn func())
}
