package core

import (
	"sync/atomic"

	"github.com/watt-toolkit/servkit/pkg/servkit/channel"
	"github.com/watt-toolkit/servkit/pkg/servkit/httpparse"
	"github.com/watt-toolkit/servkit/pkg/servkit/memory"
)

// HTTPState is the request lifecycle state.
type HTTPState int

const (
	StateParsingHeaders HTTPState = iota
	StateParsingBody
	StateParsingChunkedBody
	StateUpgraded
	StateComplete
	StateFlushingOutput
	StateWaitingForReferences
	StateInFreelist
	StateError
)

func (s HTTPState) String() string {
	switch s {
	case StateParsingHeaders:
		return "PARSING_HEADERS"
	case StateParsingBody:
		return "PARSING_BODY"
	case StateParsingChunkedBody:
		return "PARSING_CHUNKED_BODY"
	case StateUpgraded:
		return "UPGRADED"
	case StateComplete:
		return "COMPLETE"
	case StateFlushingOutput:
		return "FLUSHING_OUTPUT"
	case StateWaitingForReferences:
		return "WAITING_FOR_REFERENCES"
	case StateInFreelist:
		return "IN_FREELIST"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// BodyType classifies how the request body (if any) is framed.
type BodyType int

const (
	BodyNone BodyType = iota
	BodyContentLength
	BodyChunked
	BodyUpgrade
)

// Request is the central entity: one HTTP request/response exchange on a
// connection. Requests are recycled through a Freelist (see freelist.go)
// rather than garbage-collected one at a time, to keep steady-state
// throughput free of allocator pressure.
type Request struct {
	httpState HTTPState

	httpMajor, httpMinor int
	method               httpparse.Method
	path                 memory.Scattered

	headers       httpparse.Header
	secureHeaders httpparse.Header

	bodyType          BodyType
	contentLength     int64
	bodyAlreadyRead   int64
	chunkedEndReached bool
	parseErrorCode    ParseErrorCode

	wantKeepAlive bool
	responseBegun bool

	refcount int32 // atomic; see refcount.go

	arena *memory.Arena

	bodyChannel *channel.Body

	// parserState: exactly one of these is non-nil while parsing, and both
	// are nil once parsing is done — the Go-idiomatic answer to the
	// spec's "make parserState a proper sum type" design note.
	headerParser  *httpparse.HeaderParser
	chunkedParser *httpparse.ChunkedParser

	client *Client
}

// newRequest allocates a bare Request. Called only by the Freelist when it
// has nothing to recycle.
func newRequest() *Request {
	return &Request{httpState: StateInFreelist, refcount: 1}
}

// reset clears per-request fields for reuse from the freelist. It does not
// touch refcount or client — the caller (checkout) sets those.
func (r *Request) reset() {
	r.httpState = StateParsingHeaders
	r.httpMajor, r.httpMinor = 1, 0
	r.method = httpparse.MethodUnknown
	r.path.Reset()
	r.headers.Reset()
	r.secureHeaders.Reset()
	r.bodyType = BodyNone
	r.contentLength = 0
	r.bodyAlreadyRead = 0
	r.chunkedEndReached = false
	r.parseErrorCode = ParseErrorNone
	r.wantKeepAlive = false
	r.responseBegun = false
	r.arena = nil
	r.bodyChannel = nil
	r.headerParser = nil
	r.chunkedParser = nil
}

// State returns the request's current lifecycle state.
func (r *Request) State() HTTPState { return r.httpState }

// Method returns the parsed request method.
func (r *Request) Method() httpparse.Method { return r.method }

// Path returns the parsed request path.
func (r *Request) Path() *memory.Scattered { return &r.path }

// Headers returns the parsed request headers.
func (r *Request) Headers() *httpparse.Header { return &r.headers }

// BodyType returns how the request body is framed.
func (r *Request) BodyType() BodyType { return r.bodyType }

// ContentLength returns the declared Content-Length, valid only when
// BodyType() == BodyContentLength.
func (r *Request) ContentLength() int64 { return r.contentLength }

// BodyAlreadyRead returns the cumulative count of body octets ingested.
func (r *Request) BodyAlreadyRead() int64 { return r.bodyAlreadyRead }

// WantKeepAlive reports whether the connection should be reused after this
// request completes.
func (r *Request) WantKeepAlive() bool { return r.wantKeepAlive }

// ResponseBegun reports whether WriteResponse/WriteSimpleResponse has been
// called for this request.
func (r *Request) ResponseBegun() bool { return r.responseBegun }

// Refcount returns the current reference count (for tests/introspection
// only; never branch production logic on a racy snapshot of this value).
func (r *Request) Refcount() int32 { return atomic.LoadInt32(&r.refcount) }

// Arena returns the request's allocator, or nil once detached.
func (r *Request) Arena() *memory.Arena { return r.arena }

// Client returns the owning client, or nil while in the freelist.
func (r *Request) Client() *Client { return r.client }
