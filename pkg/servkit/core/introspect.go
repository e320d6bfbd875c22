package core

// ServerSnapshot is the server-level introspection payload.
type ServerSnapshot struct {
	FreeRequestCount      int    `json:"free_request_count"`
	TotalRequestsAccepted uint64 `json:"total_requests_accepted"`
}

// InspectServer returns a server-level snapshot.
func (s *Server) InspectServer() ServerSnapshot {
	return ServerSnapshot{
		FreeRequestCount:      s.freelist.Len(),
		TotalRequestsAccepted: s.totalRequestsAccepted,
	}
}

// ClientSnapshot is the client-level introspection payload.
type ClientSnapshot struct {
	Number            uint64           `json:"number"`
	EndedRequestCount int              `json:"ended_request_count"`
	CurrentRequest    *RequestSnapshot `json:"current_request,omitempty"`
}

// InspectClient returns a client-level snapshot, including the bound
// request's snapshot (if any).
func (s *Server) InspectClient(client *Client) ClientSnapshot {
	snap := ClientSnapshot{
		Number:            client.Number,
		EndedRequestCount: client.endedRequestCount,
	}
	if client.currentRequest != nil {
		rs := s.InspectRequest(client.currentRequest)
		snap.CurrentRequest = &rs
	}
	return snap
}

// RequestSnapshot is the request-level introspection payload.
type RequestSnapshot struct {
	Refcount      int32  `json:"refcount"`
	State         string `json:"state"`
	HTTPVersion   string `json:"http_version"`
	Method        string `json:"method"`
	WantKeepAlive bool   `json:"want_keep_alive"`
	BodyType      string `json:"body_type"`
	ContentLength int64  `json:"content_length,omitempty"`
	ChunkedEnded  bool   `json:"chunked_end_reached,omitempty"`
	BodyRead      int64  `json:"body_already_read"`
	ResponseBegun bool   `json:"response_begun"`
	Path          string `json:"path"`
	Host          string `json:"host,omitempty"`
	ParseError    string `json:"parse_error,omitempty"`
}

// InspectRequest returns a request-level snapshot. Per the spec, a request
// parked in the freelist must never be inspected — callers that violate
// this invariant get a panic rather than a silently wrong snapshot.
func (s *Server) InspectRequest(req *Request) RequestSnapshot {
	if req.httpState == StateInFreelist {
		panic("core: attempted to inspect a request in the freelist")
	}

	snap := RequestSnapshot{
		Refcount:      req.Refcount(),
		State:         req.httpState.String(),
		HTTPVersion:   httpVersionString(req),
		Method:        req.method.String(),
		WantKeepAlive: req.wantKeepAlive,
		BodyType:      bodyTypeString(req.bodyType),
		BodyRead:      req.bodyAlreadyRead,
		ResponseBegun: req.responseBegun,
		Path:          req.path.String(),
	}
	if req.bodyType == BodyContentLength {
		snap.ContentLength = req.contentLength
	}
	if req.bodyType == BodyChunked {
		snap.ChunkedEnded = req.chunkedEndReached
	}
	if host := req.headers.Get("Host"); host != nil {
		snap.Host = string(host)
	}
	if req.httpState == StateError {
		snap.ParseError = parseErrorName(req.parseErrorCode)
	}
	return snap
}

func httpVersionString(req *Request) string {
	switch req.httpMinor {
	case 0:
		return "1.0"
	default:
		return "1.1"
	}
}

func bodyTypeString(t BodyType) string {
	switch t {
	case BodyContentLength:
		return "CONTENT_LENGTH"
	case BodyChunked:
		return "CHUNKED"
	case BodyUpgrade:
		return "UPGRADE"
	default:
		return "NONE"
	}
}

func parseErrorName(code ParseErrorCode) string {
	switch code {
	case ParseErrorMalformedRequestLine:
		return "MALFORMED_REQUEST_LINE"
	case ParseErrorUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case ParseErrorMalformedHeader:
		return "MALFORMED_HEADER"
	case ParseErrorUpgradeRefused:
		return "UPGRADE_REFUSED"
	case ParseErrorSmuggling:
		return "SMUGGLING_PROTECTION"
	default:
		return "NONE"
	}
}
