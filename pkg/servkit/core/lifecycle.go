package core

import "github.com/watt-toolkit/servkit/pkg/servkit/channel"

// handleNextRequest binds a fresh Request (new or recycled) to client and
// arms its input channel. Called on accept and again after each keep-alive
// reuse.
func (s *Server) handleNextRequest(client *Client) {
	isNewObject := s.freelist.Len() == 0
	req := s.freelist.Checkout(client)
	req.arena = s.arenaPool.Get()
	req.headerParser = s.parserPool.GetHeaderParser()

	client.currentRequest = req
	client.Input.Start()
	client.refClient()

	if isNewObject {
		s.hooks.OnRequestObjectCreated(client, req)
	}
	s.hooks.ReinitializeRequest(client, req)
	s.totalRequestsAccepted++
}

// doneWithCurrentRequest releases the request's own arena reference (the
// final one, unless an output-flush view is still outstanding) and, on
// keep-alive, immediately starts the next request on the same client.
func (s *Server) doneWithCurrentRequest(client *Client, keepAlive bool) {
	req := client.currentRequest
	if req == nil {
		return
	}
	client.currentRequest = nil

	if req.arena != nil {
		req.arena.Release(s.arenaPool)
		req.arena = nil
	}

	s.hooks.DeinitializeRequest(client, req)
	req.httpState = StateWaitingForReferences
	client.addEndedRequest(req)
	s.UnrefRequest(req)

	if keepAlive {
		s.handleNextRequest(client)
	} else {
		s.disconnectClient(client)
	}
}

// onHeadersParsed is invoked once the header parser reports Done(). It
// decides the body mode, fires onRequestBegin, and transitions state.
func (s *Server) onHeadersParsed(client *Client, req *Request) {
	hp := req.headerParser
	req.method = hp.Method
	req.path = hp.Path
	req.headers = hp.Headers
	req.httpMinor = int(hp.Version)
	req.httpMajor = 1

	s.parserPool.PutHeaderParser(hp)
	req.headerParser = nil

	req.wantKeepAlive = s.computeWantKeepAlive(req)

	if err := req.headers.ValidateNoSmuggling(); err != nil {
		s.failParse(client, req, 400, ParseErrorSmuggling)
		return
	}

	cl := req.headers.Get("Content-Length")
	te := req.headers.Get("Transfer-Encoding")

	switch {
	case req.headers.IsConnectionUpgrade():
		if !s.hooks.SupportsUpgrade(client, req) {
			s.failParse(client, req, 400, ParseErrorUpgradeRefused)
			return
		}
		req.bodyType = BodyUpgrade
		req.httpState = StateUpgraded
		s.beginBodyChannel(client, req)
		s.hooks.OnRequestBegin(client, req)

	case te != nil:
		req.bodyType = BodyChunked
		req.chunkedParser = s.parserPool.GetChunkedParser()
		req.httpState = StateParsingChunkedBody
		s.beginBodyChannel(client, req)
		s.hooks.OnRequestBegin(client, req)

	case cl != nil:
		n, ok := parseContentLength(cl)
		if !ok {
			s.failParse(client, req, 400, ParseErrorMalformedHeader)
			return
		}
		req.bodyType = BodyContentLength
		req.contentLength = n
		s.beginBodyChannel(client, req)
		if n == 0 {
			req.httpState = StateComplete
			client.Input.Stop()
			s.hooks.OnRequestBegin(client, req)
			req.bodyChannel.FeedEOF()
		} else {
			req.httpState = StateParsingBody
			s.hooks.OnRequestBegin(client, req)
		}

	default:
		req.bodyType = BodyNone
		req.httpState = StateComplete
		client.Input.Stop()
		s.hooks.OnRequestBegin(client, req)
	}
}

func (s *Server) beginBodyChannel(client *Client, req *Request) {
	req.bodyChannel = channel.NewBody()
	req.bodyChannel.SetThreshold(s.config.BodyWatermark)
	req.bodyChannel.SetDataCallback(func(data []byte, err error) channel.Result {
		return s.hooks.OnRequestBody(client, req, data, err)
	})
	s.armBuffersFlushedCallback(client, req)
}

// armBuffersFlushedCallback (re-)installs the buffers-flushed callback.
// Body.drain() consumes the callback the instant it fires, so every site
// that stops client.Input on a threshold crossing must re-arm it — a body
// that crosses the watermark more than once in its lifetime would otherwise
// leave client.Input stopped forever after the second crossing.
func (s *Server) armBuffersFlushedCallback(client *Client, req *Request) {
	req.bodyChannel.SetBuffersFlushedCallback(func() {
		client.Input.Start()
		s.recheckBodyComplete(client, req)
	})
}

// recheckBodyComplete re-evaluates whether a Content-Length body just
// became fully read, since reaching the declared length can coincide with
// a threshold crossing that only resolves once buffers flush.
func (s *Server) recheckBodyComplete(client *Client, req *Request) {
	if req.bodyType == BodyContentLength && req.bodyAlreadyRead >= req.contentLength {
		req.httpState = StateComplete
		client.Input.Stop()
	}
}

func (s *Server) computeWantKeepAlive(req *Request) bool {
	if req.httpMinor == 0 {
		// HTTP/1.0 defaults to close unless Connection: keep-alive is set.
		v := req.headers.Get("Connection")
		return v != nil && equalFoldString(string(v), "keep-alive")
	}
	v := req.headers.Get("Connection")
	if v == nil {
		return true
	}
	return equalFoldString(string(v), "keep-alive")
}

func equalFoldString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ac, bc := a[i], b[i]
		if 'A' <= ac && ac <= 'Z' {
			ac += 'a' - 'A'
		}
		if 'A' <= bc && bc <= 'Z' {
			bc += 'a' - 'A'
		}
		if ac != bc {
			return false
		}
	}
	return true
}

func parseContentLength(v []byte) (int64, bool) {
	if len(v) == 0 {
		return 0, false
	}
	var n int64
	for _, b := range v {
		if b < '0' || b > '9' {
			return 0, false
		}
		n = n*10 + int64(b-'0')
		if n < 0 {
			return 0, false
		}
	}
	return n, true
}

// failParse moves a request straight to COMPLETE (so the error response
// body is permitted to write, per §4.C's tie-break rule) then emits the
// matching error response and ends the request.
func (s *Server) failParse(client *Client, req *Request, status int, code ParseErrorCode) {
	req.httpState = StateComplete
	req.parseErrorCode = code
	client.Input.Stop()
	s.EndWithErrorResponse(client, req, status, reasonForParseError(code))
}

func reasonForParseError(code ParseErrorCode) string {
	switch code {
	case ParseErrorMalformedRequestLine:
		return "Malformed request line"
	case ParseErrorUnsupportedVersion:
		return "Unsupported HTTP version"
	case ParseErrorMalformedHeader:
		return "Malformed header"
	case ParseErrorUpgradeRefused:
		return "Upgrade refused"
	case ParseErrorSmuggling:
		return "Request smuggling protection triggered"
	default:
		return "Bad request"
	}
}
