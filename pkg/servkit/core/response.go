package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/watt-toolkit/servkit/pkg/servkit/httpparse"
)

// reasonPhrases is the canonical status-code → reason-phrase table used by
// WriteSimpleResponse's status line, grounded on the teacher's pre-compiled
// status-line table (constants.go) but indexed by code rather than
// special-cased per status, since this server needs any code a consumer
// asks for, not just the handful the teacher special-cases.
var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

func reasonPhrase(code int) string {
	if r, ok := reasonPhrases[code]; ok {
		return r
	}
	return "Unknown Reason-Phrase"
}

// ExtraHeader is one caller-supplied header for WriteSimpleResponse, beyond
// the four it manages itself (Content-Type, Date, Connection,
// Content-Length).
type ExtraHeader struct {
	Name  string
	Value string
}

var skippedCanonicalHeaders = map[string]bool{
	"content-type":   true,
	"date":           true,
	"connection":     true,
	"content-length": true,
}

// WriteResponse marks the response begun and enqueues raw bytes on the
// client's output channel verbatim. Response bytes written this way are
// delivered to the socket in call order.
func (s *Server) WriteResponse(client *Client, data []byte) error {
	req := client.currentRequest
	if req != nil {
		req.responseBegun = true
	}
	return client.Output.Feed(data)
}

// WriteSimpleResponse synthesizes a complete, well-formed HTTP/1.x
// response: status line, the legacy duplicate "Status:" line, canonical
// header ordering, and body (omitted for HEAD).
func (s *Server) WriteSimpleResponse(client *Client, code int, extra []ExtraHeader, body []byte) error {
	req := client.currentRequest
	req.responseBegun = true

	reason := reasonPhrase(code)

	var hasContentType, hasDate, hasConnection, hasContentLength bool
	var connectionValue string
	for _, h := range extra {
		switch normalizeHeaderName(h.Name) {
		case "content-type":
			hasContentType = true
		case "date":
			hasDate = true
		case "connection":
			hasConnection = true
			connectionValue = h.Value
		case "content-length":
			hasContentLength = true
		}
	}

	if hasConnection && !equalFoldString(connectionValue, "keep-alive") {
		req.wantKeepAlive = false
	}

	keepAlive := req.wantKeepAlive
	connectionOut := "close"
	if keepAlive {
		connectionOut = "keep-alive"
	}

	buf := make([]byte, 0, 256+len(body))
	buf = append(buf, []byte(fmt.Sprintf("HTTP/%d.%d %d %s\r\n", req.httpMajor, req.httpMinor, code, reason))...)
	buf = append(buf, []byte(fmt.Sprintf("Status: %d %s\r\n", code, reason))...)

	if !hasContentType {
		buf = append(buf, "Content-Type: text/html; charset=UTF-8\r\n"...)
	}
	if !hasDate {
		buf = append(buf, "Date: "...)
		buf = append(buf, time.Now().UTC().Format(time.RFC1123)...)
		buf = append(buf, "\r\n"...)
	}
	if !hasConnection {
		buf = append(buf, "Connection: "...)
		buf = append(buf, connectionOut...)
		buf = append(buf, "\r\n"...)
	} else {
		buf = append(buf, "Connection: "...)
		buf = append(buf, connectionValue...)
		buf = append(buf, "\r\n"...)
	}
	if !hasContentLength {
		buf = append(buf, "Content-Length: "...)
		buf = append(buf, strconv.Itoa(len(body))...)
		buf = append(buf, "\r\n"...)
	}

	for _, h := range extra {
		if skippedCanonicalHeaders[normalizeHeaderName(h.Name)] {
			continue
		}
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, "\r\n"...)
	}

	buf = append(buf, "\r\n"...)

	if req.method != httpparse.MethodHEAD {
		buf = append(buf, body...)
	}

	return client.Output.Feed(buf)
}

// EndRequest finalizes req: if no response was ever begun, a default 500 is
// emitted. The request's arena is detached (kept alive by the closure
// below, which is the only remaining holder) before the request itself is
// de-initialized, then the output channel is closed. If the output is
// already fully drained and acknowledged, the transition to
// WAITING_FOR_REFERENCES happens immediately; otherwise it is deferred to
// the output-drained callback.
//
// Idempotent: calling EndRequest twice on the same request is a no-op on
// the second call.
func (s *Server) EndRequest(client *Client) {
	req := client.currentRequest
	if req == nil {
		return
	}
	if req.httpState == StateWaitingForReferences || req.httpState == StateInFreelist || req.httpState == StateFlushingOutput {
		return
	}

	if !req.responseBegun {
		s.WriteSimpleResponse(client, 500, nil, []byte("Internal Server Error"))
	}

	arena := req.arena
	if arena != nil {
		arena.Acquire()            // output view keeps it alive past detachment
		arena.Release(s.arenaPool) // the request's own reference ends here
	}
	req.arena = nil

	keepAlive := req.wantKeepAlive

	releaseArenaView := func() {
		if arena != nil {
			arena.Release(s.arenaPool)
		}
	}

	if err := client.Output.Close(); err != nil {
		// Treat output failure as "end acknowledged" for lifecycle
		// purposes, per the spec's design note; keepAlive=false makes
		// doneWithCurrentRequest close the connection.
		releaseArenaView()
		req.httpState = StateFlushingOutput
		s.doneWithCurrentRequest(client, false)
		return
	}

	if client.Output.EndAcked() {
		releaseArenaView()
		req.httpState = StateFlushingOutput
		s.doneWithCurrentRequest(client, keepAlive)
		return
	}

	req.httpState = StateFlushingOutput
	client.Output.SetDataFlushedCallback(func() {
		releaseArenaView()
		s.doneWithCurrentRequest(client, keepAlive)
	})
}

// EndWithErrorResponse inserts Connection: close and cache-disabling
// headers, then emits the response and ends the request. Used for every
// protocol-level failure path.
func (s *Server) EndWithErrorResponse(client *Client, req *Request, code int, body string) {
	req.wantKeepAlive = false
	extra := []ExtraHeader{
		{Name: "Connection", Value: "close"},
		{Name: "Cache-Control", Value: "no-cache, no-store, must-revalidate"},
	}
	s.WriteSimpleResponse(client, code, extra, []byte(body))
	s.EndRequest(client)
}

func normalizeHeaderName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
