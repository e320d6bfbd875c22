package core

import "github.com/watt-toolkit/servkit/pkg/servkit/httpparse"

// OnClientDataReceived is the single entry point the input channel calls
// with bytes read off the socket (or an EOF/error signal via errcode). It
// dispatches based on the current request's httpState and returns the
// number of input bytes consumed, which is what the reactor's buffer
// bookkeeping expects back.
func (s *Server) OnClientDataReceived(client *Client, buf []byte, errcode error) int {
	req := client.currentRequest
	if req == nil {
		return 0
	}

	if errcode != nil && len(buf) == 0 {
		s.onClientDataEOF(client, req, errcode)
		return 0
	}

	switch req.httpState {
	case StateParsingHeaders:
		return s.ingestHeaderBytes(client, req, buf)
	case StateParsingBody:
		return s.ingestContentLengthBody(client, req, buf)
	case StateParsingChunkedBody:
		return s.ingestChunkedBody(client, req, buf)
	case StateUpgraded:
		return s.ingestUpgradeBytes(client, req, buf)
	default:
		// Bytes arriving in a terminal state are surplus pipelining the
		// core doesn't support yet; drop them without consuming.
		return 0
	}
}

func (s *Server) ingestHeaderBytes(client *Client, req *Request, buf []byte) int {
	consumed, err := req.headerParser.Feed(req.arena, buf)
	if err != nil {
		s.failParse(client, req, statusForHeaderError(err), classifyHeaderError(err))
		return consumed
	}
	if req.headerParser.Done() {
		s.onHeadersParsed(client, req)
	}
	return consumed
}

func (s *Server) ingestContentLengthBody(client *Client, req *Request, buf []byte) int {
	remaining := req.contentLength - req.bodyAlreadyRead
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	clamped := buf[:n]
	req.bodyAlreadyRead += n

	body := req.bodyChannel
	body.Feed(clamped)
	if req.bodyChannel != body {
		// The consumer ended the request during delivery and the client
		// has already moved on to its next request.
		return int(n)
	}
	if req.bodyAlreadyRead >= req.contentLength {
		if req.httpState == StateParsingBody {
			req.httpState = StateComplete
			client.Input.Stop()
		}
		body.FeedEOF()
		return int(n)
	}

	if req.bodyChannel.PassedThreshold() {
		client.Input.Stop()
		s.armBuffersFlushedCallback(client, req)
	} else {
		s.recheckBodyComplete(client, req)
	}
	return int(n)
}

func (s *Server) ingestChunkedBody(client *Client, req *Request, buf []byte) int {
	req.bodyAlreadyRead += int64(len(buf))

	var decoded []byte
	consumed, err := req.chunkedParser.Feed(buf, &decoded)
	if err != nil {
		s.failParse(client, req, 400, ParseErrorMalformedHeader)
		return consumed
	}
	if len(decoded) > 0 {
		req.bodyChannel.Feed(decoded)
	}
	if req.chunkedParser.Done() {
		req.chunkedEndReached = true
		s.parserPool.PutChunkedParser(req.chunkedParser)
		req.chunkedParser = nil
		req.httpState = StateComplete
		client.Input.Stop()
		req.bodyChannel.FeedEOF()
	} else if req.bodyChannel.PassedThreshold() {
		client.Input.Stop()
		s.armBuffersFlushedCallback(client, req)
	}
	return consumed
}

func (s *Server) ingestUpgradeBytes(client *Client, req *Request, buf []byte) int {
	req.bodyChannel.Feed(buf)
	if req.bodyChannel.PassedThreshold() {
		client.Input.Stop()
		s.armBuffersFlushedCallback(client, req)
	}
	return len(buf)
}

// onClientDataEOF handles an orderly (errcode set, zero-length read) or
// error EOF arriving mid-body.
func (s *Server) onClientDataEOF(client *Client, req *Request, errcode error) {
	switch req.httpState {
	case StateParsingBody:
		if req.bodyAlreadyRead < req.contentLength {
			req.bodyChannel.FeedError(ErrUnexpectedEOF)
		} else {
			req.bodyChannel.FeedEOF()
		}
	case StateParsingChunkedBody:
		req.bodyChannel.FeedError(ErrUnexpectedEOF)
	case StateUpgraded:
		req.bodyChannel.FeedEOF()
	}
}

func statusForHeaderError(err error) int {
	if err == httpparse.ErrUnsupportedVersion {
		return 505
	}
	return 400
}

func classifyHeaderError(err error) ParseErrorCode {
	switch err {
	case httpparse.ErrUnsupportedVersion:
		return ParseErrorUnsupportedVersion
	case httpparse.ErrInvalidRequestLine, httpparse.ErrInvalidMethod:
		return ParseErrorMalformedRequestLine
	default:
		return ParseErrorMalformedHeader
	}
}
