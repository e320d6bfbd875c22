package httpparse

import (
	"bytes"

	"github.com/watt-toolkit/servkit/pkg/servkit/memory"
)

// Method is the parsed HTTP request method.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGET
	MethodHEAD
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodCONNECT
	MethodOPTIONS
	MethodTRACE
	MethodPATCH
)

var methodTable = map[string]Method{
	"GET":     MethodGET,
	"HEAD":    MethodHEAD,
	"POST":    MethodPOST,
	"PUT":     MethodPUT,
	"DELETE":  MethodDELETE,
	"CONNECT": MethodCONNECT,
	"OPTIONS": MethodOPTIONS,
	"TRACE":   MethodTRACE,
	"PATCH":   MethodPATCH,
}

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodHEAD:
		return "HEAD"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodDELETE:
		return "DELETE"
	case MethodCONNECT:
		return "CONNECT"
	case MethodOPTIONS:
		return "OPTIONS"
	case MethodTRACE:
		return "TRACE"
	case MethodPATCH:
		return "PATCH"
	default:
		return ""
	}
}

type headerParseState uint8

const (
	stateRequestLine headerParseState = iota
	stateHeaderLine
	stateDone
)

// defaultMaxRequestLine and defaultMaxHeaderBlock bound the amount of data a
// single request's header parse will accumulate before giving up, guarding
// against a peer that never sends a terminating CRLFCRLF.
const (
	defaultMaxRequestLine = 8 * 1024
	defaultMaxHeaderBlock = 80 * 1024
)

// HeaderParser is the feed-driven tokenizer for the request line and header
// block. It is pooled (see Pool) and reset between requests.
type HeaderParser struct {
	state headerParseState

	lineBuf []byte // accumulates partial lines across Feed calls

	maxRequestLine int
	maxHeaderBlock int
	headerBytes    int

	Method   Method
	Path     memory.Scattered
	Version  uint8 // 0 = HTTP/1.0, 1 = HTTP/1.1
	Headers  Header
}

// NewHeaderParser returns a parser with default size limits.
func NewHeaderParser() *HeaderParser {
	return &HeaderParser{
		maxRequestLine: defaultMaxRequestLine,
		maxHeaderBlock: defaultMaxHeaderBlock,
	}
}

// Reset prepares the parser for a new request.
func (p *HeaderParser) Reset() {
	p.state = stateRequestLine
	p.lineBuf = p.lineBuf[:0]
	p.headerBytes = 0
	p.Method = MethodUnknown
	// A fresh zero value rather than Path.Reset(): the caller (core) takes
	// ownership of this Scattered's backing slice by copying it out of the
	// parser once parsing completes, and the parser itself gets pooled and
	// reused by a different request next — Reset() would leave that future
	// reuse appending into the same backing array the prior owner still
	// holds a read-only reference to.
	p.Path = memory.Scattered{}
	p.Version = 0
	p.Headers.Reset()
}

// Done reports whether the full header block (request line + all headers)
// has been parsed.
func (p *HeaderParser) Done() bool { return p.state == stateDone }

// Feed consumes as much of buf as forms complete lines, returning the
// number of bytes consumed. Once Done reports true, any unconsumed
// remainder of buf is body data the caller should hand to the body
// ingest path instead.
func (p *HeaderParser) Feed(a *memory.Arena, buf []byte) (consumed int, err error) {
	total := 0
	for total < len(buf) && p.state != stateDone {
		idx := bytes.IndexByte(buf[total:], '\n')
		if idx < 0 {
			// No complete line yet; buffer the remainder for next Feed.
			p.lineBuf = append(p.lineBuf, buf[total:]...)
			if err := p.checkLimits(); err != nil {
				return total, err
			}
			total = len(buf)
			break
		}

		line := buf[total : total+idx+1]
		total += idx + 1

		var full []byte
		if len(p.lineBuf) > 0 {
			p.lineBuf = append(p.lineBuf, line...)
			full = p.lineBuf
		} else {
			full = line
		}

		full = trimCRLF(full)

		switch p.state {
		case stateRequestLine:
			if err := p.parseRequestLine(a, full); err != nil {
				return total, err
			}
			p.state = stateHeaderLine
		case stateHeaderLine:
			if len(full) == 0 {
				p.state = stateDone
				break
			}
			if err := p.parseHeaderLine(a, full); err != nil {
				return total, err
			}
		}

		p.lineBuf = p.lineBuf[:0]
		if err := p.checkLimits(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *HeaderParser) checkLimits() error {
	if p.state == stateRequestLine && len(p.lineBuf) > p.maxRequestLine {
		return ErrRequestLineTooLarge
	}
	if p.state == stateHeaderLine {
		p.headerBytes += len(p.lineBuf)
		if p.headerBytes > p.maxHeaderBlock {
			return ErrHeadersTooLarge
		}
	}
	return nil
}

func trimCRLF(b []byte) []byte {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return b[:n]
}

func (p *HeaderParser) parseRequestLine(a *memory.Arena, line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return ErrInvalidRequestLine
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		return ErrInvalidRequestLine
	}

	methodBytes := line[:sp1]
	pathBytes := rest[:sp2]
	versionBytes := rest[sp2+1:]

	method, ok := methodTable[string(methodBytes)]
	if !ok {
		return ErrInvalidMethod
	}
	p.Method = method

	if len(pathBytes) == 0 {
		return ErrInvalidRequestLine
	}
	p.Path.Append(a, pathBytes)

	switch string(versionBytes) {
	case "HTTP/1.1":
		p.Version = 1
	case "HTTP/1.0":
		p.Version = 0
	default:
		return ErrUnsupportedVersion
	}
	return nil
}

func (p *HeaderParser) parseHeaderLine(a *memory.Arena, line []byte) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return ErrInvalidHeader
	}
	name := bytes.TrimSpace(line[:colon])
	value := bytes.TrimSpace(line[colon+1:])
	if len(name) == 0 {
		return ErrInvalidHeader
	}
	p.Headers.add(a.Clone(name), a.Clone(value))
	return nil
}
