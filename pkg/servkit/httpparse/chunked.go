package httpparse

import "bytes"

type chunkedState uint8

const (
	chunkedStateSize chunkedState = iota
	chunkedStateExt
	chunkedStateData
	chunkedStateDataCRLF
	chunkedStateTrailer
	chunkedStateDone
)

// defaultMaxChunkSize and defaultMaxTrailerSize bound a single chunk and the
// trailer section respectively, guarding against a peer claiming an
// enormous chunk size or never terminating the trailer block.
const (
	defaultMaxChunkSize   = 16 * 1024 * 1024
	defaultMaxTrailerSize = 16 * 1024
)

// ChunkedParser is the feed-driven tokenizer for RFC 7230 §4.1 chunked
// transfer-encoding bodies. Unlike the teacher's io.Reader-based
// ChunkedReader, it is fed bytes as they arrive off the socket and reports,
// for each Feed call, how many input bytes were consumed and how many
// output (de-chunked) bytes it produced into the caller-supplied dst.
type ChunkedParser struct {
	state chunkedState

	remaining int64 // bytes left in the current chunk's data
	lineBuf   []byte

	maxChunkSize   int64
	maxTrailerSize int
	trailerBytes   int
}

// NewChunkedParser returns a parser with default size limits.
func NewChunkedParser() *ChunkedParser {
	return &ChunkedParser{
		maxChunkSize:   defaultMaxChunkSize,
		maxTrailerSize: defaultMaxTrailerSize,
	}
}

// Reset prepares the parser for a new chunked body.
func (c *ChunkedParser) Reset() {
	c.state = chunkedStateSize
	c.remaining = 0
	c.lineBuf = c.lineBuf[:0]
	c.trailerBytes = 0
}

// Done reports whether the terminating chunk and trailer section have been
// fully consumed.
func (c *ChunkedParser) Done() bool { return c.state == chunkedStateDone }

// Feed consumes src, appending de-chunked body bytes to dst (which the
// caller should reset before each call) and returning how much of src was
// consumed.
func (c *ChunkedParser) Feed(src []byte, dst *[]byte) (consumed int, err error) {
	total := 0
	for total < len(src) && c.state != chunkedStateDone {
		switch c.state {
		case chunkedStateSize:
			n, ok, err := c.feedLine(src[total:])
			total += n
			if err != nil {
				return total, err
			}
			if !ok {
				return total, nil
			}
			size, err := parseChunkSize(c.lineBuf)
			if err != nil {
				return total, err
			}
			if size > c.maxChunkSize {
				return total, ErrChunkTooLarge
			}
			c.lineBuf = c.lineBuf[:0]
			c.remaining = size
			if size == 0 {
				c.state = chunkedStateTrailer
			} else {
				c.state = chunkedStateData
			}

		case chunkedStateData:
			n := len(src) - total
			if int64(n) > c.remaining {
				n = int(c.remaining)
			}
			*dst = append(*dst, src[total:total+n]...)
			total += n
			c.remaining -= int64(n)
			if c.remaining == 0 {
				c.state = chunkedStateDataCRLF
			}

		case chunkedStateDataCRLF:
			n, ok, err := c.feedLine(src[total:])
			total += n
			if err != nil {
				return total, err
			}
			if !ok {
				return total, nil
			}
			if len(c.lineBuf) != 0 {
				return total, ErrInvalidChunkTerminator
			}
			c.lineBuf = c.lineBuf[:0]
			c.state = chunkedStateSize

		case chunkedStateTrailer:
			n, ok, err := c.feedLine(src[total:])
			total += n
			if err != nil {
				return total, err
			}
			if !ok {
				return total, nil
			}
			c.trailerBytes += len(c.lineBuf)
			if c.trailerBytes > c.maxTrailerSize {
				return total, ErrTrailerTooLarge
			}
			empty := len(c.lineBuf) == 0
			c.lineBuf = c.lineBuf[:0]
			if empty {
				c.state = chunkedStateDone
			}
		}
	}
	return total, nil
}

// feedLine accumulates bytes into c.lineBuf until a CRLF-terminated line is
// complete, returning the bytes consumed from src and whether a full line
// (stripped of its terminator, left in c.lineBuf) is now available.
func (c *ChunkedParser) feedLine(src []byte) (consumed int, ok bool, err error) {
	idx := bytes.IndexByte(src, '\n')
	if idx < 0 {
		c.lineBuf = append(c.lineBuf, src...)
		return len(src), false, nil
	}
	c.lineBuf = append(c.lineBuf, src[:idx+1]...)
	c.lineBuf = trimCRLF(c.lineBuf)
	return idx + 1, true, nil
}

func parseChunkSize(line []byte) (int64, error) {
	// Chunk extensions (";ext=value") are intentionally ignored, not just
	// for simplicity but because honoring unknown extensions is itself a
	// smuggling vector.
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, ErrInvalidChunkSize
	}
	var n int64
	for _, b := range line {
		var d int64
		switch {
		case '0' <= b && b <= '9':
			d = int64(b - '0')
		case 'a' <= b && b <= 'f':
			d = int64(b-'a') + 10
		case 'A' <= b && b <= 'F':
			d = int64(b-'A') + 10
		default:
			return 0, ErrInvalidChunkSize
		}
		n = n*16 + d
		if n < 0 {
			return 0, ErrInvalidChunkSize
		}
	}
	return n, nil
}
