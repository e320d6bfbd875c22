// Package core implements the HTTP connection server core: the request
// lifecycle state machine, body ingest, response emission, refcounting and
// thread-hop, connection plumbing, and introspection. It is driven by an
// external reactor (see pkg/servkit/reactor) and delegates byte framing to
// pkg/servkit/httpparse and buffered I/O to pkg/servkit/channel.
package core

import "errors"

var (
	// ErrRequestAllocationFailed surfaces a failed new-Request allocation;
	// the caller must treat it as a connection drop.
	ErrRequestAllocationFailed = errors.New("core: request allocation failed")

	// ErrUnexpectedEOF is delivered to a request's body channel when the
	// peer disconnects before a declared Content-Length is satisfied.
	ErrUnexpectedEOF = errors.New("core: unexpected EOF reading request body")

	// ErrUpgradeRefused names a refused upgrade. The core does not return
	// it: when a consumer's SupportsUpgrade hook declines, the request is
	// marked ParseErrorUpgradeRefused and answered with a 400.
	ErrUpgradeRefused = errors.New("core: upgrade refused by consumer")
)

// ParseErrorCode names the error.ERROR flavors the Error response helper
// needs to pick a status code for.
type ParseErrorCode int

const (
	ParseErrorNone ParseErrorCode = iota
	ParseErrorMalformedRequestLine
	ParseErrorUnsupportedVersion
	ParseErrorMalformedHeader
	ParseErrorUpgradeRefused
	ParseErrorSmuggling
)
