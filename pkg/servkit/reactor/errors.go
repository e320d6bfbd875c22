package reactor

import "errors"

var (
	// errConnectionClosed marks an orderly peer-initiated close (read
	// returned 0 bytes).
	errConnectionClosed = errors.New("reactor: connection closed by peer")

	// errPeerHungUp marks an EPOLLHUP/EPOLLERR condition.
	errPeerHungUp = errors.New("reactor: peer hung up")

	// errKeepAliveTimeout marks a connection closed for sitting idle past
	// its keep-alive deadline.
	errKeepAliveTimeout = errors.New("reactor: keep-alive timeout")
)
