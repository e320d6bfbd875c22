// Command echoserver is a reference consumer wiring pkg/servkit/core and
// pkg/servkit/reactor into a runnable TCP server: it echoes request bodies
// back on ordinary HTTP/1.1 requests, and bridges a WebSocket upgrade onto
// the core's raw UPGRADED byte passthrough using gorilla/websocket.
package main

import (
	"errors"
	"flag"
	"log"
	"net"
	"time"

	"github.com/watt-toolkit/servkit/pkg/servkit/core"
	"github.com/watt-toolkit/servkit/pkg/servkit/reactor"
)

var errBadAddr = errors.New("echoserver: address must be a dotted IPv4 literal")

func main() {
	addr := flag.String("addr", "0.0.0.0", "address to listen on")
	port := flag.Int("port", 8080, "TCP port to listen on")
	keepAlive := flag.Duration("keepalive-timeout", 60*time.Second, "idle keep-alive connection timeout (0 disables)")
	flag.Parse()

	var ip [4]byte
	if err := parseIPv4(*addr, &ip); err != nil {
		log.Fatalf("echoserver: invalid -addr %q: %v", *addr, err)
	}

	listenFD, err := reactor.ListenTCP4(ip, *port)
	if err != nil {
		log.Fatalf("echoserver: listen: %v", err)
	}

	// handler and server reference each other; handler is constructed
	// first with a nil server and patched once the server exists, since
	// reactor.New needs a Handler before core.NewServer can exist (it
	// needs a core.Loop) and core.NewServer needs that same Loop.
	handler := &serverHandler{}
	loop, err := reactor.New(listenFD, handler, reactor.Config{KeepAliveTimeout: *keepAlive})
	if err != nil {
		log.Fatalf("echoserver: reactor.New: %v", err)
	}

	hooks := newEchoHooks(loop)
	server := core.NewServer(hooks, loop, core.DefaultConfig())
	handler.server = server
	hooks.server = server

	log.Printf("echoserver: listening on %s:%d", *addr, *port)
	if err := loop.Run(); err != nil {
		log.Fatalf("echoserver: loop exited: %v", err)
	}
}

func parseIPv4(s string, out *[4]byte) error {
	ip := net.ParseIP(s)
	if ip == nil {
		return errBadAddr
	}
	v4 := ip.To4()
	if v4 == nil {
		return errBadAddr
	}
	copy(out[:], v4)
	return nil
}
