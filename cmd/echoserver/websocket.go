package main

import (
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/watt-toolkit/servkit/pkg/servkit/core"
)

// websocketGUID is the RFC 6455 §1.3 handshake magic string.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func computeAcceptKey(key []byte) string {
	h := sha1.New()
	h.Write(key)
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

const (
	wsReadBufferSize  = 4096
	wsWriteBufferSize = 4096
)

// wsBridge wraps one upgraded connection's raw byte passthrough as a
// gorilla/websocket connection. The core hands bytes to OnRequestBody
// push-style as they arrive off the socket; gorilla's Conn.ReadMessage
// expects to pull from a net.Conn. byteQueue is the adapter between the
// two: Push never blocks (safe to call from the reactor's loop thread),
// Read blocks (safe only off the loop thread, which is why the gorilla
// side always runs on its own goroutine below).
type wsBridge struct {
	hooks  *echoHooks
	client *core.Client
	queue  *byteQueue
	conn   *websocket.Conn
}

func newWSBridge(h *echoHooks, client *core.Client) *wsBridge {
	b := &wsBridge{hooks: h, client: client, queue: newByteQueue()}
	b.conn = websocket.NewConn(&wsNetConn{bridge: b}, true, wsReadBufferSize, wsWriteBufferSize)
	go b.echoLoop()
	return b
}

func (b *wsBridge) feed(data []byte) { b.queue.push(data) }

func (b *wsBridge) close() { b.queue.close() }

// echoLoop runs on its own goroutine (never the reactor's loop thread)
// since ReadMessage blocks waiting on byteQueue.Read.
func (b *wsBridge) echoLoop() {
	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := b.conn.WriteMessage(messageType, data); err != nil {
			return
		}
	}
}

// wsNetConn satisfies net.Conn well enough for gorilla/websocket's frame
// codec: Read/Write are all it actually calls on a server-side Conn built
// via NewConn. Deadlines are accepted and ignored — the reactor's own
// keep-alive timer already bounds an idle upgraded connection's lifetime.
type wsNetConn struct {
	bridge *wsBridge
}

func (c *wsNetConn) Read(p []byte) (int, error) { return c.bridge.queue.read(p) }

// Write hops onto the reactor's loop thread via RunOnLoop: gorilla's
// WriteMessage is called from echoLoop's own goroutine, but core.Client's
// output channel is loop-thread-owned state, exactly like every other
// write path into it.
func (c *wsNetConn) Write(p []byte) (int, error) {
	done := make(chan error, 1)
	c.bridge.hooks.loop.RunOnLoop(func() {
		done <- c.bridge.hooks.server.WriteResponse(c.bridge.client, p)
	})
	if err := <-done; err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsNetConn) Close() error                       { c.bridge.close(); return nil }
func (c *wsNetConn) LocalAddr() net.Addr                { return wsAddr{} }
func (c *wsNetConn) RemoteAddr() net.Addr               { return wsAddr{} }
func (c *wsNetConn) SetDeadline(t time.Time) error      { return nil }
func (c *wsNetConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *wsNetConn) SetWriteDeadline(t time.Time) error { return nil }

type wsAddr struct{}

func (wsAddr) Network() string { return "tcp" }
func (wsAddr) String() string  { return "servkit-upgraded-connection" }

// byteQueue is a blocking-read, non-blocking-push byte FIFO: the producer
// side (the reactor loop feeding bytes off the socket) must never stall,
// the consumer side (gorilla's read pump, on its own goroutine) is allowed
// to block waiting for more.
type byteQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newByteQueue() *byteQueue {
	q := &byteQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *byteQueue) push(data []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, data...)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *byteQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *byteQueue) read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}
