// Package reactor implements the single-goroutine epoll event loop that
// drives a pkg/servkit/core.Server: socket readiness, the RunOnLoop
// thread-hop primitive core.Loop requires, and keep-alive deadline timers.
// Exactly one goroutine ever touches core state, matching the core's
// "no locks, loop-thread-only" concurrency model.
package reactor

import (
	"container/heap"
	"encoding/binary"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/watt-toolkit/servkit/pkg/servkit/core"
)

const maxEvents = 128

// Handler adapts accepted connections into a core.Server, keeping this
// package free of any direct core.Server dependency beyond the core.Client
// type: the reactor only knows sockets and readiness, the handler (see
// cmd/echoserver) owns translating that into core.Server calls.
type Handler interface {
	// OnAccept is called once per freshly accepted, non-blocking
	// connection. It must return the core.Client the reactor should drive
	// reads/writes against, or ok=false to refuse the connection (the
	// reactor closes the fd itself in that case).
	OnAccept(conn *Conn) (client *core.Client, ok bool)

	// OnData delivers bytes read off client's socket (or errcode with a
	// nil/empty data on EOF/error) and returns how many bytes were
	// consumed, exactly matching core.Server.OnClientDataReceived's
	// contract — the reactor re-feeds any unconsumed remainder.
	OnData(client *core.Client, data []byte, errcode error) int

	// OnDisconnect is called when the reactor itself detects the peer
	// went away (read error, EOF, EPOLLHUP/EPOLLERR) — not for a
	// core-initiated close, which the core already finalized before
	// closing the socket.
	OnDisconnect(client *core.Client)
}

// Loop is one epoll instance plus its single owning goroutine.
type Loop struct {
	epfd     int
	wakeFD   int
	listenFD int

	handler Handler

	mu       sync.Mutex
	runQueue []func()

	loopTID    int
	loopTIDSet bool

	conns map[int]*Conn

	timers         timerHeap
	keepAliveAfter time.Duration

	// readBuf is a single scratch buffer reused across every read on the
	// loop thread. Safe because every consumer downstream (arena.Clone,
	// bytebufferpool.Set) copies out of it before returning.
	readBuf [readBufferSize]byte

	stopped bool
}

const readBufferSize = 64 * 1024

// Config tunes the loop.
type Config struct {
	// KeepAliveTimeout is how long a keep-alive connection may go without a
	// read from the peer before the reactor closes it. The deadline is
	// re-armed on accept and after every read; writes do not re-arm it.
	// Zero disables the timer entirely.
	KeepAliveTimeout time.Duration
}

// New creates a Loop bound to an already-listening, non-blocking socket fd.
// The caller owns setting up the listener (see ListenTCP4 in listener.go).
func New(listenFD int, handler Handler, cfg Config) (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	l := &Loop{
		epfd:           epfd,
		wakeFD:         wakeFD,
		listenFD:       listenFD,
		handler:        handler,
		conns:          make(map[int]*Conn),
		keepAliveAfter: cfg.KeepAliveTimeout,
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(listenFD),
	}); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFD)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFD)
		return nil, err
	}

	return l, nil
}

// Run pins the calling goroutine to its OS thread and blocks, servicing
// epoll events until Stop is called. The goroutine that calls Run is the
// loop's thread for the lifetime of this call — OnLoopThread reports true
// only from it.
func (l *Loop) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopTID = unix.Gettid()
	l.loopTIDSet = true

	events := make([]unix.EpollEvent, maxEvents)
	for !l.stopped {
		timeout := l.nextTimeout()
		n, err := unix.EpollWait(l.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case l.listenFD:
				l.acceptLoop()
			case l.wakeFD:
				l.drainWake()
				l.drainRunQueue()
			default:
				l.handleEvent(fd, events[i].Events)
			}
		}

		l.fireExpiredTimers()
	}
	return nil
}

// Stop requests the loop exit after its current EpollWait call returns.
// Safe to call from any goroutine.
func (l *Loop) Stop() {
	l.RunOnLoop(func() { l.stopped = true })
}

// OnLoopThread reports whether the calling goroutine is the loop's pinned
// OS thread, implementing core.Loop.
func (l *Loop) OnLoopThread() bool {
	return l.loopTIDSet && unix.Gettid() == l.loopTID
}

// RunOnLoop implements core.Loop: fn runs synchronously if we're already on
// the loop thread, otherwise it is queued and the loop is woken via the
// eventfd self-pipe so EpollWait returns promptly.
func (l *Loop) RunOnLoop(fn func()) {
	if l.OnLoopThread() {
		fn()
		return
	}
	l.mu.Lock()
	l.runQueue = append(l.runQueue, fn)
	l.mu.Unlock()
	l.wake()
}

func (l *Loop) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(l.wakeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		log.Printf("reactor: eventfd wake write failed: %v", err)
	}
}

func (l *Loop) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(l.wakeFD, buf[:])
		if err != nil {
			return
		}
	}
}

func (l *Loop) drainRunQueue() {
	l.mu.Lock()
	queue := l.runQueue
	l.runQueue = nil
	l.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}

func (l *Loop) nextTimeout() int {
	if len(l.timers) == 0 {
		return -1
	}
	d := time.Until(l.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > 1<<30 {
		ms = 1 << 30
	}
	return int(ms)
}

func (l *Loop) fireExpiredTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		t := heap.Pop(&l.timers).(*timerEntry)
		if t.canceled {
			continue
		}
		t.fire()
	}
}

// scheduleKeepAliveDeadline arms (or rearms) c's idle-timeout timer. A zero
// keepAliveAfter disables the feature entirely.
func (l *Loop) scheduleKeepAliveDeadline(c *Conn) {
	if l.keepAliveAfter <= 0 {
		return
	}
	if c.timer != nil {
		c.timer.canceled = true
	}
	t := &timerEntry{
		deadline: time.Now().Add(l.keepAliveAfter),
		fire:     func() { l.closeConn(c, errKeepAliveTimeout) },
	}
	c.timer = t
	heap.Push(&l.timers, t)
}

func (l *Loop) cancelKeepAliveDeadline(c *Conn) {
	if c.timer != nil {
		c.timer.canceled = true
		c.timer = nil
	}
}

// acceptLoop drains the listening socket's accept backlog — epoll is
// level-triggered here, so a single EPOLLIN can represent several pending
// connections.
func (l *Loop) acceptLoop() {
	for {
		nfd, _, err := unix.Accept4(l.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}

		c := &Conn{fd: nfd, loop: l}
		client, ok := l.handler.OnAccept(c)
		if !ok {
			unix.Close(nfd)
			continue
		}
		c.client = client

		if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, nfd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(nfd),
		}); err != nil {
			unix.Close(nfd)
			continue
		}
		l.conns[nfd] = c
		l.scheduleKeepAliveDeadline(c)
		l.syncWriteInterest(c)
	}
}

func (l *Loop) handleEvent(fd int, events uint32) {
	c, ok := l.conns[fd]
	if !ok {
		return
	}

	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		l.closeConn(c, errPeerHungUp)
		return
	}
	if events&unix.EPOLLOUT != 0 {
		l.handleWritable(c)
		if c.closed {
			return
		}
	}
	if events&unix.EPOLLIN != 0 {
		l.handleReadable(c)
	}
}

// handleReadable drains one socket read and re-feeds whatever the core
// doesn't consume in a single OnData call — necessary because
// HeaderParser.Feed stops the instant the header block completes, leaving
// any body bytes that arrived in the same read for a follow-up call.
func (l *Loop) handleReadable(c *Conn) {
	for {
		if c.closed {
			return
		}
		if c.client.Input.Stopped() {
			return
		}

		n, err := unix.Read(c.fd, l.readBuf[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			l.feedAndClose(c, err)
			return
		}
		if n == 0 {
			l.feedAndClose(c, errConnectionClosed)
			return
		}

		l.scheduleKeepAliveDeadline(c)

		data := l.readBuf[:n]
		for len(data) > 0 && !c.closed {
			consumed := l.handler.OnData(c.client, data, nil)
			if consumed <= 0 {
				break
			}
			data = data[consumed:]
		}
		l.syncWriteInterest(c)
	}
}

func (l *Loop) feedAndClose(c *Conn, err error) {
	l.handler.OnData(c.client, nil, err)
	l.closeConn(c, err)
}

func (l *Loop) handleWritable(c *Conn) {
	if err := c.client.Output.OnWritable(); err != nil {
		l.closeConn(c, err)
		return
	}
	l.syncWriteInterest(c)
}

// syncWriteInterest adjusts the fd's epoll registration to match whether
// its Output channel still has a backlog, after any call that may have fed
// or drained it (a read that triggered a synchronous response write, or an
// OnWritable drain). Called unconditionally rather than only from the
// EPOLLOUT path because the very first partial write usually happens
// synchronously inside OnData, not from a dedicated writability event.
func (l *Loop) syncWriteInterest(c *Conn) {
	if c.closed {
		return
	}
	wantWrite := c.client.Output.Pending()
	if wantWrite == c.registeredForWrite {
		return
	}
	c.registeredForWrite = wantWrite
	events := uint32(unix.EPOLLIN)
	if wantWrite {
		events |= unix.EPOLLOUT
	}
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, c.fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(c.fd),
	})
}

// closeConn runs the reactor side of an abrupt disconnect: notify the
// handler (so the core can finalize any bound request) then tear down the
// fd. Not used for core-initiated closes, which already finalized their
// request before calling Conn.Close directly.
func (l *Loop) closeConn(c *Conn, err error) {
	if c.closed {
		return
	}
	l.handler.OnDisconnect(c.client)
	c.Close()
}
