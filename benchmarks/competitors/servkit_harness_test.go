package competitors

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sys/unix"

	"github.com/watt-toolkit/servkit/pkg/servkit/channel"
	"github.com/watt-toolkit/servkit/pkg/servkit/core"
	"github.com/watt-toolkit/servkit/pkg/servkit/reactor"
)

// okHooks answers every request with a fixed 200 response, mirroring the
// net/http and fasthttp handlers these benchmarks compare against. body is
// the fixed response payload (usually "OK", but BenchmarkComparisonLargeResponse
// swaps in a 1MB payload to match its net/http and fasthttp counterparts).
type okHooks struct {
	body []byte
}

func (okHooks) OnClientObjectCreated(*core.Client)                {}
func (okHooks) OnRequestObjectCreated(*core.Client, *core.Request) {}
func (okHooks) ReinitializeRequest(*core.Client, *core.Request)    {}
func (okHooks) DeinitializeRequest(*core.Client, *core.Request)    {}
func (okHooks) SupportsUpgrade(*core.Client, *core.Request) bool   { return false }

func (h okHooks) OnRequestBegin(client *core.Client, req *core.Request) {
	if req.BodyType() == core.BodyNone {
		h.respond(client)
	}
}

func (h okHooks) OnRequestBody(client *core.Client, req *core.Request, data []byte, err error) channel.Result {
	if data == nil {
		h.respond(client)
		return channel.Result{}
	}
	return channel.Result{Consumed: len(data)}
}

var okServer *core.Server

func (h okHooks) respond(client *core.Client) {
	okServer.WriteSimpleResponse(client, 200, nil, h.body)
	okServer.EndRequest(client)
}

// servkitBenchServer is a running servkit server bound to a real loopback
// TCP socket — pkg/servkit/reactor drives epoll against an actual fd, so
// unlike the fasthttp benchmarks above this can't use an in-memory
// net.Listener.
type servkitBenchServer struct {
	loop *reactor.Loop
	addr string
}

func startServkitBenchServer(body []byte) (*servkitBenchServer, error) {
	fd, err := reactor.ListenTCP4([4]byte{127, 0, 0, 1}, 0)
	if err != nil {
		return nil, err
	}

	handler := &benchHandler{}
	loop, err := reactor.New(fd, handler, reactor.Config{KeepAliveTimeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}

	okServer = core.NewServer(okHooks{body: body}, loop, core.DefaultConfig())
	handler.server = okServer

	go loop.Run()

	addr, err := boundAddr(fd)
	if err != nil {
		return nil, err
	}
	return &servkitBenchServer{loop: loop, addr: addr}, nil
}

// boundAddr resolves the actual ephemeral port the kernel picked for a
// listener bound to port 0, since reactor.ListenTCP4 hands back only the
// raw fd.
func boundAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("127.0.0.1:%d", sa4.Port), nil
}

func (s *servkitBenchServer) Close() { s.loop.Stop() }

type benchHandler struct {
	server *core.Server
}

func (h *benchHandler) OnAccept(conn *reactor.Conn) (*core.Client, bool) {
	client := h.server.NewClient(conn, conn)
	h.server.OnClientAccepted(client)
	return client, true
}

func (h *benchHandler) OnData(client *core.Client, data []byte, errcode error) int {
	return h.server.OnClientDataReceived(client, data, errcode)
}

func (h *benchHandler) OnDisconnect(client *core.Client) {
	h.server.OnClientDisconnecting(client)
}

func newServkitHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 100,
			DisableCompression:  true,
		},
	}
}
