package main

import (
	"github.com/watt-toolkit/servkit/pkg/servkit/core"
	"github.com/watt-toolkit/servkit/pkg/servkit/reactor"
)

// serverHandler implements reactor.Handler by delegating every call to a
// core.Server — the reactor package never imports core.Server itself, so
// this is the one place the two are wired together.
type serverHandler struct {
	server *core.Server
}

func (h *serverHandler) OnAccept(conn *reactor.Conn) (*core.Client, bool) {
	client := h.server.NewClient(conn, conn)
	h.server.OnClientAccepted(client)
	return client, true
}

func (h *serverHandler) OnData(client *core.Client, data []byte, errcode error) int {
	return h.server.OnClientDataReceived(client, data, errcode)
}

func (h *serverHandler) OnDisconnect(client *core.Client) {
	h.server.OnClientDisconnecting(client)
}
