package main

import (
	"bytes"
	"log"

	"github.com/watt-toolkit/servkit/pkg/servkit/channel"
	"github.com/watt-toolkit/servkit/pkg/servkit/core"
)

// echoHooks implements core.Hooks. An ordinary request has its body echoed
// back once fully received; a request asking for a WebSocket upgrade gets
// bridged onto a gorilla/websocket connection that echoes each message.
type echoHooks struct {
	server *core.Server
	loop   core.Loop

	bodies   map[*core.Request]*bytes.Buffer
	upgrades map[*core.Request]*wsBridge
}

func newEchoHooks(loop core.Loop) *echoHooks {
	return &echoHooks{
		loop:     loop,
		bodies:   make(map[*core.Request]*bytes.Buffer),
		upgrades: make(map[*core.Request]*wsBridge),
	}
}

func (h *echoHooks) OnClientObjectCreated(client *core.Client) {}

func (h *echoHooks) OnRequestObjectCreated(client *core.Client, req *core.Request) {}

// ReinitializeRequest runs for every request bound to req, new object or
// recycled from the freelist, so the body buffer is (re)seeded here rather
// than in OnRequestObjectCreated.
func (h *echoHooks) ReinitializeRequest(client *core.Client, req *core.Request) {
	h.bodies[req] = &bytes.Buffer{}
}

func (h *echoHooks) DeinitializeRequest(client *core.Client, req *core.Request) {
	delete(h.bodies, req)
	if bridge, ok := h.upgrades[req]; ok {
		bridge.close()
		delete(h.upgrades, req)
	}
}

// SupportsUpgrade accepts only a well-formed WebSocket upgrade request; any
// other Connection: Upgrade request is refused with a 400.
func (h *echoHooks) SupportsUpgrade(client *core.Client, req *core.Request) bool {
	return bytes.EqualFold(req.Headers().Get("Upgrade"), []byte("websocket")) &&
		req.Headers().Has("Sec-Websocket-Key")
}

func (h *echoHooks) OnRequestBegin(client *core.Client, req *core.Request) {
	switch req.BodyType() {
	case core.BodyUpgrade:
		h.beginUpgrade(client, req)
	case core.BodyNone:
		h.respondEcho(client, nil)
	}
}

func (h *echoHooks) OnRequestBody(client *core.Client, req *core.Request, data []byte, err error) channel.Result {
	if req.BodyType() == core.BodyUpgrade {
		if bridge, ok := h.upgrades[req]; ok && len(data) > 0 {
			bridge.feed(data)
		}
		return channel.Result{Consumed: len(data)}
	}

	if err != nil {
		log.Printf("echoserver: body error: %v", err)
		return channel.Result{Terminal: true}
	}
	if data == nil {
		body := h.bodies[req]
		h.respondEcho(client, body.Bytes())
		return channel.Result{}
	}

	h.bodies[req].Write(data)
	return channel.Result{Consumed: len(data)}
}

func (h *echoHooks) respondEcho(client *core.Client, body []byte) {
	extra := []core.ExtraHeader{{Name: "Content-Type", Value: "text/plain; charset=utf-8"}}
	if err := h.server.WriteSimpleResponse(client, 200, extra, body); err != nil {
		log.Printf("echoserver: response write failed: %v", err)
	}
	h.server.EndRequest(client)
}

func (h *echoHooks) beginUpgrade(client *core.Client, req *core.Request) {
	accept := computeAcceptKey(req.Headers().Get("Sec-Websocket-Key"))
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if err := h.server.WriteResponse(client, []byte(resp)); err != nil {
		log.Printf("echoserver: upgrade handshake write failed: %v", err)
		return
	}
	h.upgrades[req] = newWSBridge(h, client)
}
