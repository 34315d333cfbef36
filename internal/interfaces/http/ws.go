package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stratops/stratroll/internal/rollout"
)

// localOrigin admits browser connections from the operator's machine
// only, matching the CORS policy of the JSON endpoints.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
}

const (
	wsWriteWait     = 5 * time.Second
	wsBroadcastSize = 256
)

type signalMessage struct {
	Type string                  `json:"type"`
	Data rollout.LiveSignalEvent `json:"data"`
	TS   time.Time               `json:"ts"`
}

// SignalHub fans routed live-signal events out to websocket
// subscribers. It implements rollout.SignalSink; events arrive after
// the record has been persisted, so a dropped broadcast never loses
// control-plane state.
type SignalHub struct {
	upgrader websocket.Upgrader

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan signalMessage
	done       chan struct{}

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

// NewSignalHub starts the hub's broadcast loop.
func NewSignalHub() *SignalHub {
	h := &SignalHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     localOrigin,
		},
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan signalMessage, wsBroadcastSize),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
	}
	go h.run()
	return h
}

// PublishSignal queues an event for broadcast. The send is
// non-blocking: under backpressure the event is dropped rather than
// stalling the routing path.
func (h *SignalHub) PublishSignal(_ context.Context, ev rollout.LiveSignalEvent) {
	msg := signalMessage{Type: "live_signal", Data: ev, TS: time.Now().UTC()}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		log.Debug().Str("signal_id", ev.ID).Msg("websocket broadcast buffer full, dropping event")
	}
}

// handleWS upgrades the connection and holds it open until the client
// disconnects. Inbound frames are drained and discarded; the stream is
// one-way.
func (h *SignalHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *SignalHub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("clients", n).Msg("websocket client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Close stops the broadcast loop and disconnects all clients.
func (h *SignalHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	close(h.done)
}

// ClientCount reports the number of connected subscribers.
func (h *SignalHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
