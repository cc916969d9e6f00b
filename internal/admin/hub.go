// Package admin exposes Lunaris's optional HTTP/WS surface: pool/mailbox
// introspection over REST, and a lifecycle-event stream over websocket.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shuntia/lunaris/internal/event"
	"github.com/shuntia/lunaris/pkg/logger"
)

var hubLog = logger.Get("Admin")

// StreamMessage is what every connected websocket client receives: one
// lifecycle event, JSON-encoded.
type StreamMessage struct {
	Event   event.Event `json:"event"`
	Payload any         `json:"payload"`
}

type hubClient struct {
	id     uuid.UUID
	socket *websocket.Conn
}

// Hub fans out lifecycle events to every connected admin websocket client.
// Generalized from the kernel's native socket hub: a single goroutine owns
// the client list and every channel, so register/deregister/broadcast never
// race each other.
type Hub struct {
	upgrader *websocket.Upgrader

	registerCh   chan *hubClient
	deregisterCh chan *hubClient
	broadcastCh  chan StreamMessage
	doneCh       chan struct{}

	running bool
}

// NewHub builds a Hub that is not yet running; call Start to begin its
// dispatch loop.
func NewHub() *Hub {
	return &Hub{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub's dispatch loop until Close is called. Intended to be
// run in its own goroutine.
func (h *Hub) Start() {
	if h.running {
		hubLog.Warnf("Start called on a hub that is already running, ignoring\n")
		return
	}

	h.registerCh = make(chan *hubClient)
	h.deregisterCh = make(chan *hubClient)
	h.broadcastCh = make(chan StreamMessage)
	h.doneCh = make(chan struct{})
	h.running = true

	clients := make(map[uuid.UUID]*hubClient)

	for {
		select {
		case c := <-h.registerCh:
			clients[c.id] = c
			hubLog.Infof("admin client %s connected\n", c.id)
		case c := <-h.deregisterCh:
			if _, ok := clients[c.id]; ok {
				delete(clients, c.id)
				hubLog.Infof("admin client %s disconnected\n", c.id)
			}
		case msg := <-h.broadcastCh:
			data, err := json.Marshal(msg)
			if err != nil {
				hubLog.Errorf("failed to marshal stream message: %v\n", err)
				break
			}
			for id, c := range clients {
				if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
					hubLog.Warnf("write to admin client %s failed: %v\n", id, err)
				}
			}
		case <-h.doneCh:
			for _, c := range clients {
				c.socket.Close()
			}
			h.running = false
			return
		}
	}
}

// Close stops the hub's dispatch loop.
func (h *Hub) Close() {
	if !h.running {
		return
	}
	close(h.doneCh)
}

// Broadcast fans msg out to every connected client. A no-op if the hub
// isn't running.
func (h *Hub) Broadcast(msg StreamMessage) {
	if !h.running {
		return
	}
	h.broadcastCh <- msg
}

// EventObserver returns a handler suitable for event.EventHandler's
// RegisterHandlerFunction, forwarding every dispatched payload onto the
// websocket stream.
func (h *Hub) EventObserver() event.HandlerMethod {
	return func(ev event.Event, payload event.Payload) {
		h.Broadcast(StreamMessage{Event: ev, Payload: payload})
	}
}

// ServeWS upgrades r into a websocket connection and registers it with the
// hub. Blocks until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.running {
		http.Error(w, "admin stream is not running", http.StatusServiceUnavailable)
		return
	}

	id, err := uuid.NewRandom()
	if err != nil {
		http.Error(w, "failed to allocate connection id", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLog.Errorf("failed to upgrade admin stream connection: %v\n", err)
		return
	}

	client := &hubClient{id: id, socket: conn}
	h.registerCh <- client
	defer func() {
		h.deregisterCh <- client
		conn.Close()
	}()

	// The stream is server-push only; this read loop exists purely to
	// detect the client going away (close frame, dropped connection).
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) String() string {
	return fmt.Sprintf("admin.Hub{running=%v}", h.running)
}
