package restapi

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 5 * time.Second
	pingInterval   = 30 * time.Second
	clientSendSize = 16
)

// event is pushed to every connected WebSocket client as {event, data, ts}.
type event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"ts"`
}

// hub fans dispatch lifecycle events out to every connected client behind
// a mutex-guarded connection map, with one write goroutine per client.
type hub struct {
	mu      sync.RWMutex
	clients map[string]chan []byte
	logger  zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		clients: make(map[string]chan []byte),
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *hub) broadcast(e event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to marshal ws event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- data:
		default:
			h.logger.Warn().Str("client_id", id).Msg("dropping ws event, client buffer full")
		}
	}
}

func (h *hub) add(id string) chan []byte {
	ch := make(chan []byte, clientSendSize)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	ch, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// serve registers conn with the hub and runs its write/read pumps until
// the connection closes.
func (h *hub) serve(conn *websocket.Conn) {
	id := uuid.NewString()
	ch := h.add(id)
	defer h.remove(id)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
