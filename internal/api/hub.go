package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maejeom/market-game/internal/metrics"
	"github.com/maejeom/market-game/internal/model"
)

// Event types pushed to WebSocket clients.
const (
	EventOrderFilled = "order_filled"
	EventDayAdvanced = "day_advanced"
	EventGameReset   = "game_reset"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Event is a JSON message sent to the WebSocket clients of one session.
type Event struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Session string                 `json:"session"`
	Day     int                    `json:"day,omitempty"`
	Trade   *model.Trade           `json:"trade,omitempty"`
	Event   *model.EventDescriptor `json:"event,omitempty"`
	Seed    *int64                 `json:"seed,omitempty"`
}

type outbound struct {
	session string
	data    []byte
}

// Hub manages WebSocket connections and pushes game events to the clients
// watching the session the event belongs to.
type Hub struct {
	clients    map[*websocket.Conn]string // conn -> session id
	broadcast  chan outbound
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

type subscription struct {
	conn    *websocket.Conn
	session string
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan outbound, 256),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called
// in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.clients[sub.conn] = sub.session
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "session", sub.session, "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn, session := range h.clients {
				if session != msg.session {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

// Publish sends ev to every client watching ev.Session.
func (h *Hub) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- outbound{session: ev.Session, data: data}:
	default:
		// Drop if buffer full to avoid blocking order handling.
		slog.Warn("ws broadcast dropped", "type", ev.Type, "session", ev.Session)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// serveWS upgrades the request and subscribes the connection to session.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request, session string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- subscription{conn: conn, session: session}:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies. WriteControl
	// may run concurrently with the hub's writes.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()
}
