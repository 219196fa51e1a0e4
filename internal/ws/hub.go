package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinic-queueing/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The queue board is public read-only data; origin checks belong to the
	// reverse proxy in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub groups websocket connections into one room per doctor and relays the
// realtime notification channel to them.
type Hub struct {
	clients    map[string]map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan message

	mu sync.RWMutex
}

type message struct {
	doctorID string
	payload  []byte
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	doctorID string
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message),
	}
}

// Run processes hub registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.doctorID] == nil {
				h.clients[c.doctorID] = make(map[*client]bool)
			}
			h.clients[c.doctorID][c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.clients[c.doctorID]; ok {
				if _, ok := room[c]; ok {
					delete(room, c)
					close(c.send)
					if len(room) == 0 {
						delete(h.clients, c.doctorID)
					}
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[msg.doctorID] {
				select {
				case c.send <- msg.payload:
				default:
					// Slow consumer, drop the connection rather than the queue.
					close(c.send)
					delete(h.clients[msg.doctorID], c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// RunRedisFeed subscribes to the realtime pub/sub pattern and forwards each
// update into the matching doctor room.
func (h *Hub) RunRedisFeed(ctx context.Context, rdb *redis.Client) {
	sub := rdb.PSubscribe(ctx, notify.RealtimeChannelPattern)
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("ws: close redis subscription: %v", err)
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			doctorID := strings.TrimPrefix(msg.Channel, strings.TrimSuffix(notify.RealtimeChannelPattern, "*"))
			h.broadcast <- message{doctorID: doctorID, payload: []byte(msg.Payload)}
		}
	}
}

// ServeQueue upgrades the connection and attaches it to the doctor's room.
func (h *Hub) ServeQueue(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if doctorID == "" {
		http.Error(w, "doctorID is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 16),
		doctorID: doctorID,
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump only watches for disconnects; the queue board is one-way.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
