package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
)

const (
	EventNewList  = "new_list"
	EventNewQuote = "new_quote"
)

// Envelope is one realtime message. An empty Room broadcasts to everyone.
type Envelope struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type hubMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	Delivered(event string)
	Dropped(event string)
}

// client is one websocket connection; send is drained by its write pump.
type client struct {
	send  chan []byte
	rooms map[string]struct{}
}

// Hub is the process-wide registry of connections keyed by joined room.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	rooms      map[string]map[*client]struct{}
	sendBuffer int
	metrics    hubMetrics
	logg       *logger.Logger
}

// NewHub builds an empty hub. metrics and logg may be nil.
func NewHub(sendBuffer int, metrics hubMetrics, logg *logger.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		rooms:      make(map[string]map[*client]struct{}),
		sendBuffer: sendBuffer,
		metrics:    metrics,
		logg:       logg,
	}
}

func (h *Hub) register(rooms ...string) *client {
	c := &client{
		send:  make(chan []byte, h.sendBuffer),
		rooms: make(map[string]struct{}, len(rooms)),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	for _, room := range rooms {
		if room == "" {
			continue
		}
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
		c.rooms[room] = struct{}{}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionOpened()
	}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionClosed()
	}
}

// Publish delivers env to local connections. It never blocks on a slow
// client: a full buffer drops the message for that client only.
func (h *Hub) Publish(_ context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if env.Room != "" {
		targets = h.rooms[env.Room]
	}
	for c := range targets {
		select {
		case c.send <- payload:
			if h.metrics != nil {
				h.metrics.Delivered(env.Event)
			}
		default:
			if h.metrics != nil {
				h.metrics.Dropped(env.Event)
			}
		}
	}
	return nil
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns how many clients joined room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
