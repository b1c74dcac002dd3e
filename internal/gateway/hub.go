package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	errBadFrame  = errors.New("malformed frame")
	errUnknownOp = errors.New("unknown operation")
)

var (
	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_gateway_connections",
		Help: "Currently connected WebSocket clients",
	})
	fanoutEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_gateway_events_total",
			Help: "Events fanned out, by event name",
		},
		[]string{"event"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(connectedClients, fanoutEvents)
}

// Handler receives inbound operations from authenticated clients. The
// implementation owns all session rules; the hub only moves frames.
type Handler interface {
	OnJoin(ctx context.Context, c *Client, sessionID string) error
	OnLeave(ctx context.Context, c *Client, sessionID string) error
	OnChatMessage(ctx context.Context, c *Client, sessionID, msgType, content string) error
	OnHeartbeat(ctx context.Context, c *Client, sessionID string) error

	// OnDisconnect fires once per connection with every room the client
	// was still in. This is the only cleanup path for abrupt disconnects.
	OnDisconnect(c *Client, sessionIDs []string)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Mobile clients connect from app webviews; origin is not meaningful.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connections and room membership. One room per live session,
// keyed by session id.
//
// Ordering: every room fan-out enqueues to member channels while holding
// mu, and each client's writePump drains its channel FIFO. Two events
// published to the same room are therefore delivered to every member in
// publish order. Across rooms there is no guarantee, by design.
type Hub struct {
	handler Handler

	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	joined  map[*Client]map[string]struct{} // reverse index for disconnect
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		joined:  make(map[*Client]map[string]struct{}),
	}
}

// SetHandler wires the inbound side. Must be called before Serve; split
// from NewHub because the handler itself needs the hub to fan out.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Serve upgrades an authenticated request and runs the connection until
// it drops. The identity must already be validated; the hub never admits
// a connection without one.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id Identity) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newClient(h, conn, id)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joined[c] = make(map[string]struct{})
	h.mu.Unlock()
	connectedClients.Inc()

	log.Printf("🔌 Client connected: %s (%s)", id.Username, id.UserID)

	go c.writePump()
	c.readPump() // blocks until the connection drops
	return nil
}

// JoinRoom adds the client to a session's room. Membership bookkeeping
// only; the lifecycle checks happen in the handler before this is called.
func (h *Hub) JoinRoom(c *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[sessionID] = room
	}
	room[c] = struct{}{}
	if _, ok := h.joined[c]; ok {
		h.joined[c][sessionID] = struct{}{}
	}
}

// LeaveRoom removes the client from a session's room.
func (h *Hub) LeaveRoom(c *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(c, sessionID)
}

// CloseRoom drops a room entirely (after broadcast-ended has been sent).
func (h *Hub) CloseRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[sessionID] {
		delete(h.joined[c], sessionID)
	}
	delete(h.rooms, sessionID)
}

// ToRoom fans an event out to every member of a session's room. Enqueue
// happens under mu so concurrent publishers cannot interleave differently
// for different members.
func (h *Hub) ToRoom(sessionID string, event Event) {
	raw := event.Encoded()

	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[sessionID]
	if len(members) == 0 {
		return
	}
	fanoutEvents.WithLabelValues(event.Name).Inc()
	for c := range members {
		select {
		case c.send <- raw:
		default:
			// Slow client: drop the event rather than stall the room
		}
	}
}

// ToAll sends a global event (broadcast-started) to every connection.
func (h *Hub) ToAll(event Event) {
	raw := event.Encoded()

	h.mu.Lock()
	defer h.mu.Unlock()

	fanoutEvents.WithLabelValues(event.Name).Inc()
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
		}
	}
}

// toClient unicasts to one connection if it is still registered.
func (h *Hub) toClient(c *Client, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return // already disconnected
	}
	select {
	case c.send <- event.Encoded():
	default:
		log.Printf("⚠️ Dropping %s event for slow client %s", event.Name, c.UserID)
	}
}

// RoomSize reports the number of connections in a room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[sessionID])
}

// RoomMembers returns the identities currently connected to a room,
// used to build the broadcast-state snapshot for a joiner.
func (h *Hub) RoomMembers(sessionID string) []Identity {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := make([]Identity, 0, len(h.rooms[sessionID]))
	for c := range h.rooms[sessionID] {
		members = append(members, c.Identity)
	}
	return members
}

// disconnect tears the client out of every room it was still in, then
// hands the room list to the handler so memberships get closed.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	var sessionIDs []string
	for sessionID := range h.joined[c] {
		sessionIDs = append(sessionIDs, sessionID)
		h.removeFromRoom(c, sessionID)
	}
	delete(h.joined, c)
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		connectedClients.Dec()
	}
	h.mu.Unlock()

	log.Printf("🔌 Client disconnected: %s (%d rooms)", c.UserID, len(sessionIDs))

	if len(sessionIDs) > 0 && h.handler != nil {
		h.handler.OnDisconnect(c, sessionIDs)
	}
}

// removeFromRoom expects mu to be held.
func (h *Hub) removeFromRoom(c *Client, sessionID string) {
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	if joined, ok := h.joined[c]; ok {
		delete(joined, sessionID)
	}
}
