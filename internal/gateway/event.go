// Package gateway is the connection/room layer: it authenticates WebSocket
// clients, tracks room membership (one room per session), and fans events
// out with per-room ordering. It knows nothing about session lifecycle
// rules; those live behind the Handler interface.
package gateway

import (
	"encoding/json"
	"log"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

// Server -> client event names. These are wire names; the camelCase
// inactivityWarning is kept as the mobile clients already bind to it.
const (
	EventBroadcastState    = "broadcast-state"
	EventBroadcastStarted  = "broadcast-started"
	EventBroadcastEnded    = "broadcast-ended"
	EventListenerJoined    = "listener-joined"
	EventListenerLeft      = "listener-left"
	EventTrackChanged      = "track-changed"
	EventNewMessage        = "new-message"
	EventMessageDeleted    = "message-deleted"
	EventInactivityWarning = "inactivityWarning"
	EventError             = "error"
)

// Client -> server operation names.
const (
	OpJoinBroadcast  = "join-broadcast"
	OpLeaveBroadcast = "leave-broadcast"
	OpSendMessage    = "send-message"
	OpHeartbeat      = "broadcast-heartbeat"
)

// Event is the envelope for every server->client frame. Data is encoded
// once at construction so a room fan-out never marshals per member.
type Event struct {
	Name string
	raw  []byte
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event from one of the closed set of payload types
// below. A payload that fails to marshal is a programming error; it is
// logged and the event degrades to an empty body rather than panicking
// the fan-out path.
func NewEvent(name string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ Failed to encode %s event: %v", name, err)
		data = nil
	}
	raw, _ := json.Marshal(envelope{Event: name, Data: data})
	return Event{Name: name, raw: raw}
}

// Encoded returns the wire bytes of the envelope.
func (e Event) Encoded() []byte {
	return e.raw
}

// ---------------------------------------------------------
// Payload types (closed set, one per event name)
// ---------------------------------------------------------

// ListenerInfo identifies one present listener.
type ListenerInfo struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// StatePayload is the point-in-time snapshot unicast to a joiner.
type StatePayload struct {
	Session       *models.Session `json:"session"`
	Listeners     []ListenerInfo  `json:"listeners"`
	ListenerCount int             `json:"listener_count"`
}

// ListenerChangePayload backs listener-joined and listener-left.
type ListenerChangePayload struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	ListenerCount int    `json:"listener_count"`
}

// EndedPayload backs broadcast-ended. Reason is "curator" or "inactivity".
type EndedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// WarningPayload backs inactivityWarning.
type WarningPayload struct {
	Message          string `json:"message"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// DeletedPayload backs message-deleted.
type DeletedPayload struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// ErrorPayload backs the scoped error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ---------------------------------------------------------
// Inbound frames
// ---------------------------------------------------------

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sessionRef struct {
	SessionID string `json:"session_id"`
}

type sendMessageFrame struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
}
