package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4096

	// sendBuffer sizes the per-client outbound queue. A client that can't
	// drain this many events is considered too slow and is dropped.
	sendBuffer = 256
)

// Identity is the authenticated principal behind a connection, decoded
// from the handshake token before the client enters the event loop.
type Identity struct {
	UserID   string
	Username string
}

// Client is one WebSocket connection. All writes go through the send
// channel so the writePump is the only goroutine touching the socket.
type Client struct {
	Identity

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, id Identity) *Client {
	return &Client{
		Identity: id,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

// Send queues an event for this client only. Non-blocking: if the buffer
// is full the event is dropped (live feed, not a message log). Goes
// through the hub so it can never race with disconnect closing the
// channel.
func (c *Client) Send(event Event) {
	c.hub.toClient(c, event)
}

// sendError emits a scoped error event to the offending client only.
func (c *Client) sendError(err error) {
	c.Send(NewEvent(EventError, ErrorPayload{Message: err.Error()}))
}

// readPump owns inbound frames. It exits on any read error, and its defer
// is the single place disconnect cleanup happens, so abrupt disconnects
// never leak room memberships.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ Connection error for %s: %v", c.UserID, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError(errBadFrame)
			continue
		}
		c.dispatch(frame)
	}
}

// dispatch routes one inbound frame to the handler. Handler errors are
// scoped to this client; they never terminate other connections.
func (c *Client) dispatch(frame inboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch frame.Event {
	case OpJoinBroadcast:
		var ref sessionRef
		if err = json.Unmarshal(frame.Data, &ref); err == nil {
			err = c.hub.handler.OnJoin(ctx, c, ref.SessionID)
		}
	case OpLeaveBroadcast:
		var ref sessionRef
		if err = json.Unmarshal(frame.Data, &ref); err == nil {
			err = c.hub.handler.OnLeave(ctx, c, ref.SessionID)
		}
	case OpSendMessage:
		var msg sendMessageFrame
		if err = json.Unmarshal(frame.Data, &msg); err == nil {
			err = c.hub.handler.OnChatMessage(ctx, c, msg.SessionID, msg.Type, msg.Content)
		}
	case OpHeartbeat:
		var ref sessionRef
		if err = json.Unmarshal(frame.Data, &ref); err == nil {
			err = c.hub.handler.OnHeartbeat(ctx, c, ref.SessionID)
		}
	default:
		err = errUnknownOp
	}

	if err != nil {
		c.sendError(err)
	}
}

// writePump is the only writer on the socket. It drains the send channel
// in FIFO order, which is what preserves per-room event ordering end to
// end, and pings to keep the read deadline alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
