package gateway

import "encoding/json"

// Connect registers a client that is not backed by a WebSocket. Outbound
// events accumulate in its buffer and are read with TryRecv. This is the
// seam the lifecycle tests drive the hub through; it behaves exactly like
// a socket client minus the pumps. Test-only: production clients always
// enter through Serve.
func (h *Hub) Connect(id Identity) *Client {
	c := newClient(h, nil, id)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joined[c] = make(map[string]struct{})
	h.mu.Unlock()
	connectedClients.Inc()

	return c
}

// TryRecv pops the next queued event without blocking.
func (c *Client) TryRecv() (name string, data json.RawMessage, ok bool) {
	select {
	case raw := <-c.send:
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return "", nil, false
		}
		return env.Event, env.Data, true
	default:
		return "", nil, false
	}
}

// Close disconnects an in-process client, running the same cleanup path
// a dropped socket takes.
func (c *Client) Close() {
	c.hub.disconnect(c)
}
