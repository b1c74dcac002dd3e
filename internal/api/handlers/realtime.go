package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
	"github.com/Timi0217/mixtapelive-sub000/internal/chat"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
)

// RealtimeHandler bridges the WebSocket hub to the broadcast service and
// the chat pipeline. It owns the hub's inbound side.
type RealtimeHandler struct {
	hub  *gateway.Hub
	svc  *broadcast.Service
	pipe *chat.Pipeline
}

func NewRealtimeHandler(hub *gateway.Hub, svc *broadcast.Service, pipe *chat.Pipeline) *RealtimeHandler {
	h := &RealtimeHandler{hub: hub, svc: svc, pipe: pipe}
	hub.SetHandler(h)
	return h
}

// Connect upgrades the request to a WebSocket. Auth already ran, so the
// identity in the gin context is trusted.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, username := identity(c)
	// Serve hijacks the connection; nothing to write on error beyond
	// what the upgrader already sent.
	h.hub.Serve(c.Writer, c.Request, gateway.Identity{UserID: userID, Username: username})
}

func (h *RealtimeHandler) OnJoin(ctx context.Context, c *gateway.Client, sessionID string) error {
	return h.svc.Join(ctx, c, sessionID)
}

func (h *RealtimeHandler) OnLeave(ctx context.Context, c *gateway.Client, sessionID string) error {
	return h.svc.Leave(ctx, c, sessionID)
}

func (h *RealtimeHandler) OnChatMessage(ctx context.Context, c *gateway.Client, sessionID, msgType, content string) error {
	_, err := h.pipe.Send(ctx, sessionID, c.Identity, msgType, content)
	return err
}

func (h *RealtimeHandler) OnHeartbeat(ctx context.Context, c *gateway.Client, sessionID string) error {
	return h.svc.Heartbeat(ctx, sessionID, c.UserID)
}

func (h *RealtimeHandler) OnDisconnect(c *gateway.Client, sessionIDs []string) {
	h.svc.Disconnect(c, sessionIDs)
}
