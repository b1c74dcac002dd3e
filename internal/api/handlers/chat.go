package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Timi0217/mixtapelive-sub000/internal/chat"
)

// ChatHandler handles chat-related requests independently of the main server
type ChatHandler struct {
	pipe *chat.Pipeline
}

// NewChatHandler creates a new ChatHandler instance
func NewChatHandler(pipe *chat.Pipeline) *ChatHandler {
	return &ChatHandler{pipe: pipe}
}

// GetMessages returns recent chat for a broadcast, newest first. The
// real-time path is the WebSocket; this is for reconnecting clients.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.pipe.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// DeleteMessage removes a message if the requester is its author or the
// broadcast's curator
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.pipe.Delete(c.Request.Context(), c.Param("messageId"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}
