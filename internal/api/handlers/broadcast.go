package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
)

// BroadcastHandler handles broadcast lifecycle requests independently of the main server
type BroadcastHandler struct {
	svc *broadcast.Service
}

// NewBroadcastHandler creates a new BroadcastHandler instance
func NewBroadcastHandler(svc *broadcast.Service) *BroadcastHandler {
	return &BroadcastHandler{svc: svc}
}

// StartBroadcast goes live for the authenticated curator
func (h *BroadcastHandler) StartBroadcast(c *gin.Context) {
	var input struct {
		Caption string `json:"caption"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := identity(c)
	session, err := h.svc.Start(c.Request.Context(), userID, input.Caption)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// StopBroadcast ends the authenticated curator's broadcast
func (h *BroadcastHandler) StopBroadcast(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.svc.Stop(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Broadcast ended"})
}

// Heartbeat refreshes the broadcast's liveness timestamp
func (h *BroadcastHandler) Heartbeat(c *gin.Context) {
	userID, _ := identity(c)
	if err := h.svc.Heartbeat(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// GetLiveBroadcasts returns every live broadcast with now-playing and
// listener counts, oldest first
func (h *BroadcastHandler) GetLiveBroadcasts(c *gin.Context) {
	list, err := h.svc.ListLive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"broadcasts": list, "count": len(list)})
}

// GetBroadcast returns one broadcast by id
func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}
