package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
)

// respondError maps a domain error to an HTTP status. Infrastructure
// failures are logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	var ve *broadcast.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, broadcast.ErrNotFound), errors.Is(err, broadcast.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, broadcast.ErrAlreadyActive), errors.Is(err, broadcast.ErrInactiveBroadcast):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, broadcast.ErrNotCurator), errors.Is(err, broadcast.ErrCannotDelete):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, broadcast.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		log.Printf("❌ Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}

func identity(c *gin.Context) (userID, username string) {
	return c.GetString("user_id"), c.GetString("username")
}
