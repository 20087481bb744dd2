package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/models"
)

// CallCreator creates empty calls.
type CallCreator interface {
	CreateCall(ctx context.Context) (*models.Call, error)
}

// CreateCall creates a call with an empty roster (requires authentication).
// Joining happens over the socket.
func CreateCall(calls CallCreator, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		call, err := calls.CreateCall(c.Request.Context())
		if err != nil {
			log.Error("failed to create call", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create call"})
			return
		}

		log.Info("call created", "call_id", call.ID, "user_id", user.ID)
		c.JSON(http.StatusOK, call)
	}
}
