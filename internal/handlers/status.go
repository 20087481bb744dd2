package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ICEServers returns the STUN/TURN servers clients should hand to their
// RTCPeerConnection.
func ICEServers(servers []webrtc.ICEServer) gin.HandlerFunc {
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ice_servers": servers})
	}
}

// OnlineLister lists the ids of connected users.
type OnlineLister interface {
	Online(ctx context.Context) ([]string, error)
}

// Online returns the ids of users with a live socket.
func Online(presence OnlineLister, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := presence.Online(c.Request.Context())
		if err != nil {
			log.Error("failed to list online users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list online users"})
			return
		}
		if ids == nil {
			ids = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"users": ids})
	}
}
