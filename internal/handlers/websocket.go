package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/call-signaling/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// HandleSignaling upgrades the request and hands the socket to the hub. The
// credential comes from the token query parameter, or the Authorization
// header when the parameter is absent.
func HandleSignaling(hub *signaling.Hub, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := c.Query("token")
		if credential == "" {
			credential = c.GetHeader("Authorization")
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", "error", err)
			return
		}

		if err := hub.Serve(conn, credential); err != nil {
			log.Info("rejected socket", "remote", c.ClientIP(), "error", err)
		}
	}
}
