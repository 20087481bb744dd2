package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/call-signaling/internal/auth"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Hub            *signaling.Hub
	Users          UserCreator
	Calls          CallCreator
	Tokens         TokenIssuer
	Authenticator  auth.Authenticator
	Online         OnlineLister
	ICEServers     []webrtc.ICEServer
	AllowedOrigins []string
	// HandshakeLimiter, when set, rate limits socket upgrades per client IP.
	HandshakeLimiter *middleware.IPRateLimiter
	Log              *slog.Logger
}

// Register mounts all routes on router.
func Register(router *gin.Engine, d Deps) {
	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(d.AllowedOrigins))

	router.GET("/health", Health)

	requireUser := middleware.UserAuth(d.Authenticator, d.Log)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/users", CreateUser(d.Users, d.Tokens, d.Log))
		apiGroup.GET("/me", requireUser, Me)
		apiGroup.POST("/calls", requireUser, CreateCall(d.Calls, d.Log))
		apiGroup.GET("/ice-servers", ICEServers(d.ICEServers))
		apiGroup.GET("/online", Online(d.Online, d.Log))
	}

	// WebSocket signaling endpoint
	socket := []gin.HandlerFunc{HandleSignaling(d.Hub, d.Log)}
	if d.HandshakeLimiter != nil {
		socket = append([]gin.HandlerFunc{middleware.RateLimit(d.HandshakeLimiter)}, socket...)
	}
	router.GET("/echo", socket...)
}
