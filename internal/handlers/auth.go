package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/models"
)

// UserCreator creates accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, name string) (*models.User, error)
}

// TokenIssuer signs and records a token for a user.
type TokenIssuer interface {
	Issue(ctx context.Context, userID string) (string, error)
}

// CreateUser registers a named account and returns its token.
func CreateUser(users UserCreator, tokens TokenIssuer, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		user, err := users.CreateUser(c.Request.Context(), name)
		if err != nil {
			log.Error("failed to create user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		token, err := tokens.Issue(c.Request.Context(), user.ID)
		if err != nil {
			log.Error("failed to issue token", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}

		log.Info("user created", "user_id", user.ID)
		c.JSON(http.StatusOK, models.CreateUserResponse{Token: token})
	}
}

// Me returns the authenticated user.
func Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}
