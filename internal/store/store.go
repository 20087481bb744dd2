// Package store is the persistence boundary of the signaling server: users and
// their tokens, calls with their rosters, and chat messages.
package store

import (
	"context"
	"errors"

	"github.com/mossy-p/call-signaling/internal/models"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// CallStore is everything the signaling coordinator reads and writes. Each
// method is atomic or fails as a whole.
type CallStore interface {
	// AppendMember appends userID to the roster. It does not de-duplicate.
	AppendMember(ctx context.Context, callID, userID string) (*models.Call, error)
	// RemoveMember removes every occurrence of userID from the roster.
	RemoveMember(ctx context.Context, callID, userID string) (*models.Call, error)
	GetCall(ctx context.Context, callID string) (*models.Call, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	InsertMessage(ctx context.Context, text, userID, callID string) (*models.Message, error)
	// GetMessages returns the call's messages with sender names, oldest first.
	GetMessages(ctx context.Context, callID string) ([]models.Message, error)
	// RemoveMemberFromAllCalls drops userID from every roster containing it and
	// returns the updated calls.
	RemoveMemberFromAllCalls(ctx context.Context, userID string) ([]models.Call, error)
}

// AccountStore backs the account API and socket authentication.
type AccountStore interface {
	CreateUser(ctx context.Context, name string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateToken(ctx context.Context, userID, token string) (*models.Token, error)
	GetUserByToken(ctx context.Context, token string) (*models.User, error)
	CreateCall(ctx context.Context) (*models.Call, error)
}

// Store is the full persistence surface.
type Store interface {
	CallStore
	AccountStore
	Close() error
}
