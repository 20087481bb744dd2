package models

import "time"

// User is an account as seen by the signaling core: only id and display name
// are ever sent to peers.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Token binds an issued credential to its user.
type Token struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserRequest is the request body for creating an account
type CreateUserRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateUserResponse carries the token the client authenticates with
type CreateUserResponse struct {
	Token string `json:"token"`
}
