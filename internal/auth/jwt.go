// Package auth issues account tokens and resolves socket credentials to users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store"
)

// ErrUnauthorized is the not-found signal for a credential.
var ErrUnauthorized = errors.New("unauthorized")

// Claims carries the account id under the "id" claim.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Authenticator resolves an opaque credential to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*models.User, error)
}

// TokenStore is the part of the account store tokens are checked against.
type TokenStore interface {
	CreateToken(ctx context.Context, userID, token string) (*models.Token, error)
	GetUserByToken(ctx context.Context, token string) (*models.User, error)
}

// TokenService signs HS256 tokens and only accepts tokens it both signed and
// persisted.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	tokens TokenStore
}

// NewTokenService returns a service; a zero ttl issues non-expiring tokens.
func NewTokenService(secret string, ttl time.Duration, tokens TokenStore) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, tokens: tokens}
}

// Issue signs a token for userID and records it.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.ttl))
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if _, err := s.tokens.CreateToken(ctx, userID, tokenString); err != nil {
		return "", err
	}

	return tokenString, nil
}

// Authenticate accepts a raw token or an "Bearer <token>" header value.
func (s *TokenService) Authenticate(ctx context.Context, credential string) (*models.User, error) {
	tokenString := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if tokenString == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	user, err := s.tokens.GetUserByToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.ID != claims.UserID {
		return nil, ErrUnauthorized
	}

	return user, nil
}
