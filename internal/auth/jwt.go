// Package auth issues and validates the player JWTs that guard the REST and
// websocket surfaces.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims holds the custom JWT claims for a player session.
type Claims struct {
	jwt.RegisteredClaims
	Device string `json:"device,omitempty"`
}

// JWTManager handles token generation and validation.
type JWTManager struct {
	secret       []byte
	playerExpiry time.Duration
}

// NewJWTManager creates a JWT manager.
func NewJWTManager(secret string, playerExpiry time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), playerExpiry: playerExpiry}
}

// GenerateToken creates a signed JWT for the given player.
func (m *JWTManager) GenerateToken(playerID uuid.UUID, device string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.playerExpiry)),
			ID:        uuid.New().String(),
		},
		Device: device,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a JWT, returning claims if valid.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// PlayerID returns the subject parsed as a UUID.
func (c *Claims) PlayerID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse subject: %w", err)
	}
	return id, nil
}
