package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	CartSessionID string
	JTI           string
}

// AccessTokenClaims represents the typed JWT issued to shoppers.
type AccessTokenClaims struct {
	UserID        uuid.UUID `json:"user_id"`
	CartSessionID string    `json:"cart_session_id"`
	jwt.RegisteredClaims
}
