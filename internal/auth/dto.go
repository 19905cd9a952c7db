package auth

import (
	"github.com/angelmondragon/storefront/internal/users"
)

// SignInRequest captures the credentials sent to the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SignUpRequest is the registration form.
type SignUpRequest struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
}

// MagicLinkRequest asks the identity provider to email a one-time sign-in link.
type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// MagicLinkVerifyRequest carries the token from the emailed link.
type MagicLinkVerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// PasswordResetRequest asks the identity provider to send a recovery email.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RefreshRequest rotates the refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// SessionResponse contains the tokens and user produced by a successful sign-in.
type SessionResponse struct {
	AccessToken          string         `json:"access_token,omitempty"`
	RefreshToken         string         `json:"refresh_token,omitempty"`
	CartSessionID        string         `json:"cart_session_id,omitempty"`
	ConfirmationRequired bool           `json:"confirmation_required,omitempty"`
	User                 *users.UserDTO `json:"user"`
}

// OAuthStartResponse tells the client where to send the browser.
type OAuthStartResponse struct {
	URL string `json:"url"`
}
