package auth

import "errors"

// ValidateToken failures. Callers map all three to 401; only expiry gets its
// own client message.
var (
	ErrInvalidToken     = errors.New("access token is malformed or badly signed")
	ErrExpiredToken     = errors.New("access token expired")
	ErrTokenNotYetValid = errors.New("access token used before its nbf time")
)

// ErrInvalidSecret is returned by NewJWTService when the configured signing
// secret is shorter than minSecretLength bytes.
var ErrInvalidSecret = errors.New("jwt signing secret too short")
