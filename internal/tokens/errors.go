package tokens

import "errors"

var (
	// ErrInvalid covers malformed tokens and signature mismatches.
	ErrInvalid = errors.New("tokens: invalid token")
	// ErrExpired is returned for a well-signed token whose expiration has passed.
	ErrExpired = errors.New("tokens: token expired")
	// ErrMissingSecret is returned when the codec is built without a signing secret.
	ErrMissingSecret = errors.New("tokens: missing signing secret")
)
