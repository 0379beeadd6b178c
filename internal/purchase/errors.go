package purchase

import "errors"

var (
	// ErrValidation marks malformed purchase or contact input. It is always
	// wrapped with the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the token is absent from the expected tier: it
	// never existed, expired, or was already confirmed.
	ErrNotFound = errors.New("token not found or expired")

	// ErrNotificationFailed indicates the contact was recorded but the
	// confirmation email could not be delivered. The token stays pending.
	ErrNotificationFailed = errors.New("could not send notification")
)
