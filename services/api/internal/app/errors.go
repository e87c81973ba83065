package app

import "errors"

var (
	// ErrInvalidInput covers missing or malformed request fields. Handlers
	// show the wrapped detail to the caller.
	ErrInvalidInput = errors.New("invalid input")

	ErrUsernameTaken = errors.New("User already exists.")

	// ErrMessageTextRequired rejects a send whose text is blank after trimming.
	ErrMessageTextRequired = errors.New("message text is required")

	// ErrInvalidCredentials is returned for both unknown usernames and wrong
	// passwords so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("Invalid credentials.")

	ErrInvalidToken = errors.New("invalid token")

	ErrRecipientNotFound    = errors.New("Recipient not found.")
	ErrUserNotFound         = errors.New("User not found")
	ErrConversationNotFound = errors.New("conversation not found")
)
