package store

import "github.com/google/uuid"

func newUserID() string {
	return uuid.NewString()
}

// newMessageID returns a v7 UUID so that lexical order follows insertion order.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
