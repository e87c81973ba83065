package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"anonmsg/pkg/domain"
)

var (
	// ErrUsernameTaken is returned when an identity with the same
	// case-insensitive username already exists.
	ErrUsernameTaken = errors.New("username already exists")

	ErrNotConfigured = errors.New("store not configured")
)

// Store defines persistence operations for identities and messages.
type Store interface {
	// identities
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	FindUserByUsername(ctx context.Context, username string, caseSensitive bool) (domain.User, bool, error)
	UpdateUserProfile(ctx context.Context, id string, update domain.ProfileUpdate) (domain.User, bool, error)
	IncrementHitCount(ctx context.Context, id string) (domain.User, bool, error)

	// messages
	CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	ListMessagesForRecipient(ctx context.Context, recipientID string) ([]domain.Message, error)

	Close() error
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// usernameKey is the case-folded lookup key enforcing uniqueness.
func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// resolveSenders attaches sender profiles to messages using lookup.
// Sender ids that do not resolve leave the message anonymous.
func resolveSenders(
	ctx context.Context,
	msgs []domain.Message,
	lookup func(context.Context, []string) (map[string]domain.SenderProfile, error),
) error {
	ids := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if m.SenderID == "" {
			continue
		}
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		ids = append(ids, m.SenderID)
	}
	if len(ids) == 0 {
		return nil
	}
	profiles, err := lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		if msgs[i].SenderID == "" {
			continue
		}
		if p, ok := profiles[msgs[i].SenderID]; ok {
			msgs[i].Sender = &p
		}
	}
	return nil
}

func senderProfile(u domain.User) domain.SenderProfile {
	return domain.SenderProfile{
		ID:             u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
	}
}

// withUserDefaults fills server-assigned fields before an identity is persisted.
func withUserDefaults(u domain.User, now time.Time) domain.User {
	u.Username = strings.TrimSpace(u.Username)
	if u.ID == "" {
		u.ID = newUserID()
	}
	if strings.TrimSpace(u.RequestTitle) == "" {
		u.RequestTitle = domain.DefaultRequestTitle
	}
	if strings.TrimSpace(u.ProfilePicture) == "" {
		u.ProfilePicture = domain.DefaultProfilePicture(u.Username)
	}
	if u.Plan == "" {
		u.Plan = domain.PlanFree
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return u
}

// withMessageDefaults assigns id and creation time at persistence.
func withMessageDefaults(m domain.Message, now time.Time) domain.Message {
	m.ID = newMessageID()
	m.CreatedAt = now
	m.Sender = nil
	return m
}
