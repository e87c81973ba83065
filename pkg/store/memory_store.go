package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"anonmsg/pkg/domain"
)

// MemoryStore keeps identities and messages in-process (single instance only).
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User // key: user ID
	username map[string]string      // username key -> user ID
	messages []domain.Message       // insertion order
	now      func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(nil)
}

// NewMemoryStoreWithClock is NewMemoryStore with a custom timestamp source.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		users:    make(map[string]domain.User),
		username: make(map[string]string),
		now:      now,
	}
}

// CreateUser stores a new identity; the username key is checked and claimed
// under the same lock.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u = withUserDefaults(u, m.now())
	key := usernameKey(u.Username)
	if _, exists := m.username[key]; exists {
		return domain.User{}, ErrUsernameTaken
	}
	m.users[u.ID] = u
	m.username[key] = u.ID
	return u, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// FindUserByUsername matches the whole username, exactly or case-folded.
func (m *MemoryStore) FindUserByUsername(_ context.Context, username string, caseSensitive bool) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.username[usernameKey(username)]
	if !ok {
		return domain.User{}, false, nil
	}
	u := m.users[id]
	if caseSensitive && u.Username != username {
		return domain.User{}, false, nil
	}
	return u, true, nil
}

// UpdateUserProfile applies non-nil profile fields.
func (m *MemoryStore) UpdateUserProfile(_ context.Context, id string, update domain.ProfileUpdate) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	if update.RequestTitle != nil {
		u.RequestTitle = *update.RequestTitle
	}
	if update.ProfilePicture != nil {
		u.ProfilePicture = *update.ProfilePicture
	}
	u.UpdatedAt = m.now()
	m.users[id] = u
	return u, true, nil
}

// IncrementHitCount bumps the profile view counter.
func (m *MemoryStore) IncrementHitCount(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	u.HitCount++
	m.users[id] = u
	return u, true, nil
}

// CreateMessage appends a message and returns it with the sender resolved.
func (m *MemoryStore) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	msg = withMessageDefaults(msg, m.now())
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	out := []domain.Message{msg}
	if err := resolveSenders(ctx, out, m.senderProfiles); err != nil {
		return domain.Message{}, err
	}
	return out[0], nil
}

// ListMessagesForRecipient returns messages newest first; equal timestamps
// keep insertion order.
func (m *MemoryStore) ListMessagesForRecipient(ctx context.Context, recipientID string) ([]domain.Message, error) {
	m.mu.RLock()
	res := make([]domain.Message, 0)
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID {
			res = append(res, msg)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if err := resolveSenders(ctx, res, m.senderProfiles); err != nil {
		return nil, err
	}
	return res, nil
}

// MessageCount returns the number of stored messages.
func (m *MemoryStore) MessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// UserCount returns the number of stored identities.
func (m *MemoryStore) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *MemoryStore) senderProfiles(_ context.Context, ids []string) (map[string]domain.SenderProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.SenderProfile, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = senderProfile(u)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
