package domain

import "time"

type Plan string

const (
	PlanFree Plan = "free"
)

const DefaultRequestTitle = "Send me anonymous messages!"

// User is a registered identity. Username is unique case-insensitively.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	RequestTitle   string    `json:"requestTitle"`
	ProfilePicture string    `json:"profilePicture"`
	Plan           Plan      `json:"plan"`
	HitCount       int64     `json:"hitCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SenderProfile is the lightweight projection of a sender attached to messages.
type SenderProfile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

// Message is one send event. An empty SenderID means the sender is anonymous.
type Message struct {
	ID          string         `json:"id"`
	SenderID    string         `json:"-"`
	Sender      *SenderProfile `json:"sender"`
	RecipientID string         `json:"recipient"`
	Text        string         `json:"text"`
	Link        string         `json:"link,omitempty"`
	Image       string         `json:"image,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Anonymous reports whether the message has no resolved sender.
func (m Message) Anonymous() bool {
	return m.Sender == nil
}

// Counterparty is the other side of a conversation as shown to the recipient.
type Counterparty struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Anonymous      bool   `json:"anonymous"`
}

// ConversationSummary groups inbox messages by counterparty. Never persisted.
type ConversationSummary struct {
	Key          string       `json:"key"`
	Counterparty Counterparty `json:"counterparty"`
	LastMessage  Message      `json:"lastMessage"`
	Messages     []Message    `json:"messages"`
}

// ProfileUpdate carries optional profile edits; nil fields are left unchanged.
type ProfileUpdate struct {
	RequestTitle   *string
	ProfilePicture *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.RequestTitle == nil && u.ProfilePicture == nil
}
