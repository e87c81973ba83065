package store

import (
	"time"

	"anonmsg/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID             string    `gorm:"primaryKey"`
	Username       string    `gorm:"not null;index"`
	UsernameKey    string    `gorm:"uniqueIndex;not null"`
	PasswordHash   string    `gorm:"not null"`
	RequestTitle   string    `gorm:"not null"`
	ProfilePicture string    `gorm:"not null"`
	Plan           string    `gorm:"not null"`
	HitCount       int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

type MessageModel struct {
	ID          string    `gorm:"primaryKey"`
	SenderID    *string   `gorm:"index"`
	RecipientID string    `gorm:"not null;index:idx_message_recipient_created,priority:1"`
	Text        string    `gorm:"type:text;not null"`
	Link        string    `gorm:"type:text"`
	Image       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index:idx_message_recipient_created,priority:2,sort:desc"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Username:       u.Username,
		UsernameKey:    usernameKey(u.Username),
		PasswordHash:   u.PasswordHash,
		RequestTitle:   u.RequestTitle,
		ProfilePicture: u.ProfilePicture,
		Plan:           string(u.Plan),
		HitCount:       u.HitCount,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:             m.ID,
		Username:       m.Username,
		PasswordHash:   m.PasswordHash,
		RequestTitle:   m.RequestTitle,
		ProfilePicture: m.ProfilePicture,
		Plan:           domain.Plan(m.Plan),
		HitCount:       m.HitCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func messageToModel(m domain.Message) MessageModel {
	var sender *string
	if m.SenderID != "" {
		id := m.SenderID
		sender = &id
	}
	return MessageModel{
		ID:          m.ID,
		SenderID:    sender,
		RecipientID: m.RecipientID,
		Text:        m.Text,
		Link:        m.Link,
		Image:       m.Image,
		CreatedAt:   m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	msg := domain.Message{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Text:        m.Text,
		Link:        m.Link,
		Image:       m.Image,
		CreatedAt:   m.CreatedAt,
	}
	if m.SenderID != nil {
		msg.SenderID = *m.SenderID
	}
	return msg
}
