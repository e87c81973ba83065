package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"anonmsg/internal/util"
	"anonmsg/pkg/conversation"
	"anonmsg/pkg/domain"
)

// SendInput is one delivery request. Token is optional.
type SendInput struct {
	RecipientUsername string
	Text              string
	Link              string
	Image             string
	Token             string
}

// SendMessage stores one message for the recipient. An invalid token
// degrades the send to anonymous; a failure to check the token fails it.
func (a *App) SendMessage(ctx context.Context, in SendInput) (domain.Message, error) {
	logger := util.LoggerFromContext(ctx)

	recipient, ok, err := a.store.FindUserByUsername(ctx, strings.TrimSpace(in.RecipientUsername), false)
	if err != nil {
		return domain.Message{}, fmt.Errorf("fetch recipient: %w", err)
	}
	if !ok {
		return domain.Message{}, ErrRecipientNotFound
	}

	var senderID string
	if token := strings.TrimSpace(in.Token); token != "" {
		id, err := a.Verify(token)
		switch {
		case err == nil:
			senderID = id
		case errors.Is(err, ErrInvalidToken):
			logger.Debug("sender token rejected, sending anonymously")
		default:
			return domain.Message{}, err
		}
	}

	if strings.TrimSpace(in.Text) == "" {
		return domain.Message{}, ErrMessageTextRequired
	}

	msg, err := a.store.CreateMessage(ctx, domain.Message{
		SenderID:    senderID,
		RecipientID: recipient.ID,
		Text:        in.Text,
		Link:        strings.TrimSpace(in.Link),
		Image:       strings.TrimSpace(in.Image),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	logger.Info("message delivered", "message_id", msg.ID, "recipient_id", recipient.ID, "anonymous", msg.Anonymous())
	return msg, nil
}

// Inbox lists every message addressed to userID, newest first.
func (a *App) Inbox(ctx context.Context, userID string) ([]domain.Message, error) {
	msgs, err := a.store.ListMessagesForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Conversations groups the inbox by counterparty, most recent first.
func (a *App) Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	msgs, err := a.Inbox(ctx, userID)
	if err != nil {
		return nil, err
	}
	return conversation.Sorted(conversation.Project(msgs)), nil
}

// Conversation returns one counterparty thread in chronological order.
func (a *App) Conversation(ctx context.Context, userID, key string) (domain.ConversationSummary, error) {
	msgs, err := a.Inbox(ctx, userID)
	if err != nil {
		return domain.ConversationSummary{}, err
	}
	thread, ok := conversation.Thread(msgs, key)
	if !ok {
		return domain.ConversationSummary{}, ErrConversationNotFound
	}
	return thread, nil
}
