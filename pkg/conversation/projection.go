// Package conversation groups an inbox into per-counterparty conversations.
// Everything here is a pure function of its input; nothing is cached.
package conversation

import (
	"sort"
	"strings"

	"anonmsg/pkg/domain"
)

// AnonymousKey groups every message without a resolved sender.
const AnonymousKey = "Anonymous"

// KeyOf returns the counterparty key for a message.
func KeyOf(m domain.Message) string {
	if m.Sender == nil || m.Sender.Username == "" {
		return AnonymousKey
	}
	return m.Sender.Username
}

// Project groups newest-first messages by counterparty. The first message
// seen for a key becomes its LastMessage; each key's Messages keep input order.
func Project(msgs []domain.Message) map[string]domain.ConversationSummary {
	out := make(map[string]domain.ConversationSummary)
	for _, m := range msgs {
		key := KeyOf(m)
		summary, ok := out[key]
		if !ok {
			summary = domain.ConversationSummary{
				Key:          key,
				Counterparty: counterpartyOf(m, key),
				LastMessage:  m,
			}
		}
		summary.Messages = append(summary.Messages, m)
		out[key] = summary
	}
	return out
}

// Sorted lists summaries by most recent message, newest first, then by key.
func Sorted(summaries map[string]domain.ConversationSummary) []domain.ConversationSummary {
	out := make([]domain.ConversationSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Thread returns the messages exchanged with key in chronological order.
// Keys compare case-insensitively, matching username lookups.
func Thread(msgs []domain.Message, key string) (domain.ConversationSummary, bool) {
	var match []domain.Message
	for _, m := range msgs {
		if strings.EqualFold(KeyOf(m), key) {
			match = append(match, m)
		}
	}
	if len(match) == 0 {
		return domain.ConversationSummary{}, false
	}
	newest := match[0]
	summary := domain.ConversationSummary{
		Key:          KeyOf(newest),
		Counterparty: counterpartyOf(newest, KeyOf(newest)),
		LastMessage:  newest,
		Messages:     make([]domain.Message, len(match)),
	}
	for i, m := range match {
		summary.Messages[len(match)-1-i] = m
	}
	return summary, true
}

func counterpartyOf(m domain.Message, key string) domain.Counterparty {
	if m.Sender == nil {
		return domain.Counterparty{
			Username:       key,
			ProfilePicture: domain.AnonymousAvatar(key),
			Anonymous:      true,
		}
	}
	return domain.Counterparty{
		Username:       m.Sender.Username,
		ProfilePicture: m.Sender.ProfilePicture,
	}
}
