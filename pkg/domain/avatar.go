package domain

import "net/url"

const (
	identityAvatarBase  = "https://api.dicebear.com/7.x/bottts/svg?seed="
	anonymousAvatarBase = "https://api.dicebear.com/7.x/pixel-art/svg?seed="
)

// DefaultProfilePicture returns the generated avatar URL seeded by username.
func DefaultProfilePicture(username string) string {
	return identityAvatarBase + url.QueryEscape(username)
}

// AnonymousAvatar returns the generated avatar used for an anonymous counterparty.
func AnonymousAvatar(seed string) string {
	return anonymousAvatarBase + url.QueryEscape(seed)
}
