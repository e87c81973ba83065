package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"anonmsg/internal/util"
	"anonmsg/pkg/auth"
	"anonmsg/pkg/conversation"
	"anonmsg/pkg/domain"
	"anonmsg/pkg/store"
)

const (
	maxRequestTitleRunes = 200
	maxPictureURLBytes   = 2048
)

// Register creates an identity. Usernames are unique ignoring case.
func (a *App) Register(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if err := auth.ValidateUsername(username); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	// The anonymous conversation key must never name a real sender.
	if strings.EqualFold(username, conversation.AnonymousKey) {
		return domain.User{}, fmt.Errorf("%w: username %q is reserved", ErrInvalidInput, username)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	_, exists, err := a.store.FindUserByUsername(ctx, username, false)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, ErrUsernameTaken
	}
	passwordHash, err := auth.HashPasswordWithCost(password, a.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(ctx, domain.User{
		Username:     username,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	util.LoggerFromContext(ctx).Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials against the exact username and issues a token.
func (a *App) Login(ctx context.Context, username, password string) (string, domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", domain.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	user, ok, err := a.store.FindUserByUsername(ctx, username, true)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		auth.BurnPasswordCheck(password)
		return "", domain.User{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("issue token: %w", err)
	}
	return token, user, nil
}

// Verify returns the identity id bound to a token. Revoker failures are
// returned wrapped and never reported as ErrInvalidToken.
func (a *App) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	switch {
	case errors.Is(err, store.ErrInvalidSession), errors.Is(err, store.ErrTokenRevoked):
		return "", ErrInvalidToken
	case err != nil:
		return "", fmt.Errorf("verify token: %w", err)
	case !ok || userID == "":
		return "", ErrInvalidToken
	}
	return userID, nil
}

// UserFromToken resolves the identity behind a bearer token. A token whose
// identity no longer exists is ErrInvalidToken.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load token user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidToken
	}
	return user, nil
}

// Logout revokes a single token until it would have expired.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UpdateProfile applies requestTitle/profilePicture edits and returns the
// stored identity. An empty picture resets to the generated avatar.
func (a *App) UpdateProfile(ctx context.Context, user domain.User, update domain.ProfileUpdate) (domain.User, error) {
	if update.Empty() {
		return domain.User{}, fmt.Errorf("%w: requestTitle or profilePicture is required", ErrInvalidInput)
	}
	if update.RequestTitle != nil {
		title := strings.TrimSpace(*update.RequestTitle)
		if title == "" {
			return domain.User{}, fmt.Errorf("%w: requestTitle must not be empty", ErrInvalidInput)
		}
		if utf8.RuneCountInString(title) > maxRequestTitleRunes {
			return domain.User{}, fmt.Errorf("%w: requestTitle must be at most %d characters", ErrInvalidInput, maxRequestTitleRunes)
		}
		update.RequestTitle = &title
	}
	if update.ProfilePicture != nil {
		picture := strings.TrimSpace(*update.ProfilePicture)
		if picture == "" {
			picture = domain.DefaultProfilePicture(user.Username)
		} else if err := validatePictureURL(picture); err != nil {
			return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		update.ProfilePicture = &picture
	}

	updated, ok, err := a.store.UpdateUserProfile(ctx, user.ID, update)
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return updated, nil
}

// Profile returns the public profile for username and counts the visit.
func (a *App) Profile(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, ErrUserNotFound
	}
	user, ok, err := a.store.FindUserByUsername(ctx, username, false)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	counted, ok, err := a.store.IncrementHitCount(ctx, user.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("increment hit count: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return counted, nil
}

func validatePictureURL(raw string) error {
	if len(raw) > maxPictureURLBytes {
		return fmt.Errorf("profilePicture must be at most %d bytes", maxPictureURLBytes)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("profilePicture must be an http(s) URL")
	}
	return nil
}
