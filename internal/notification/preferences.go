// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/parley/internal/logging"
)

var (
	// ErrPreferencesNotFound is returned by a PreferenceStore for users without a row.
	ErrPreferencesNotFound = errors.New("notification preferences not found")
	// ErrPreferencesExist is returned by PreferenceStore.Insert when a row already exists.
	ErrPreferencesExist = errors.New("notification preferences already exist")
)

// Category groups notification types that share a preference.
type Category string

const (
	CategoryLikes    Category = "likes"
	CategoryComments Category = "comments"
	CategoryFollows  Category = "follows"
	CategoryMentions Category = "mentions"
	CategoryMessages Category = "messages"
)

// CategoryOf maps t to its preference category. ok is false for system and
// unknown types, which have no user preference.
func CategoryOf(t Type) (Category, bool) {
	switch t {
	case TypeLikePost, TypeLikeComment:
		return CategoryLikes, true
	case TypeComment, TypeCommentReply:
		return CategoryComments, true
	case TypeFollowRequest, TypeFollowAccepted, TypeNewFollower:
		return CategoryFollows, true
	case TypeMention:
		return CategoryMentions, true
	case TypeNewMessage:
		return CategoryMessages, true
	default:
		return "", false
	}
}

// Preferences is a user's per-category, per-channel switch matrix.
type Preferences struct {
	UserID        string    `json:"userId"`
	LikesWeb      bool      `json:"likesWeb"`
	LikesEmail    bool      `json:"likesEmail"`
	CommentsWeb   bool      `json:"commentsWeb"`
	CommentsEmail bool      `json:"commentsEmail"`
	FollowsWeb    bool      `json:"followsWeb"`
	FollowsEmail  bool      `json:"followsEmail"`
	MentionsWeb   bool      `json:"mentionsWeb"`
	MentionsEmail bool      `json:"mentionsEmail"`
	MessagesWeb   bool      `json:"messagesWeb"`
	MessagesEmail bool      `json:"messagesEmail"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DefaultPreferences enables every web notification and every email except likes.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:        userID,
		LikesWeb:      true,
		LikesEmail:    false,
		CommentsWeb:   true,
		CommentsEmail: true,
		FollowsWeb:    true,
		FollowsEmail:  true,
		MentionsWeb:   true,
		MentionsEmail: true,
		MessagesWeb:   true,
		MessagesEmail: true,
	}
}

// Web reports whether web notifications are enabled for c.
func (p *Preferences) Web(c Category) bool {
	switch c {
	case CategoryLikes:
		return p.LikesWeb
	case CategoryComments:
		return p.CommentsWeb
	case CategoryFollows:
		return p.FollowsWeb
	case CategoryMentions:
		return p.MentionsWeb
	case CategoryMessages:
		return p.MessagesWeb
	}
	return true
}

// Email reports whether email notifications are enabled for c.
func (p *Preferences) Email(c Category) bool {
	switch c {
	case CategoryLikes:
		return p.LikesEmail
	case CategoryComments:
		return p.CommentsEmail
	case CategoryFollows:
		return p.FollowsEmail
	case CategoryMentions:
		return p.MentionsEmail
	case CategoryMessages:
		return p.MessagesEmail
	}
	return false
}

// PreferencesPatch holds the flags to change; nil fields are left as they are.
type PreferencesPatch struct {
	LikesWeb      *bool `json:"likesWeb,omitempty"`
	LikesEmail    *bool `json:"likesEmail,omitempty"`
	CommentsWeb   *bool `json:"commentsWeb,omitempty"`
	CommentsEmail *bool `json:"commentsEmail,omitempty"`
	FollowsWeb    *bool `json:"followsWeb,omitempty"`
	FollowsEmail  *bool `json:"followsEmail,omitempty"`
	MentionsWeb   *bool `json:"mentionsWeb,omitempty"`
	MentionsEmail *bool `json:"mentionsEmail,omitempty"`
	MessagesWeb   *bool `json:"messagesWeb,omitempty"`
	MessagesEmail *bool `json:"messagesEmail,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (pp *PreferencesPatch) Empty() bool {
	return pp.LikesWeb == nil && pp.LikesEmail == nil &&
		pp.CommentsWeb == nil && pp.CommentsEmail == nil &&
		pp.FollowsWeb == nil && pp.FollowsEmail == nil &&
		pp.MentionsWeb == nil && pp.MentionsEmail == nil &&
		pp.MessagesWeb == nil && pp.MessagesEmail == nil
}

// Apply copies the set fields onto p.
func (pp *PreferencesPatch) Apply(p *Preferences) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.LikesWeb, pp.LikesWeb)
	set(&p.LikesEmail, pp.LikesEmail)
	set(&p.CommentsWeb, pp.CommentsWeb)
	set(&p.CommentsEmail, pp.CommentsEmail)
	set(&p.FollowsWeb, pp.FollowsWeb)
	set(&p.FollowsEmail, pp.FollowsEmail)
	set(&p.MentionsWeb, pp.MentionsWeb)
	set(&p.MentionsEmail, pp.MentionsEmail)
	set(&p.MessagesWeb, pp.MessagesWeb)
	set(&p.MessagesEmail, pp.MessagesEmail)
}

// PreferenceStore persists preference rows.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	InsertPreferences(ctx context.Context, p Preferences) (*Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error)
}

// PreferenceService reads and updates preferences, creating defaults on
// first access.
type PreferenceService struct {
	store PreferenceStore
}

// NewPreferenceService creates a PreferenceService over store.
func NewPreferenceService(store PreferenceStore) *PreferenceService {
	return &PreferenceService{store: store}
}

// Get returns userID's preferences, inserting defaults when none exist.
// A concurrent insert of the same row is resolved by reading the winner.
func (s *PreferenceService) Get(ctx context.Context, userID string) (*Preferences, error) {
	p, err := s.store.GetPreferences(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPreferencesNotFound) {
		return nil, err
	}

	p, err = s.store.InsertPreferences(ctx, DefaultPreferences(userID))
	if errors.Is(err, ErrPreferencesExist) {
		return s.store.GetPreferences(ctx, userID)
	}
	return p, err
}

// Update applies patch to userID's preferences.
func (s *PreferenceService) Update(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}
	return s.store.UpdatePreferences(ctx, userID, patch)
}

// ShouldSendWeb reports whether t may be shown in the web feed. System
// types and lookup failures default to on.
func (s *PreferenceService) ShouldSendWeb(ctx context.Context, userID string, t Type) bool {
	cat, ok := CategoryOf(t)
	if !ok {
		return true
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Preference lookup failed, defaulting web on")
		return true
	}
	return p.Web(cat)
}

// ShouldSendEmail reports whether t may be emailed. System types and
// lookup failures default to off.
func (s *PreferenceService) ShouldSendEmail(ctx context.Context, userID string, t Type) bool {
	cat, ok := CategoryOf(t)
	if !ok {
		return false
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Preference lookup failed, defaulting email off")
		return false
	}
	return p.Email(cat)
}
