// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// URLResolver turns a storage key into a client-facing URL.
type URLResolver interface {
	GetAssetURL(storageKey string) string
}

// CleanupQueue receives storage keys whose files should be removed.
type CleanupQueue interface {
	Enqueue(storageKeys []string)
}

// Service is the message store adapter used by the gateway and the API.
type Service struct {
	repo         Repository
	urls         URLResolver
	cleanup      CleanupQueue
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// NewService creates a Service. urls and cleanup may be nil.
func NewService(repo Repository, urls URLResolver, cleanup CleanupQueue, cfg config.ChatConfig) *Service {
	s := &Service{
		repo:         repo,
		urls:         urls,
		cleanup:      cleanup,
		defaultLimit: cfg.DefaultPageSize,
		maxLimit:     cfg.MaxPageSize,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = 50
	}
	if s.maxLimit <= 0 {
		s.maxLimit = 100
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// RequireParticipant returns nil when userID is an active participant of
// chatID, NotFound when the chat does not exist and Forbidden otherwise.
func (s *Service) RequireParticipant(ctx context.Context, chatID, userID string) error {
	_, err := requireActive(ctx, s.repo, chatID, userID)
	return err
}

// ActiveParticipantUserIDs lists the users who have not left chatID.
func (s *Service) ActiveParticipantUserIDs(ctx context.Context, chatID string) ([]string, error) {
	ids, err := s.repo.ActiveParticipantIDs(ctx, chatID)
	if err != nil {
		return nil, apperrors.Infrastructure("list participants", err)
	}
	return ids, nil
}

// CreateMessage stores a new message from an active participant.
func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	assetIDs := dedupe(in.AssetIDs)
	if strings.TrimSpace(in.Content) == "" && len(assetIDs) == 0 {
		return nil, apperrors.Validation("message must have content or attachments")
	}

	msg := &Message{
		ChatID:           in.ChatID,
		SenderID:         in.SenderID,
		Content:          in.Content,
		ReplyToMessageID: in.ReplyToMessageID,
	}

	err := s.repo.InTx(ctx, func(q Queries) error {
		if _, err := requireActive(ctx, q, in.ChatID, in.SenderID); err != nil {
			return err
		}
		if in.ReplyToMessageID != nil {
			target, err := q.GetMessage(ctx, *in.ReplyToMessageID, false)
			if errors.Is(err, ErrMessageNotFound) || (err == nil && (target.IsDeleted || target.ChatID != in.ChatID)) {
				return apperrors.NotFound("reply target not found")
			}
			if err != nil {
				return apperrors.Infrastructure("load reply target", err)
			}
		}
		assets, err := checkAssets(ctx, q, in.SenderID, assetIDs)
		if err != nil {
			return err
		}
		if err := q.InsertMessage(ctx, msg); err != nil {
			return apperrors.Infrastructure("create message", err)
		}
		if err := q.AttachAssets(ctx, msg.ID, assetIDs); err != nil {
			return apperrors.Infrastructure("attach assets", err)
		}
		for i := range assets {
			assets[i].MessageID = &msg.ID
		}
		msg.Assets = assets
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.resolveURLs(msg.Assets)
	metrics.ChatMessages.WithLabelValues("created").Inc()
	return msg, nil
}

// EditMessage replaces the content of a message owned by userID.
func (s *Service) EditMessage(ctx context.Context, userID string, messageID int64, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.Validation("content is required")
	}

	var msg *Message
	err := s.repo.InTx(ctx, func(q Queries) error {
		m, err := authorMessage(ctx, q, userID, messageID)
		if err != nil {
			return err
		}
		editedAt := s.now()
		if err := q.UpdateMessageContent(ctx, messageID, content, editedAt); err != nil {
			return apperrors.Infrastructure("edit message", err)
		}
		m.Content = content
		m.IsEdited = true
		m.EditedAt = &editedAt
		msg = m
		return s.loadAssets(ctx, q, []*Message{m})
	})
	if err != nil {
		return nil, err
	}

	s.resolveURLs(msg.Assets)
	metrics.ChatMessages.WithLabelValues("edited").Inc()
	return msg, nil
}

// DeleteMessage soft-deletes a message owned by userID. The files of its
// attachments are queued for removal once the deletion has committed.
func (s *Service) DeleteMessage(ctx context.Context, userID string, messageID int64) (*Message, error) {
	var (
		msg  *Message
		keys []string
	)
	err := s.repo.InTx(ctx, func(q Queries) error {
		m, err := authorMessage(ctx, q, userID, messageID)
		if err != nil {
			return err
		}
		deletedAt := s.now()
		if err := q.SoftDeleteMessage(ctx, messageID, deletedAt); err != nil {
			return apperrors.Infrastructure("delete message", err)
		}
		byMessage, err := q.AssetsForMessages(ctx, []int64{messageID})
		if err != nil {
			return apperrors.Infrastructure("load message assets", err)
		}
		for _, a := range byMessage[messageID] {
			keys = append(keys, a.StorageKey)
		}
		m.IsDeleted = true
		m.DeletedAt = &deletedAt
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(keys) > 0 && s.cleanup != nil {
		s.cleanup.Enqueue(keys)
	}
	metrics.ChatMessages.WithLabelValues("deleted").Inc()
	return msg, nil
}

// AttachAssets attaches uploaded assets to an existing message owned by userID.
func (s *Service) AttachAssets(ctx context.Context, userID string, messageID int64, assetIDs []string) (*Message, error) {
	assetIDs = dedupe(assetIDs)
	if len(assetIDs) == 0 {
		return nil, apperrors.Validation("at least one asset is required")
	}

	var msg *Message
	err := s.repo.InTx(ctx, func(q Queries) error {
		m, err := authorMessage(ctx, q, userID, messageID)
		if err != nil {
			return err
		}
		if _, err := checkAssets(ctx, q, userID, assetIDs); err != nil {
			return err
		}
		if err := q.AttachAssets(ctx, messageID, assetIDs); err != nil {
			return apperrors.Infrastructure("attach assets", err)
		}
		msg = m
		return s.loadAssets(ctx, q, []*Message{m})
	})
	if err != nil {
		return nil, err
	}
	s.resolveURLs(msg.Assets)
	return msg, nil
}

// FetchMessages returns history older than cursor (exclusive), oldest first.
// The content of deleted messages is withheld.
func (s *Service) FetchMessages(ctx context.Context, userID, chatID string, cursor *int64, limit int) (*Page, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	if _, err := requireActive(ctx, s.repo, chatID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, chatID, cursor, limit)
	if err != nil {
		return nil, apperrors.Infrastructure("fetch messages", err)
	}

	ptrs := make([]*Message, len(msgs))
	for i := range msgs {
		ptrs[i] = &msgs[i]
	}
	if err := s.loadAssets(ctx, s.repo, ptrs); err != nil {
		return nil, err
	}

	page := &Page{Messages: make([]Message, 0, len(msgs)), HasMore: len(msgs) == limit, Limit: limit}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.IsDeleted {
			m.Content = ""
			m.Assets = nil
		}
		s.resolveURLs(m.Assets)
		page.Messages = append(page.Messages, m)
	}
	if len(page.Messages) > 0 {
		oldest := page.Messages[0].ID
		page.NextCursor = &oldest
	}
	return page, nil
}

func (s *Service) loadAssets(ctx context.Context, q Queries, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	byMessage, err := q.AssetsForMessages(ctx, ids)
	if err != nil {
		return apperrors.Infrastructure("load message assets", err)
	}
	for _, m := range msgs {
		m.Assets = byMessage[m.ID]
	}
	return nil
}

func (s *Service) resolveURLs(assets []Asset) {
	if s.urls == nil {
		return
	}
	for i := range assets {
		assets[i].URL = s.urls.GetAssetURL(assets[i].StorageKey)
	}
}

func requireActive(ctx context.Context, q Queries, chatID, userID string) (*Participant, error) {
	p, err := q.GetParticipant(ctx, chatID, userID)
	if errors.Is(err, ErrParticipantNotFound) {
		exists, existsErr := q.ChatExists(ctx, chatID)
		if existsErr != nil {
			return nil, apperrors.Infrastructure("check chat", existsErr)
		}
		if !exists {
			return nil, apperrors.NotFound("chat not found")
		}
		return nil, apperrors.Forbidden("not a participant of this chat")
	}
	if err != nil {
		return nil, apperrors.Infrastructure("check participant", err)
	}
	if !p.Active() {
		return nil, apperrors.Forbidden("you have left this chat")
	}
	return p, nil
}

// authorMessage loads a live message for update and checks userID may change it.
func authorMessage(ctx context.Context, q Queries, userID string, messageID int64) (*Message, error) {
	m, err := q.GetMessage(ctx, messageID, true)
	if errors.Is(err, ErrMessageNotFound) {
		return nil, apperrors.NotFound("message not found")
	}
	if err != nil {
		return nil, apperrors.Infrastructure("load message", err)
	}
	if m.IsDeleted {
		return nil, apperrors.NotFound("message not found")
	}
	if m.SenderID != userID {
		return nil, apperrors.Forbidden("only the author can change this message")
	}
	if _, err := requireActive(ctx, q, m.ChatID, userID); err != nil {
		return nil, err
	}
	return m, nil
}

func checkAssets(ctx context.Context, q Queries, ownerID string, ids []string) ([]Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	assets, err := q.GetAssets(ctx, ids)
	if err != nil {
		return nil, apperrors.Infrastructure("load assets", err)
	}
	if len(assets) != len(ids) {
		return nil, apperrors.NotFound("asset not found")
	}
	for _, a := range assets {
		if a.OwnerID != ownerID {
			return nil, apperrors.Forbidden("asset belongs to another user")
		}
		if a.MessageID != nil {
			logging.Ctx(ctx).Debug().Str("asset_id", a.ID).Int64("message_id", *a.MessageID).Msg("Asset already attached")
			return nil, apperrors.Validation("asset is already attached to a message")
		}
	}
	return assets, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
