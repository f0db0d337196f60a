// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/chat"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/notification"
	"github.com/tomtom215/parley/internal/presence"
	"github.com/tomtom215/parley/internal/validation"
)

const (
	presenceTimeout = 5 * time.Second
	previewLength   = 140
)

// MessageStore is the chat operations the gateway needs.
type MessageStore interface {
	RequireParticipant(ctx context.Context, chatID, userID string) error
	ActiveParticipantUserIDs(ctx context.Context, chatID string) ([]string, error)
	CreateMessage(ctx context.Context, in chat.CreateMessageInput) (*chat.Message, error)
	EditMessage(ctx context.Context, userID string, messageID int64, content string) (*chat.Message, error)
	DeleteMessage(ctx context.Context, userID string, messageID int64) (*chat.Message, error)
}

// Notifier queues notifications for offline recipients.
type Notifier interface {
	SendNotification(ctx context.Context, p notification.Payload) error
}

type eventHandler func(ctx context.Context, c *Client, data json.RawMessage) error

// Gateway routes socket events to the chat store and fans the results out
// to rooms.
type Gateway struct {
	hub      *Hub
	registry presence.Registry
	store    MessageStore
	notifier Notifier
	cfg      config.GatewayConfig
	handlers map[string]eventHandler
}

// NewGateway creates a Gateway. notifier may be nil.
func NewGateway(hub *Hub, registry presence.Registry, store MessageStore, notifier Notifier, cfg config.GatewayConfig) *Gateway {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	g := &Gateway{
		hub:      hub,
		registry: registry,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
	}
	g.handlers = map[string]eventHandler{
		EventJoin:          g.handleJoin,
		EventLeave:         g.handleLeave,
		EventTyping:        g.handleTyping,
		EventMessage:       g.handleMessage,
		EventMessageEdit:   g.handleEdit,
		EventMessageDelete: g.handleDelete,
	}
	return g
}

// Hub returns the gateway's hub.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// connect registers c, announces a first connection and replays the
// current online users to c.
func (g *Gateway) connect(ctx context.Context, c *Client) {
	g.hub.Register(c)

	first, err := g.registry.AddConnection(ctx, c.UserID(), c.ConnectionID())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record connection in presence registry")
	}
	if first {
		g.hub.BroadcastAll(EventPresence, PresenceEvent{UserID: c.UserID(), IsOnline: true}, c)
	}

	online, err := g.registry.OnlineUsers(ctx)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to list online users")
		return
	}
	for _, userID := range online {
		if userID == c.UserID() {
			continue
		}
		g.hub.Send(c, EventPresence, PresenceEvent{UserID: userID, IsOnline: true})
	}
}

// disconnect removes c everywhere and announces the user's last
// connection going away.
func (g *Gateway) disconnect(ctx context.Context, c *Client) {
	g.hub.Unregister(c)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()

	last, err := g.registry.RemoveConnection(ctx, c.UserID(), c.ConnectionID())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to remove connection from presence registry")
		return
	}
	if last {
		g.hub.BroadcastAll(EventPresence, PresenceEvent{UserID: c.UserID(), IsOnline: false}, nil)
	}
}

// dispatch decodes one frame and runs its handler. Errors and panics are
// reported to c as error events.
func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	event := "unknown"
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("event", event).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic in socket handler")
			g.fail(ctx, c, event, apperrors.Infrastructure("handler panic", fmt.Errorf("%v", r)))
		}
	}()

	if !c.allow() {
		metrics.WSErrors.WithLabelValues(apperrors.CodeRateLimited).Inc()
		g.hub.Send(c, EventError, ErrorEvent{Message: "too many events, slow down", Code: apperrors.CodeRateLimited})
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.fail(ctx, c, event, apperrors.Validation("malformed frame"))
		return
	}
	handler, ok := g.handlers[env.Event]
	if !ok {
		metrics.WSEventsReceived.WithLabelValues(event).Inc()
		g.fail(ctx, c, event, apperrors.Validation("unknown event "+strconv.Quote(env.Event)))
		return
	}
	event = env.Event
	metrics.WSEventsReceived.WithLabelValues(event).Inc()

	if err := handler(ctx, c, env.Data); err != nil {
		g.fail(ctx, c, event, err)
	}
}

// fail reports err to c without leaking infrastructure details.
func (g *Gateway) fail(ctx context.Context, c *Client, event string, err error) {
	code, msg := apperrors.Public(err)
	if apperrors.KindOf(err) == apperrors.KindInfrastructure {
		logging.Ctx(ctx).Error().Err(err).Str("event", event).Msg("Socket handler failed")
	} else {
		logging.Ctx(ctx).Debug().Err(err).Str("event", event).Msg("Socket event rejected")
	}
	metrics.WSErrors.WithLabelValues(code).Inc()
	g.hub.Send(c, EventError, ErrorEvent{Message: msg, Code: code})
}

// decode unmarshals and validates an event payload.
func decode[T any](data json.RawMessage) (*T, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return nil, apperrors.Validation("missing event data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperrors.Validation("malformed event data")
	}
	if err := validation.Validate(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, data json.RawMessage) error {
	p, err := decode[JoinPayload](data)
	if err != nil {
		return err
	}
	if err := g.store.RequireParticipant(ctx, p.ChatID, c.UserID()); err != nil {
		return err
	}
	if g.hub.Join(c, p.ChatID) {
		user := c.User()
		g.hub.BroadcastRoom(p.ChatID, EventUserJoined, UserJoinedEvent{
			ChatID:      p.ChatID,
			UserID:      user.ID,
			DisplayName: user.Name(),
			AvatarURL:   user.AvatarURL,
		}, c)
	}
	return nil
}

func (g *Gateway) handleLeave(_ context.Context, c *Client, data json.RawMessage) error {
	p, err := decode[LeavePayload](data)
	if err != nil {
		return err
	}
	if g.hub.Leave(c, p.ChatID) {
		g.hub.BroadcastRoom(p.ChatID, EventUserLeft, UserLeftEvent{ChatID: p.ChatID, UserID: c.UserID()}, nil)
	}
	return nil
}

func (g *Gateway) handleTyping(_ context.Context, c *Client, data json.RawMessage) error {
	p, err := decode[TypingPayload](data)
	if err != nil {
		return err
	}
	if !g.hub.InRoom(c, p.ChatID) {
		return apperrors.Forbidden("join the chat first")
	}
	g.hub.BroadcastRoom(p.ChatID, EventTyping, TypingEvent{ChatID: p.ChatID, UserID: c.UserID(), IsTyping: p.IsTyping}, c)
	return nil
}

func (g *Gateway) handleMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	p, err := decode[MessagePayload](data)
	if err != nil {
		return err
	}
	msg, err := g.store.CreateMessage(ctx, chat.CreateMessageInput{
		ChatID:           p.ChatID,
		SenderID:         c.UserID(),
		Content:          p.Content,
		ReplyToMessageID: p.ReplyToMessageID,
		AssetIDs:         p.AssetIDs,
	})
	if err != nil {
		return err
	}
	g.hub.BroadcastRoom(msg.ChatID, EventMessage, msg, nil)

	if g.notifier != nil {
		go g.notifyOffline(context.WithoutCancel(ctx), c, msg)
	}
	return nil
}

func (g *Gateway) handleEdit(ctx context.Context, c *Client, data json.RawMessage) error {
	p, err := decode[EditPayload](data)
	if err != nil {
		return err
	}
	msg, err := g.store.EditMessage(ctx, c.UserID(), p.MessageID, p.Content)
	if err != nil {
		return err
	}
	g.hub.BroadcastRoom(msg.ChatID, EventMessageEdited, msg, nil)
	return nil
}

func (g *Gateway) handleDelete(ctx context.Context, c *Client, data json.RawMessage) error {
	p, err := decode[DeletePayload](data)
	if err != nil {
		return err
	}
	msg, err := g.store.DeleteMessage(ctx, c.UserID(), p.MessageID)
	if err != nil {
		return err
	}
	g.hub.BroadcastRoom(msg.ChatID, EventMessageDeleted, MessageDeletedEvent{ChatID: msg.ChatID, MessageID: msg.ID}, nil)
	return nil
}

// notifyOffline sends NEW_MESSAGE notifications to participants of the
// message's chat who have no open connection.
func (g *Gateway) notifyOffline(ctx context.Context, sender *Client, msg *chat.Message) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	recipients, err := g.store.ActiveParticipantUserIDs(ctx, msg.ChatID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("chat_id", msg.ChatID).Msg("Failed to list participants for notifications")
		return
	}

	preview := truncateRunes(msg.Content, previewLength)
	if preview == "" {
		preview = "Sent an attachment"
	}
	senderName := sender.User().Name()

	for _, userID := range recipients {
		if userID == msg.SenderID {
			continue
		}
		online, err := g.registry.IsOnline(ctx, userID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Presence lookup failed, skipping notification")
			continue
		}
		if online {
			continue
		}
		err = g.notifier.SendNotification(ctx, notification.Payload{
			UserID:     userID,
			Type:       notification.TypeNewMessage,
			Title:      "New message from " + senderName,
			Message:    preview,
			EntityType: "chat",
			EntityID:   msg.ChatID,
			ActorID:    msg.SenderID,
			Metadata:   map[string]any{"messageId": msg.ID},
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Failed to queue message notification")
		}
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
