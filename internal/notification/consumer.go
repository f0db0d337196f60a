// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/mail"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/validation"
)

// Consumer outcomes recorded in metrics.
const (
	outcomeProcessed  = "processed"
	outcomeDeadLetter = "dead_letter"
	outcomeRetry      = "retry"
	outcomeSkipped    = "skipped"
)

const (
	defaultHandlerTimeout = 30 * time.Second
	defaultMaxDeliver     = 5
)

// EventSubscriber opens a message stream for a topic.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// ConsumerDeps are the collaborators of a Consumer. Mailer may be nil, in
// which case email is skipped.
type ConsumerDeps struct {
	Created       EventSubscriber
	PasswordReset EventSubscriber
	DeadLetter    EventPublisher
	Store         Store
	Directory     directory.Directory
	Mailer        mail.Sender
	Templates     *TemplateEngine
}

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	// PublicURL is the web app origin used for links in email.
	PublicURL string
	// MaxDeliver caps delivery attempts of a nacked message before it is
	// dead-lettered.
	MaxDeliver     int
	HandlerTimeout time.Duration
}

// Consumer writes web notifications and sends email for queued events.
// Messages are handled one at a time and acknowledged when done.
type Consumer struct {
	deps   ConsumerDeps
	cfg    ConsumerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewConsumer creates a Consumer.
func NewConsumer(deps ConsumerDeps, cfg ConsumerConfig) (*Consumer, error) {
	if deps.Created == nil || deps.PasswordReset == nil || deps.DeadLetter == nil {
		return nil, errors.New("notification consumer: subscribers and dead letter publisher are required")
	}
	if deps.Store == nil || deps.Directory == nil || deps.Templates == nil {
		return nil, errors.New("notification consumer: store, directory and templates are required")
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = defaultMaxDeliver
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	return &Consumer{
		deps:     deps,
		cfg:      cfg,
		logger:   logging.WithComponent("notification-consumer"),
		attempts: make(map[string]int),
	}, nil
}

// Serve runs the pull/ack loop until ctx is cancelled. It implements
// suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	created, err := c.deps.Created.Subscribe(ctx, TopicCreated)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicCreated, err)
	}
	resets, err := c.deps.PasswordReset.Subscribe(ctx, TopicPasswordReset)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicPasswordReset, err)
	}

	c.logger.Info().Msg("Notification consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Notification consumer stopped")
			return ctx.Err()
		case msg, ok := <-created:
			if !ok {
				return fmt.Errorf("subscription %s closed", TopicCreated)
			}
			c.dispatch(ctx, TopicCreated, msg, c.handleCreated)
		case msg, ok := <-resets:
			if !ok {
				return fmt.Errorf("subscription %s closed", TopicPasswordReset)
			}
			c.dispatch(ctx, TopicPasswordReset, msg, c.handlePasswordReset)
		}
	}
}

// String names the service in supervisor logs.
func (c *Consumer) String() string {
	return "notification-consumer"
}

// errRetry asks dispatch to nack the message.
var errRetry = errors.New("retry")

// errMalformed asks dispatch to dead-letter and ack the message.
type errMalformed struct{ reason string }

func (e *errMalformed) Error() string { return "malformed payload: " + e.reason }

func malformed(format string, args ...any) error {
	return &errMalformed{reason: fmt.Sprintf(format, args...)}
}

type handlerFunc func(ctx context.Context, msg *message.Message) (outcome string, err error)

// dispatch runs one handler and settles the message.
func (c *Consumer) dispatch(parent context.Context, topic string, msg *message.Message, handle handlerFunc) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, c.cfg.HandlerTimeout)
	defer cancel()
	if cid := msg.Metadata.Get("correlation_id"); cid != "" {
		ctx = logging.ContextWithCorrelationID(ctx, cid)
	}

	outcome, err := handle(ctx, msg)

	var bad *errMalformed
	switch {
	case errors.As(err, &bad):
		c.deadLetter(ctx, topic, msg, bad.reason)
		outcome = outcomeDeadLetter
		c.settle(msg, true)
	case errors.Is(err, errRetry):
		if c.attempt(msg.UUID) >= c.cfg.MaxDeliver {
			c.deadLetter(ctx, topic, msg, "delivery attempts exhausted")
			outcome = outcomeDeadLetter
			c.settle(msg, true)
		} else {
			outcome = outcomeRetry
			c.settle(msg, false)
		}
	default:
		c.settle(msg, true)
	}

	metrics.RecordNotificationProcessed(topic, outcome, time.Since(start))
}

// attempt counts a failed delivery of id and returns the total so far.
func (c *Consumer) attempt(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[id]++
	return c.attempts[id]
}

func (c *Consumer) settle(msg *message.Message, ack bool) {
	if ack {
		c.mu.Lock()
		delete(c.attempts, msg.UUID)
		c.mu.Unlock()
		msg.Ack()
		return
	}
	msg.Nack()
}

// deadLetter parks msg on the dead letter subject. A failed forward is
// logged; the message is still acked.
func (c *Consumer) deadLetter(ctx context.Context, topic string, msg *message.Message, reason string) {
	dl := message.NewMessage(uuid.NewString(), msg.Payload)
	dl.Metadata.Set("original_topic", topic)
	dl.Metadata.Set("original_id", msg.UUID)
	dl.Metadata.Set("reason", reason)

	log := logging.Ctx(ctx).Warn().
		Str("topic", topic).
		Str("message_id", msg.UUID).
		Str("reason", reason)
	if err := c.deps.DeadLetter.Publish(ctx, TopicDeadLetter, dl); err != nil {
		log.Err(err).Msg("Failed to dead-letter message, dropping")
		return
	}
	log.Msg("Message dead-lettered")
}

func (c *Consumer) handleCreated(ctx context.Context, msg *message.Message) (string, error) {
	var p Payload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return "", malformed("decode: %v", err)
	}
	if err := validation.Validate(&p); err != nil {
		return "", malformed("%v", err)
	}

	web := p.SendWeb == nil || *p.SendWeb
	email := p.SendEmail != nil && *p.SendEmail
	if !web && !email {
		return outcomeSkipped, nil
	}

	var actor *directory.User
	if p.ActorID != "" {
		u, err := c.deps.Directory.GetUser(ctx, p.ActorID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("actor_id", p.ActorID).Msg("Actor lookup failed")
		} else {
			actor = u
		}
	}

	var stored *Notification
	if web {
		stored = c.storeWeb(ctx, &p, actor)
	}
	if email {
		c.sendEmail(ctx, &p, actor, stored)
	}
	return outcomeProcessed, nil
}

// storeWeb enriches and inserts the web notification. Failures are logged
// and nil is returned.
func (c *Consumer) storeWeb(ctx context.Context, p *Payload, actor *directory.User) *Notification {
	meta := make(map[string]any, len(p.Metadata)+5)
	for k, v := range p.Metadata {
		meta[k] = v
	}
	if p.ActorID != "" {
		meta[MetaActorID] = p.ActorID
	}
	if p.EntityType != "" {
		meta[MetaEntityType] = p.EntityType
	}
	if p.EntityID != "" {
		meta[MetaEntityID] = p.EntityID
	}
	if actor != nil && actor.AvatarURL != "" {
		meta[MetaActorAvatarURL] = actor.AvatarURL
	}
	if thumb := c.postThumbnail(ctx, p); thumb != "" {
		meta[MetaThumbnailURL] = thumb
	}

	n := &Notification{
		UserID:   p.UserID,
		Type:     p.Type,
		Title:    p.Title,
		Message:  p.Message,
		Metadata: meta,
	}
	if err := c.deps.Store.InsertNotification(ctx, n); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("user_id", p.UserID).
			Str("type", string(p.Type)).
			Msg("Failed to store notification")
		return nil
	}
	return n
}

func (c *Consumer) postThumbnail(ctx context.Context, p *Payload) string {
	if p.EntityType != "post" || p.EntityID == "" {
		return ""
	}
	thumb, err := c.deps.Directory.GetPostThumbnail(ctx, p.EntityID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("post_id", p.EntityID).Msg("Post thumbnail lookup failed")
		return ""
	}
	return thumb
}

func (c *Consumer) sendEmail(ctx context.Context, p *Payload, actor *directory.User, stored *Notification) {
	log := logging.Ctx(ctx)
	if c.deps.Mailer == nil {
		log.Debug().Str("user_id", p.UserID).Msg("Mail transport not configured, skipping email")
		return
	}

	recipient, err := c.deps.Directory.GetUser(ctx, p.UserID)
	if err != nil {
		if !errors.Is(err, directory.ErrUserNotFound) {
			log.Error().Err(err).Str("user_id", p.UserID).Msg("Recipient lookup failed")
		}
		return
	}
	if recipient.Email == "" {
		return
	}

	content := EmailContent{
		RecipientName: recipient.Name(),
		Title:         p.Title,
		Message:       p.Message,
		ActionURL:     c.actionURL(p),
	}
	if actor != nil {
		content.ActorName = actor.Name()
	}
	if stored != nil {
		if thumb, ok := stored.Metadata[MetaThumbnailURL].(string); ok {
			content.ThumbnailURL = thumb
		}
	} else {
		content.ThumbnailURL = c.postThumbnail(ctx, p)
	}

	rendered, err := c.deps.Templates.RenderNotification(p.Type, content)
	if err != nil {
		log.Error().Err(err).Str("type", string(p.Type)).Msg("Failed to render notification email")
		return
	}

	err = c.deps.Mailer.Send(ctx, mail.Message{
		To:      recipient.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Kind:    "notification",
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", p.UserID).Str("type", string(p.Type)).Msg("Failed to send notification email")
		return
	}

	if stored != nil {
		if err := c.deps.Store.MarkEmailSent(ctx, stored.ID, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Str("notification_id", stored.ID.String()).Msg("Failed to stamp email sent time")
		}
	}
}

// actionURL links the email to the entity it is about.
func (c *Consumer) actionURL(p *Payload) string {
	if c.cfg.PublicURL == "" {
		return ""
	}
	if cat, ok := CategoryOf(p.Type); ok && cat == CategoryFollows && p.ActorID != "" {
		return c.cfg.PublicURL + "/users/" + url.PathEscape(p.ActorID)
	}
	if p.Type == TypeNewMessage && p.EntityID != "" {
		return c.cfg.PublicURL + "/chats/" + url.PathEscape(p.EntityID)
	}
	if p.EntityType != "" && p.EntityID != "" {
		return c.cfg.PublicURL + "/" + url.PathEscape(p.EntityType) + "s/" + url.PathEscape(p.EntityID)
	}
	return c.cfg.PublicURL
}

func (c *Consumer) handlePasswordReset(ctx context.Context, msg *message.Message) (string, error) {
	var p PasswordResetPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return "", malformed("decode: %v", err)
	}
	if p.Type != passwordResetType {
		return "", malformed("unexpected type %q", p.Type)
	}
	if err := validation.Validate(&p); err != nil {
		return "", malformed("%v", err)
	}

	// Without a transport the reset is nacked, then parked on the dead
	// letter subject once MaxDeliver is reached.
	if c.deps.Mailer == nil {
		logging.Ctx(ctx).Error().Str("message_id", msg.UUID).Msg("Mail transport not configured, password reset not sent")
		return "", errRetry
	}

	rendered, err := c.deps.Templates.RenderPasswordReset(p.Username, p.ResetURL)
	if err != nil {
		return "", malformed("render: %v", err)
	}

	err = c.deps.Mailer.Send(ctx, mail.Message{
		To:      p.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Kind:    passwordResetType,
	})
	if errors.Is(err, mail.ErrInvalidRecipient) {
		return "", malformed("%v", err)
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("message_id", msg.UUID).Msg("Password reset email failed, will retry")
		return "", errRetry
	}
	return outcomeProcessed, nil
}
