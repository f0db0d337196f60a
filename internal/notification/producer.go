// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/validation"
)

// EventPublisher publishes a message to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// PreferenceChecker decides which channels a notification may use.
type PreferenceChecker interface {
	ShouldSendWeb(ctx context.Context, userID string, t Type) bool
	ShouldSendEmail(ctx context.Context, userID string, t Type) bool
}

// Producer turns notification requests into queue messages.
type Producer struct {
	publisher EventPublisher
	prefs     PreferenceChecker
}

// NewProducer creates a Producer.
func NewProducer(publisher EventPublisher, prefs PreferenceChecker) *Producer {
	return &Producer{publisher: publisher, prefs: prefs}
}

// SendNotification publishes p to notification.created with the channel
// flags resolved from the recipient's preferences. Nothing is published
// when both channels are off. Invalid payloads are returned as validation
// errors; publish failures are logged and swallowed.
func (p *Producer) SendNotification(ctx context.Context, payload Payload) error {
	if err := validation.Validate(&payload); err != nil {
		return err
	}

	web := p.prefs.ShouldSendWeb(ctx, payload.UserID, payload.Type)
	email := p.prefs.ShouldSendEmail(ctx, payload.UserID, payload.Type)
	if !web && !email {
		metrics.NotificationsSuppressed.WithLabelValues(string(payload.Type)).Inc()
		logging.Ctx(ctx).Debug().
			Str("user_id", payload.UserID).
			Str("type", string(payload.Type)).
			Msg("Notification suppressed by preferences")
		return nil
	}
	payload.SendWeb = boolPtr(web)
	payload.SendEmail = boolPtr(email)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set("type", string(payload.Type))
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set("correlation_id", cid)
	}

	if err := p.publisher.Publish(ctx, TopicCreated, msg); err != nil {
		metrics.NotificationPublishFailures.WithLabelValues(string(payload.Type)).Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("user_id", payload.UserID).
			Str("type", string(payload.Type)).
			Msg("Failed to publish notification")
		return nil
	}

	metrics.NotificationsPublished.WithLabelValues(string(payload.Type)).Inc()
	return nil
}

// SendPasswordReset publishes a password reset email request. Preferences
// do not apply and publish errors are returned.
func (p *Producer) SendPasswordReset(ctx context.Context, payload PasswordResetPayload) error {
	payload.Type = passwordResetType
	if err := validation.Validate(&payload); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode password reset: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set("type", passwordResetType)
	if err := p.publisher.Publish(ctx, TopicPasswordReset, msg); err != nil {
		metrics.NotificationPublishFailures.WithLabelValues(passwordResetType).Inc()
		return fmt.Errorf("publish password reset: %w", err)
	}

	metrics.NotificationsPublished.WithLabelValues(passwordResetType).Inc()
	return nil
}
