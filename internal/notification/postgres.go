// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/metrics"
)

// PostgresStore keeps notifications and preferences in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ Store           = (*PostgresStore)(nil)
	_ PreferenceStore = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const preferenceColumns = `user_id, likes_web, likes_email, comments_web, comments_email,
	follows_web, follows_email, mentions_web, mentions_email,
	messages_web, messages_email, updated_at`

func scanPreferences(row pgx.Row) (*Preferences, error) {
	var p Preferences
	err := row.Scan(&p.UserID, &p.LikesWeb, &p.LikesEmail, &p.CommentsWeb, &p.CommentsEmail,
		&p.FollowsWeb, &p.FollowsEmail, &p.MentionsWeb, &p.MentionsEmail,
		&p.MessagesWeb, &p.MessagesEmail, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	start := time.Now()
	p, err := scanPreferences(s.pool.QueryRow(ctx,
		`SELECT `+preferenceColumns+` FROM notification_preferences WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordDBQuery("get_preferences", time.Since(start), nil)
		return nil, ErrPreferencesNotFound
	}
	metrics.RecordDBQuery("get_preferences", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("get preferences %s: %w", userID, err)
	}
	return p, nil
}

func (s *PostgresStore) InsertPreferences(ctx context.Context, in Preferences) (*Preferences, error) {
	start := time.Now()
	p, err := scanPreferences(s.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, likes_web, likes_email, comments_web, comments_email,
			follows_web, follows_email, mentions_web, mentions_email, messages_web, messages_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+preferenceColumns,
		in.UserID, in.LikesWeb, in.LikesEmail, in.CommentsWeb, in.CommentsEmail,
		in.FollowsWeb, in.FollowsEmail, in.MentionsWeb, in.MentionsEmail,
		in.MessagesWeb, in.MessagesEmail))
	if database.IsUniqueViolation(err) {
		metrics.RecordDBQuery("insert_preferences", time.Since(start), nil)
		return nil, ErrPreferencesExist
	}
	metrics.RecordDBQuery("insert_preferences", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("insert preferences %s: %w", in.UserID, err)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	start := time.Now()
	p, err := scanPreferences(s.pool.QueryRow(ctx, `
		UPDATE notification_preferences SET
			likes_web      = COALESCE($2, likes_web),
			likes_email    = COALESCE($3, likes_email),
			comments_web   = COALESCE($4, comments_web),
			comments_email = COALESCE($5, comments_email),
			follows_web    = COALESCE($6, follows_web),
			follows_email  = COALESCE($7, follows_email),
			mentions_web   = COALESCE($8, mentions_web),
			mentions_email = COALESCE($9, mentions_email),
			messages_web   = COALESCE($10, messages_web),
			messages_email = COALESCE($11, messages_email),
			updated_at     = now()
		WHERE user_id = $1
		RETURNING `+preferenceColumns,
		userID, patch.LikesWeb, patch.LikesEmail, patch.CommentsWeb, patch.CommentsEmail,
		patch.FollowsWeb, patch.FollowsEmail, patch.MentionsWeb, patch.MentionsEmail,
		patch.MessagesWeb, patch.MessagesEmail))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordDBQuery("update_preferences", time.Since(start), nil)
		return nil, ErrPreferencesNotFound
	}
	metrics.RecordDBQuery("update_preferences", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("update preferences %s: %w", userID, err)
	}
	return p, nil
}

const notificationColumns = `id, user_id, type, title, message, metadata,
	is_read, read_at, email_sent_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n    Notification
		meta []byte
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &meta,
		&n.IsRead, &n.ReadAt, &n.EmailSentAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	start := time.Now()
	err = s.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING created_at
	`, n.ID, n.UserID, string(n.Type), n.Title, n.Message, string(meta)).Scan(&n.CreatedAt)
	metrics.RecordDBQuery("insert_notification", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert notification for %s: %w", n.UserID, err)
	}
	return nil
}

func (s *PostgresStore) MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET email_sent_at = $2 WHERE id = $1`, id, at)
	metrics.RecordDBQuery("mark_email_sent", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("mark email sent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int, before *time.Time) ([]Notification, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, before, limit)
	if err != nil {
		metrics.RecordDBQuery("list_notifications", time.Since(start), err)
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			metrics.RecordDBQuery("list_notifications", time.Since(start), err)
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	err = rows.Err()
	metrics.RecordDBQuery("list_notifications", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID string, id uuid.UUID) (*Notification, error) {
	start := time.Now()
	n, err := scanNotification(s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordDBQuery("mark_read", time.Since(start), nil)
		return nil, ErrNotificationNotFound
	}
	metrics.RecordDBQuery("mark_read", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return n, nil
}
