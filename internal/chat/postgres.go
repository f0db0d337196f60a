// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/metrics"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores chats in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
	*pgQueries
}

// NewPostgresRepository creates a repository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, pgQueries: &pgQueries{db: pool}}
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgQueries{db: tx})
	})
}

type pgQueries struct {
	db querier
}

const messageColumns = `id, chat_id, sender_id, content, reply_to_message_id,
	is_edited, edited_at, is_deleted, deleted_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.ReplyToMessageID,
		&m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q *pgQueries) ChatExists(ctx context.Context, chatID string) (bool, error) {
	start := time.Now()
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chats WHERE id = $1)`, chatID).Scan(&exists)
	metrics.RecordDBQuery("chat_exists", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("check chat %s: %w", chatID, err)
	}
	return exists, nil
}

func (q *pgQueries) GetParticipant(ctx context.Context, chatID, userID string) (*Participant, error) {
	start := time.Now()
	p := Participant{ChatID: chatID, UserID: userID}
	err := q.db.QueryRow(ctx, `
		SELECT joined_at, left_at, last_read_message_id
		FROM chat_participants
		WHERE chat_id = $1 AND user_id = $2
	`, chatID, userID).Scan(&p.JoinedAt, &p.LeftAt, &p.LastReadMessageID)
	metrics.RecordDBQuery("get_participant", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant %s/%s: %w", chatID, userID, err)
	}
	return &p, nil
}

func (q *pgQueries) ActiveParticipantIDs(ctx context.Context, chatID string) ([]string, error) {
	start := time.Now()
	rows, err := q.db.Query(ctx, `
		SELECT user_id FROM chat_participants
		WHERE chat_id = $1 AND left_at IS NULL
		ORDER BY user_id
	`, chatID)
	if err != nil {
		metrics.RecordDBQuery("active_participants", time.Since(start), err)
		return nil, fmt.Errorf("list participants of %s: %w", chatID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	metrics.RecordDBQuery("active_participants", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("scan participants of %s: %w", chatID, err)
	}
	return ids, nil
}

func (q *pgQueries) GetMessage(ctx context.Context, id int64, forUpdate bool) (*Message, error) {
	start := time.Now()
	sql := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	m, err := scanMessage(q.db.QueryRow(ctx, sql, id))
	metrics.RecordDBQuery("get_message", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

func (q *pgQueries) InsertMessage(ctx context.Context, m *Message) error {
	start := time.Now()
	err := q.db.QueryRow(ctx, `
		INSERT INTO messages (chat_id, sender_id, content, reply_to_message_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, m.ChatID, m.SenderID, m.Content, m.ReplyToMessageID).Scan(&m.ID, &m.CreatedAt)
	metrics.RecordDBQuery("insert_message", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (q *pgQueries) UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	start := time.Now()
	_, err := q.db.Exec(ctx, `
		UPDATE messages SET content = $2, is_edited = TRUE, edited_at = $3
		WHERE id = $1
	`, id, content, editedAt)
	metrics.RecordDBQuery("update_message", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update message %d: %w", id, err)
	}
	return nil
}

func (q *pgQueries) SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error {
	start := time.Now()
	_, err := q.db.Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE, deleted_at = $2
		WHERE id = $1
	`, id, deletedAt)
	metrics.RecordDBQuery("delete_message", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	return nil
}

func (q *pgQueries) ListMessages(ctx context.Context, chatID string, before *int64, limit int) ([]Message, error) {
	start := time.Now()
	rows, err := q.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = $1 AND ($2::BIGINT IS NULL OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`, chatID, before, limit)
	if err != nil {
		metrics.RecordDBQuery("list_messages", time.Since(start), err)
		return nil, fmt.Errorf("list messages of %s: %w", chatID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			metrics.RecordDBQuery("list_messages", time.Since(start), err)
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	err = rows.Err()
	metrics.RecordDBQuery("list_messages", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", chatID, err)
	}
	return out, nil
}

func (q *pgQueries) GetAssets(ctx context.Context, ids []string) ([]Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	start := time.Now()
	rows, err := q.db.Query(ctx, `
		SELECT id, owner_id, storage_key, mime_type, size_bytes, message_id
		FROM assets
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		metrics.RecordDBQuery("get_assets", time.Since(start), err)
		return nil, fmt.Errorf("get assets: %w", err)
	}
	assets, err := collectAssets(rows)
	metrics.RecordDBQuery("get_assets", time.Since(start), err)
	return assets, err
}

func (q *pgQueries) AttachAssets(ctx context.Context, messageID int64, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	start := time.Now()
	_, err := q.db.Exec(ctx, `UPDATE assets SET message_id = $1 WHERE id = ANY($2)`, messageID, assetIDs)
	metrics.RecordDBQuery("attach_assets", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("attach assets to %d: %w", messageID, err)
	}
	return nil
}

func (q *pgQueries) AssetsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]Asset, error) {
	out := make(map[int64][]Asset)
	if len(messageIDs) == 0 {
		return out, nil
	}
	start := time.Now()
	rows, err := q.db.Query(ctx, `
		SELECT id, owner_id, storage_key, mime_type, size_bytes, message_id
		FROM assets
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
	`, messageIDs)
	if err != nil {
		metrics.RecordDBQuery("message_assets", time.Since(start), err)
		return nil, fmt.Errorf("get message assets: %w", err)
	}
	assets, err := collectAssets(rows)
	metrics.RecordDBQuery("message_assets", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		out[*a.MessageID] = append(out[*a.MessageID], a)
	}
	return out, nil
}

func collectAssets(rows pgx.Rows) ([]Asset, error) {
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.StorageKey, &a.MimeType, &a.SizeBytes, &a.MessageID); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read assets: %w", err)
	}
	return out, nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
