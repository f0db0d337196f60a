// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package directory provides read-only lookups of platform users and posts.
// The gateway authenticates against it and the notification consumer uses it
// for enrichment and email resolution.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/metrics"
)

// ErrUserNotFound is returned when no user has the requested id.
var ErrUserNotFound = errors.New("user not found")

// User is the subset of the platform user record Parley needs.
type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	// Email is empty when the user has no address on file.
	Email    string
	Disabled bool
}

// Name returns DisplayName, falling back to Username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Directory is the lookup contract.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	// GetPostThumbnail returns "" when the post is missing or has no thumbnail.
	GetPostThumbnail(ctx context.Context, postID string) (string, error)
}

// PostgresDirectory reads users and posts from PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory over pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) GetUser(ctx context.Context, userID string) (*User, error) {
	start := time.Now()
	var (
		u      User
		avatar *string
		email  *string
	)
	err := d.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar_url, email, disabled
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.DisplayName, &avatar, &email, &u.Disabled)
	metrics.RecordDBQuery("get_user", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if avatar != nil {
		u.AvatarURL = *avatar
	}
	if email != nil {
		u.Email = *email
	}
	return &u, nil
}

func (d *PostgresDirectory) GetPostThumbnail(ctx context.Context, postID string) (string, error) {
	start := time.Now()
	var thumb *string
	err := d.pool.QueryRow(ctx, `SELECT thumbnail_url FROM posts WHERE id = $1`, postID).Scan(&thumb)
	metrics.RecordDBQuery("get_post_thumbnail", time.Since(start), ignoreNoRows(err))

	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get post thumbnail %s: %w", postID, err)
	}
	if thumb == nil {
		return "", nil
	}
	return *thumb, nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
