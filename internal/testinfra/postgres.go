// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/database"
)

const (
	// DefaultPostgresImage is the PostgreSQL image used for integration tests.
	DefaultPostgresImage = "postgres:16-alpine"

	postgresPort     = "5432/tcp"
	postgresUser     = "parley"
	postgresPassword = "parley"
	postgresDB       = "parley"
)

// PostgresContainer is a running PostgreSQL container with the Parley schema applied.
type PostgresContainer struct {
	testcontainers.Container
	DSN  string
	Pool *pgxpool.Pool
}

// NewPostgresContainer starts PostgreSQL, connects a pool and applies the schema.
// The container and pool are released when t finishes.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	SkipIfNoDocker(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        DefaultPostgresImage,
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		// The server restarts once after initdb, so the ready line appears twice.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("create postgres container: %v", err)
	}
	t.Cleanup(func() { CleanupContainer(t, context.Background(), container) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, host, port.Port(), postgresDB)
	pool, err := database.Connect(ctx, config.DatabaseConfig{URL: dsn, MaxConns: 8, ConnectTimeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.ApplySchema(ctx, pool); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool}
}

// SeedUser inserts a user row.
func (c *PostgresContainer) SeedUser(t *testing.T, id, username, email string) {
	t.Helper()
	var emailArg interface{}
	if email != "" {
		emailArg = email
	}
	if _, err := c.Pool.Exec(context.Background(),
		`INSERT INTO users (id, username, display_name, email) VALUES ($1, $2, $2, $3)`,
		id, username, emailArg); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

// SeedChat inserts a chat with the given active participants.
func (c *PostgresContainer) SeedChat(t *testing.T, chatID string, userIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := c.Pool.Exec(ctx, `INSERT INTO chats (id) VALUES ($1)`, chatID); err != nil {
		t.Fatalf("seed chat %s: %v", chatID, err)
	}
	for _, uid := range userIDs {
		if _, err := c.Pool.Exec(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chatID, uid); err != nil {
			t.Fatalf("seed participant %s/%s: %v", chatID, uid, err)
		}
	}
}
