// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package presence tracks which connections each user holds open.
//
// A user is online exactly while their connection set is non-empty. Add and
// remove report presence transitions so the gateway can broadcast a single
// online event for the first connection and a single offline event for the
// last one.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/parley/internal/config"
)

// ErrInvalidID is returned for empty user or connection ids.
var ErrInvalidID = errors.New("presence: user and connection id are required")

// Registry maps users to their active connection ids.
type Registry interface {
	// AddConnection records connID for userID. first is true when the user
	// had no connections before this call.
	AddConnection(ctx context.Context, userID, connID string) (first bool, err error)
	// RemoveConnection forgets connID. last is true when the user has no
	// connections left. Removing an unknown connection is a no-op.
	RemoveConnection(ctx context.Context, userID, connID string) (last bool, err error)
	Connections(ctx context.Context, userID string) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	OnlineUsers(ctx context.Context) ([]string, error)
}

// New builds the registry selected by cfg. The returned close function
// releases the backend connection, if any.
func New(ctx context.Context, cfg config.PresenceConfig, redisCfg config.RedisConfig) (Registry, func() error, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryRegistry(), func() error { return nil }, nil
	case "redis":
		opts, err := redis.ParseURL(redisCfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisRegistry(client, cfg.KeyPrefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown presence backend %q", cfg.Backend)
	}
}

func checkIDs(userID, connID string) error {
	if userID == "" || connID == "" {
		return ErrInvalidID
	}
	return nil
}
