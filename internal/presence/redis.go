// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package presence

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] = user connection set, KEYS[2] = global online set
// ARGV[1] = connection id, ARGV[2] = user id
// Returns 1 when the user went from zero to one connection.
var addScript = redis.NewScript(`
local added = redis.call("SADD", KEYS[1], ARGV[1])
local n = redis.call("SCARD", KEYS[1])
redis.call("SADD", KEYS[2], ARGV[2])
if added == 1 and n == 1 then
  return 1
end
return 0
`)

// Same keys and args as addScript. Returns 1 when the last connection left.
var removeScript = redis.NewScript(`
local removed = redis.call("SREM", KEYS[1], ARGV[1])
if removed == 0 then
  return 0
end
if redis.call("SCARD", KEYS[1]) == 0 then
  redis.call("SREM", KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// RedisRegistry shares presence across gateway nodes.
//
// Connection sets of a node that dies without cleanup stay behind until the
// keys are removed by an operator.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRegistry creates a registry storing keys under prefix.
func NewRedisRegistry(client redis.UniversalClient, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "presence"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) userKey(userID string) string {
	return r.prefix + ":user:" + userID
}

func (r *RedisRegistry) onlineKey() string {
	return r.prefix + ":online"
}

func (r *RedisRegistry) AddConnection(ctx context.Context, userID, connID string) (bool, error) {
	if err := checkIDs(userID, connID); err != nil {
		return false, err
	}
	n, err := addScript.Run(ctx, r.client, []string{r.userKey(userID), r.onlineKey()}, connID, userID).Int()
	if err != nil {
		return false, fmt.Errorf("add connection %s for %s: %w", connID, userID, err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) RemoveConnection(ctx context.Context, userID, connID string) (bool, error) {
	if err := checkIDs(userID, connID); err != nil {
		return false, err
	}
	n, err := removeScript.Run(ctx, r.client, []string{r.userKey(userID), r.onlineKey()}, connID, userID).Int()
	if err != nil {
		return false, fmt.Errorf("remove connection %s for %s: %w", connID, userID, err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) Connections(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections for %s: %w", userID, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, r.userKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence for %s: %w", userID, err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) OnlineUsers(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
