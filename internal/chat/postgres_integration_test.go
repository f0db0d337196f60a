// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

//go:build integration

package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/testinfra"
)

func TestPostgresRepository_MessageLifecycle(t *testing.T) {
	pg := testinfra.NewPostgresContainer(t)
	pg.SeedUser(t, "alice", "alice", "alice@example.com")
	pg.SeedUser(t, "bob", "bob", "")
	pg.SeedChat(t, "c1", "alice", "bob")

	ctx := context.Background()
	if _, err := pg.Pool.Exec(ctx,
		`INSERT INTO assets (id, owner_id, storage_key, mime_type) VALUES ('a1', 'alice', 'k1', 'image/png')`); err != nil {
		t.Fatal(err)
	}

	queue := &recordingQueue{}
	svc := NewService(NewPostgresRepository(pg.Pool), fakeURLs{}, queue, config.ChatConfig{DefaultPageSize: 50, MaxPageSize: 100})

	first, err := svc.CreateMessage(ctx, CreateMessageInput{ChatID: "c1", SenderID: "alice", Content: "hi", AssetIDs: []string{"a1"}})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	reply, err := svc.CreateMessage(ctx, CreateMessageInput{ChatID: "c1", SenderID: "bob", Content: "hey", ReplyToMessageID: &first.ID})
	if err != nil {
		t.Fatalf("CreateMessage(reply) error = %v", err)
	}
	if reply.ID <= first.ID {
		t.Errorf("ids not increasing: %d then %d", first.ID, reply.ID)
	}

	if _, err := svc.EditMessage(ctx, "bob", first.ID, "x"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("non-author edit = %v", err)
	}
	if _, err := svc.EditMessage(ctx, "alice", first.ID, "hi!"); err != nil {
		t.Fatalf("EditMessage() error = %v", err)
	}

	page, err := svc.FetchMessages(ctx, "bob", "c1", nil, 0)
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(page.Messages) != 2 || page.HasMore {
		t.Fatalf("page = %+v", page)
	}
	if page.Messages[0].Content != "hi!" || !page.Messages[0].IsEdited || len(page.Messages[0].Assets) != 1 {
		t.Errorf("first = %+v", page.Messages[0])
	}
	if got := page.Messages[1].ReplyToMessageID; got == nil || *got != first.ID {
		t.Errorf("reply reference = %v", got)
	}

	if _, err := svc.DeleteMessage(ctx, "alice", first.ID); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	var content string
	var deleted bool
	if err := pg.Pool.QueryRow(ctx, `SELECT content, is_deleted FROM messages WHERE id = $1`, first.ID).Scan(&content, &deleted); err != nil {
		t.Fatal(err)
	}
	if !deleted || content != "hi!" {
		t.Errorf("row after delete: content=%q deleted=%v", content, deleted)
	}
	if len(queue.keys) != 1 || queue.keys[0] != "k1" {
		t.Errorf("cleanup keys = %v", queue.keys)
	}
}
