// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

//go:build integration

package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/testinfra"
)

func TestPostgresStore_Preferences(t *testing.T) {
	pg := testinfra.NewPostgresContainer(t)
	pg.SeedUser(t, "u1", "ada", "ada@example.com")

	ctx := context.Background()
	store := NewPostgresStore(pg.Pool)
	svc := NewPreferenceService(store)

	if _, err := store.GetPreferences(ctx, "u1"); !errors.Is(err, ErrPreferencesNotFound) {
		t.Fatalf("GetPreferences() error = %v, want ErrPreferencesNotFound", err)
	}

	p, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.LikesEmail || !p.MessagesEmail {
		t.Errorf("defaults = %+v", p)
	}

	if _, err := store.InsertPreferences(ctx, DefaultPreferences("u1")); !errors.Is(err, ErrPreferencesExist) {
		t.Errorf("duplicate insert error = %v, want ErrPreferencesExist", err)
	}

	p, err = svc.Update(ctx, "u1", PreferencesPatch{LikesEmail: boolPtr(true)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !p.LikesEmail || !p.CommentsWeb {
		t.Errorf("after update = %+v", p)
	}
}

func TestPostgresStore_Notifications(t *testing.T) {
	pg := testinfra.NewPostgresContainer(t)
	pg.SeedUser(t, "u1", "ada", "ada@example.com")
	pg.SeedUser(t, "u2", "bob", "")

	ctx := context.Background()
	store := NewPostgresStore(pg.Pool)

	first := &Notification{UserID: "u1", Type: TypeLikePost, Title: "Like", Message: "bob liked",
		Metadata: map[string]any{MetaActorID: "u2"}}
	if err := store.InsertNotification(ctx, first); err != nil {
		t.Fatalf("InsertNotification() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	second := &Notification{UserID: "u1", Type: TypeMention, Title: "Mention", Message: "bob mentioned you"}
	if err := store.InsertNotification(ctx, second); err != nil {
		t.Fatal(err)
	}

	list, err := store.ListNotifications(ctx, "u1", 10, nil)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("list = %+v", list)
	}
	if list[1].Metadata[MetaActorID] != "u2" {
		t.Errorf("metadata = %v", list[1].Metadata)
	}

	older, err := store.ListNotifications(ctx, "u1", 10, &list[0].CreatedAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].ID != first.ID {
		t.Errorf("older = %+v", older)
	}

	if err := store.MarkEmailSent(ctx, first.ID, time.Now()); err != nil {
		t.Fatalf("MarkEmailSent() error = %v", err)
	}
	if err := store.MarkEmailSent(ctx, uuid.New(), time.Now()); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkEmailSent(unknown) = %v", err)
	}

	if _, err := store.MarkRead(ctx, "u2", first.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkRead by other user = %v, want ErrNotificationNotFound", err)
	}
	read, err := store.MarkRead(ctx, "u1", first.ID)
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if !read.IsRead || read.ReadAt == nil || read.EmailSentAt == nil {
		t.Errorf("read = %+v", read)
	}
}
