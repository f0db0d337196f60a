// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/parley/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ    Type
		want   Category
		wantOK bool
	}{
		{TypeLikePost, CategoryLikes, true},
		{TypeLikeComment, CategoryLikes, true},
		{TypeComment, CategoryComments, true},
		{TypeCommentReply, CategoryComments, true},
		{TypeFollowRequest, CategoryFollows, true},
		{TypeFollowAccepted, CategoryFollows, true},
		{TypeNewFollower, CategoryFollows, true},
		{TypeMention, CategoryMentions, true},
		{TypeNewMessage, CategoryMessages, true},
		{TypeSystem, "", false},
		{Type("BOGUS"), "", false},
	}
	for _, tt := range tests {
		got, ok := CategoryOf(tt.typ)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CategoryOf(%s) = %q, %v; want %q, %v", tt.typ, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPreferenceService_GetCreatesDefaults(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	svc := NewPreferenceService(store)

	p, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := DefaultPreferences("u1")
	want.UpdatedAt = p.UpdatedAt
	if *p != want {
		t.Errorf("preferences = %+v, want %+v", *p, want)
	}
	if p.LikesEmail {
		t.Error("likes email should default off")
	}

	// Second read returns the stored row.
	if _, err := store.GetPreferences(context.Background(), "u1"); err != nil {
		t.Errorf("row not persisted: %v", err)
	}
}

// racingStore loses the insert race once: the row appears between the
// read and the insert.
type racingStore struct {
	*MemoryStore
	inserts atomic.Int32
}

func (s *racingStore) InsertPreferences(ctx context.Context, p Preferences) (*Preferences, error) {
	s.inserts.Add(1)
	winner := DefaultPreferences(p.UserID)
	winner.LikesEmail = true
	if _, err := s.MemoryStore.InsertPreferences(ctx, winner); err != nil {
		return nil, err
	}
	return nil, ErrPreferencesExist
}

func TestPreferenceService_GetConcurrentInsert(t *testing.T) {
	t.Parallel()

	store := &racingStore{MemoryStore: NewMemoryStore()}
	svc := NewPreferenceService(store)

	p, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !p.LikesEmail {
		t.Error("expected the concurrently inserted row to be returned")
	}
	if store.inserts.Load() != 1 {
		t.Errorf("inserts = %d, want 1", store.inserts.Load())
	}
}

func TestPreferenceService_GetParallel(t *testing.T) {
	t.Parallel()

	svc := NewPreferenceService(NewMemoryStore())
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Get(context.Background(), "u1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Get() error = %v", err)
	}
}

func TestPreferenceService_Update(t *testing.T) {
	t.Parallel()

	svc := NewPreferenceService(NewMemoryStore())
	ctx := context.Background()

	p, err := svc.Update(ctx, "u1", PreferencesPatch{LikesEmail: boolPtr(true), MessagesWeb: boolPtr(false)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !p.LikesEmail || p.MessagesWeb {
		t.Errorf("patched flags not applied: %+v", p)
	}
	if !p.CommentsEmail || !p.LikesWeb {
		t.Errorf("unpatched flags changed: %+v", p)
	}

	same, err := svc.Update(ctx, "u1", PreferencesPatch{})
	if err != nil {
		t.Fatalf("empty Update() error = %v", err)
	}
	if !same.LikesEmail || same.MessagesWeb {
		t.Errorf("empty patch changed preferences: %+v", same)
	}
}

type brokenStore struct{}

func (brokenStore) GetPreferences(context.Context, string) (*Preferences, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) InsertPreferences(context.Context, Preferences) (*Preferences, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) UpdatePreferences(context.Context, string, PreferencesPatch) (*Preferences, error) {
	return nil, errors.New("connection reset")
}

func TestPreferenceService_ShouldSend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewPreferenceService(store)
	if _, err := svc.Update(ctx, "u1", PreferencesPatch{CommentsWeb: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	broken := NewPreferenceService(brokenStore{})

	tests := []struct {
		name      string
		svc       *PreferenceService
		typ       Type
		wantWeb   bool
		wantEmail bool
	}{
		{"likes default", svc, TypeLikePost, true, false},
		{"comments web disabled", svc, TypeCommentReply, false, true},
		{"new follower", svc, TypeNewFollower, true, true},
		{"system", svc, TypeSystem, true, false},
		{"unknown", svc, Type("PING"), true, false},
		{"lookup failure", broken, TypeMention, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.ShouldSendWeb(ctx, "u1", tt.typ); got != tt.wantWeb {
				t.Errorf("ShouldSendWeb = %v, want %v", got, tt.wantWeb)
			}
			if got := tt.svc.ShouldSendEmail(ctx, "u1", tt.typ); got != tt.wantEmail {
				t.Errorf("ShouldSendEmail = %v, want %v", got, tt.wantEmail)
			}
		})
	}
}
