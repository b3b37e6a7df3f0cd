package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	st, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return st
}

func TestUpsertIMAPUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	user, err := st.UpsertIMAPUser(ctx, "bob@example.com", "bob", "imap.example.com", 993, "bob@example.com", "app-pass", true, now)
	if err != nil {
		t.Fatalf("UpsertIMAPUser: %v", err)
	}
	if user.ID == "" || !user.HasIMAP() || user.HasOAuth() {
		t.Errorf("user = %+v", user)
	}

	// Re-login replaces credentials but keeps the record.
	updated, err := st.UpsertIMAPUser(ctx, "bob@example.com", "bob", "imap.example.com", 993, "bob@example.com", "new-pass", true, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpsertIMAPUser again: %v", err)
	}
	if updated.ID != user.ID {
		t.Errorf("id changed on upsert: %q -> %q", user.ID, updated.ID)
	}
	if updated.IMAPPassword != "new-pass" {
		t.Errorf("password = %q; want new-pass", updated.IMAPPassword)
	}
}

func TestUpsertOAuthUserKeepsIMAPFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.UpsertIMAPUser(ctx, "both@example.com", "both", "imap.example.com", 993, "both@example.com", "pw", true, now); err != nil {
		t.Fatalf("UpsertIMAPUser: %v", err)
	}
	user, err := st.UpsertOAuthUser(ctx, "both@example.com", "Both", "pic", "access", "refresh", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("UpsertOAuthUser: %v", err)
	}
	if !user.HasOAuth() || !user.HasIMAP() {
		t.Errorf("user lost a credential set: %+v", user)
	}
	if user.AccessToken != "access" || user.RefreshToken != "refresh" {
		t.Errorf("tokens = %q/%q", user.AccessToken, user.RefreshToken)
	}
}

func TestUpsertOAuthUserKeepsRefreshTokenWhenAbsent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.UpsertOAuthUser(ctx, "a@example.com", "A", "", "access-1", "refresh-1", now.Add(time.Hour), now); err != nil {
		t.Fatalf("UpsertOAuthUser: %v", err)
	}
	user, err := st.UpsertOAuthUser(ctx, "a@example.com", "A", "", "access-2", "", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("UpsertOAuthUser again: %v", err)
	}
	if user.AccessToken != "access-2" || user.RefreshToken != "refresh-1" {
		t.Errorf("tokens = %q/%q; want new access, kept refresh", user.AccessToken, user.RefreshToken)
	}
}

func TestUpdateOAuthToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	user, err := st.UpsertOAuthUser(ctx, "a@example.com", "A", "", "old", "r", now, now)
	if err != nil {
		t.Fatalf("UpsertOAuthUser: %v", err)
	}
	expiry := now.Add(time.Hour)
	if err := st.UpdateOAuthToken(ctx, user.ID, "fresh", "", expiry, now); err != nil {
		t.Fatalf("UpdateOAuthToken: %v", err)
	}
	got, err := st.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.AccessToken != "fresh" || got.RefreshToken != "r" {
		t.Errorf("tokens = %q/%q; want fresh access, kept refresh", got.AccessToken, got.RefreshToken)
	}
	if got.TokenExpiry.Unix() != expiry.Unix() {
		t.Errorf("expiry = %v; want %v", got.TokenExpiry, expiry)
	}

	if err := st.UpdateOAuthToken(ctx, "missing-id", "x", "", expiry, now); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateOAuthToken(missing) = %v; want ErrUserNotFound", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.GetUser(context.Background(), "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser = %v; want ErrUserNotFound", err)
	}
	if _, err := st.GetUserByEmail(context.Background(), "nope@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUserByEmail = %v; want ErrUserNotFound", err)
	}
}
