package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
	"github.com/Timi0217/mixtapelive-sub000/internal/models"
	"github.com/Timi0217/mixtapelive-sub000/internal/presence"
	"github.com/Timi0217/mixtapelive-sub000/internal/store"
)

type env struct {
	pipe    *Pipeline
	svc     *broadcast.Service
	stores  *store.GormStores
	clk     *clock.MockClock
	hub     *gateway.Hub
	session string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	d.AutoMigrate(&models.Session{}, &models.Membership{}, &models.ChatMessage{})

	stores := store.NewGormStores(d)
	clk := &clock.MockClock{MockTime: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	cache := presence.NewMemoryCache(clk)
	hub := gateway.NewHub()
	svc := broadcast.NewService(cache, stores.Sessions, stores.Memberships, hub, clk, 60*time.Second)
	pipe := NewPipeline(cache, stores.Sessions, stores.Chat, hub, clk, 3*time.Second)

	sess, err := svc.Start(context.Background(), "curator-1", "Late night mix")
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	return &env{pipe: pipe, svc: svc, stores: stores, clk: clk, hub: hub, session: sess.ID}
}

func sender(id string) gateway.Identity {
	return gateway.Identity{UserID: id, Username: "user-" + id}
}

func TestSend_RateLimitWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "first"); err != nil {
		t.Fatalf("First message should pass: %v", err)
	}

	// Second message inside the window is rejected
	e.clk.Advance(time.Second)
	if _, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "too soon"); !errors.Is(err, broadcast.ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}

	// A different user is on their own budget
	if _, err := e.pipe.Send(ctx, e.session, sender("u2"), models.MessageTypeText, "hello"); err != nil {
		t.Errorf("Other users should not share the cooldown: %v", err)
	}

	// Window expires, u1 can speak again
	e.clk.Advance(3 * time.Second)
	if _, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "second"); err != nil {
		t.Errorf("Cooldown should have expired: %v", err)
	}

	// The rejected attempt must not have been persisted
	total, _ := e.stores.Chat.Count(ctx, e.session)
	if total != 3 {
		t.Errorf("Expected 3 stored messages, got %d", total)
	}
}

func TestSend_RejectedMessageStillConsumesBudget(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// The rate limit gate runs before validation, so a rejected message
	// still spends the window.
	if _, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, ""); err == nil {
		t.Fatal("Empty message should be rejected")
	}
	if _, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "ok"); !errors.Is(err, broadcast.ErrRateLimited) {
		t.Fatalf("Budget is consumed before validation, got %v", err)
	}
}

func TestSend_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		msgType string
		content string
		wantErr bool
	}{
		{"text at limit", models.MessageTypeText, strings.Repeat("a", 100), false},
		{"text over limit", models.MessageTypeText, strings.Repeat("a", 101), true},
		// Limits count characters, not bytes
		{"multibyte text at limit", models.MessageTypeText, strings.Repeat("é", 100), false},
		{"multibyte text over limit", models.MessageTypeText, strings.Repeat("é", 101), true},
		{"emoji at limit", models.MessageTypeEmoji, strings.Repeat("🔥", 10), false},
		{"emoji over limit", models.MessageTypeEmoji, strings.Repeat("🔥", 11), true},
		{"ascii emoji over limit", models.MessageTypeEmoji, strings.Repeat("x", 11), true},
		{"whitespace only", models.MessageTypeText, "   ", true},
		{"unknown type", "sticker", "hi", true},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Each case gets its own user so the cooldown never interferes
			id := sender("val-" + string(rune('a'+i)))
			_, err := e.pipe.Send(ctx, e.session, id, tc.msgType, tc.content)
			if tc.wantErr && err == nil {
				t.Error("Expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if tc.wantErr {
				var verr *broadcast.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("Expected ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestSend_PersistsAndFansOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	listener := e.hub.Connect(gateway.Identity{UserID: "u-l", Username: "lurker"})
	e.hub.JoinRoom(listener, e.session)

	msg, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "  hello room  ")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Content != "hello room" {
		t.Errorf("Content should be trimmed, got %q", msg.Content)
	}

	name, data, ok := listener.TryRecv()
	if !ok || name != gateway.EventNewMessage {
		t.Fatalf("Expected new-message event, got %q", name)
	}
	var got models.ChatMessage
	json.Unmarshal(data, &got)
	if got.ID != msg.ID || got.Username != "user-u1" {
		t.Errorf("Wrong message broadcast: %+v", got)
	}

	// TotalMessages is derived from the table
	session, _ := e.stores.Sessions.Get(ctx, e.session)
	if session.TotalMessages != 1 {
		t.Errorf("Expected TotalMessages=1, got %d", session.TotalMessages)
	}
}

func TestSend_RequiresLiveSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.pipe.Send(ctx, "no-such-session", sender("u1"), models.MessageTypeText, "hi"); !errors.Is(err, broadcast.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	e.svc.Stop(ctx, e.session, "curator-1")
	if _, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "hi"); !errors.Is(err, broadcast.ErrInactiveBroadcast) {
		t.Errorf("Expected ErrInactiveBroadcast, got %v", err)
	}
}

func TestDelete_Permissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	msg, err := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "delete me")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// A random listener can't delete someone else's message
	if err := e.pipe.Delete(ctx, msg.ID, "u2"); !errors.Is(err, broadcast.ErrCannotDelete) {
		t.Fatalf("Expected ErrCannotDelete, got %v", err)
	}

	// The author can
	listener := e.hub.Connect(gateway.Identity{UserID: "u-l", Username: "lurker"})
	e.hub.JoinRoom(listener, e.session)
	if err := e.pipe.Delete(ctx, msg.ID, "u1"); err != nil {
		t.Fatalf("Author delete failed: %v", err)
	}

	name, data, ok := listener.TryRecv()
	if !ok || name != gateway.EventMessageDeleted {
		t.Fatalf("Expected message-deleted event, got %q", name)
	}
	var payload gateway.DeletedPayload
	json.Unmarshal(data, &payload)
	if payload.MessageID != msg.ID || payload.SessionID != e.session {
		t.Errorf("Wrong deletion payload: %+v", payload)
	}

	if err := e.pipe.Delete(ctx, msg.ID, "u1"); !errors.Is(err, broadcast.ErrMessageNotFound) {
		t.Errorf("Second delete should be ErrMessageNotFound, got %v", err)
	}

	// Counter follows the table back down
	session, _ := e.stores.Sessions.Get(ctx, e.session)
	if session.TotalMessages != 0 {
		t.Errorf("Expected TotalMessages=0 after delete, got %d", session.TotalMessages)
	}
}

func TestDelete_CuratorModerates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	msg, _ := e.pipe.Send(ctx, e.session, sender("u1"), models.MessageTypeText, "spam")
	if err := e.pipe.Delete(ctx, msg.ID, "curator-1"); err != nil {
		t.Fatalf("Curator moderation failed: %v", err)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i, body := range []string{"one", "two", "three"} {
		u := sender("h-" + string(rune('a'+i)))
		if _, err := e.pipe.Send(ctx, e.session, u, models.MessageTypeText, body); err != nil {
			t.Fatalf("Send %q failed: %v", body, err)
		}
		e.clk.Advance(time.Second)
	}

	msgs, err := e.pipe.History(ctx, e.session, 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "three" || msgs[1].Content != "two" {
		t.Errorf("Expected newest-first page [three two], got %+v", msgs)
	}

	if _, err := e.pipe.History(ctx, "no-such-session", 10); !errors.Is(err, broadcast.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
