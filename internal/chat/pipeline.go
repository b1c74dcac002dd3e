// Package chat ingests chat messages: rate limit, validate, persist, then
// fan out to the session's room.
package chat

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
	"github.com/Timi0217/mixtapelive-sub000/internal/models"
	"github.com/Timi0217/mixtapelive-sub000/internal/presence"
	"github.com/Timi0217/mixtapelive-sub000/internal/store"
)

type Pipeline struct {
	cache    presence.Cache
	sessions store.SessionStore
	messages store.ChatStore
	hub      *gateway.Hub
	clk      clock.Clock
	cooldown time.Duration
}

func NewPipeline(cache presence.Cache, sessions store.SessionStore, messages store.ChatStore, hub *gateway.Hub, clk clock.Clock, cooldown time.Duration) *Pipeline {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Pipeline{
		cache:    cache,
		sessions: sessions,
		messages: messages,
		hub:      hub,
		clk:      clk,
		cooldown: cooldown,
	}
}

// Send runs the full pipeline. Rate limiting fails OPEN: if the cache is
// unreachable we let the message through rather than silencing the room.
func (p *Pipeline) Send(ctx context.Context, sessionID string, sender gateway.Identity, msgType, content string) (*models.ChatMessage, error) {
	// 1. Rate limit (atomic check-and-consume)
	allowed, err := p.cache.CheckAndConsumeRateLimit(ctx, sender.UserID, sessionID, p.cooldown)
	if err != nil {
		log.Printf("⚠️ Rate limit check failed for %s, failing open: %v", sender.UserID, err)
	} else if !allowed {
		return nil, broadcast.ErrRateLimited
	}

	// 2. Session must be live
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, broadcast.ErrNotFound
	}
	if !session.IsLive() {
		return nil, broadcast.ErrInactiveBroadcast
	}

	// 3. Validate by type
	content = strings.TrimSpace(content)
	if err := validate(msgType, content); err != nil {
		return nil, err
	}

	// 4. Persist
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    sender.UserID,
		Username:  sender.Username,
		Type:      msgType,
		Content:   content,
		CreatedAt: p.clk.Now(),
	}
	if err := p.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	// 5. Counter is derived from the message table, never incremented
	// independently, so it can't drift
	p.syncCount(ctx, sessionID)

	// 6. Fan out, best-effort (late joiners pull history instead)
	p.hub.ToRoom(sessionID, gateway.NewEvent(gateway.EventNewMessage, msg))
	return msg, nil
}

// Delete removes a message. Only the author or the session's curator may.
func (p *Pipeline) Delete(ctx context.Context, messageID, requesterID string) error {
	msg, err := p.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return broadcast.ErrMessageNotFound
	}

	if msg.UserID != requesterID {
		session, err := p.sessions.Get(ctx, msg.SessionID)
		if err != nil {
			return err
		}
		if session == nil || session.CuratorID != requesterID {
			return broadcast.ErrCannotDelete
		}
	}

	if err := p.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	p.syncCount(ctx, msg.SessionID)

	p.hub.ToRoom(msg.SessionID, gateway.NewEvent(gateway.EventMessageDeleted, gateway.DeletedPayload{
		SessionID: msg.SessionID,
		MessageID: messageID,
	}))
	return nil
}

// History is the pull path for reconnecting clients, newest first.
func (p *Pipeline) History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, broadcast.ErrNotFound
	}
	return p.messages.ListRecent(ctx, sessionID, limit)
}

func (p *Pipeline) syncCount(ctx context.Context, sessionID string) {
	total, err := p.messages.Count(ctx, sessionID)
	if err != nil {
		log.Printf("⚠️ Message count failed for %s: %v", sessionID, err)
		return
	}
	if err := p.sessions.SyncMessageCount(ctx, sessionID, total); err != nil {
		log.Printf("⚠️ Message counter sync failed for %s: %v", sessionID, err)
	}
}

// Limits are in characters, not bytes; an emoji is one character even
// though it encodes to four bytes.
func validate(msgType, content string) error {
	if content == "" {
		return &broadcast.ValidationError{Message: "message content is required"}
	}
	switch msgType {
	case models.MessageTypeText:
		if utf8.RuneCountInString(content) > models.MaxTextLength {
			return &broadcast.ValidationError{Message: "text messages must be 100 characters or less"}
		}
	case models.MessageTypeEmoji:
		if utf8.RuneCountInString(content) > models.MaxEmojiLength {
			return &broadcast.ValidationError{Message: "emoji messages must be 10 characters or less"}
		}
	default:
		return &broadcast.ValidationError{Message: "message type must be text or emoji"}
	}
	return nil
}
