// Package store owns the durable side of the system: sessions, memberships
// and chat history. The presence cache answers "now" questions; this
// package is the record of what happened.
package store

import (
	"context"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

// SessionStore is the write contract for session lifecycle. Get returns
// (nil, nil) for unknown ids, matching the cache drivers.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	ListLive(ctx context.Context) ([]models.Session, error)
	UpdateStatus(ctx context.Context, id, status string, endedAt *time.Time) error
	UpdateHeartbeat(ctx context.Context, id string, at time.Time) error

	// EndIfLive atomically transitions Live -> Ended and reports whether
	// this call did the transition. The monitor and the explicit stop both
	// race through here, so broadcast-ended is emitted exactly once.
	EndIfLive(ctx context.Context, id string, endedAt time.Time) (bool, error)

	// BumpPeakListeners raises peak_listeners to count if (and only if)
	// count is higher. Single conditional UPDATE, so races can't lower it.
	BumpPeakListeners(ctx context.Context, id string, count int) error

	// SyncMessageCount sets total_messages from the chat table's count
	// instead of incrementing an independent counter.
	SyncMessageCount(ctx context.Context, id string, total int) error
}

// MembershipStore records listener join/leave history. Upsert is
// idempotent: rejoining an active membership returns the existing row.
type MembershipStore interface {
	Upsert(ctx context.Context, sessionID, userID string, at time.Time) (*models.Membership, error)
	Close(ctx context.Context, sessionID, userID string, at time.Time) error
	CloseAllForSession(ctx context.Context, sessionID string, at time.Time) error
	ActiveCount(ctx context.Context, sessionID string) (int, error)
}

// ChatStore persists messages. Fan-out is best-effort; this is where a
// reconnecting client pulls history from.
type ChatStore interface {
	Insert(ctx context.Context, msg *models.ChatMessage) error
	Get(ctx context.Context, id string) (*models.ChatMessage, error)
	Count(ctx context.Context, sessionID string) (int, error)
	ListRecent(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	Delete(ctx context.Context, id string) error
}
