// Package presence is the ephemeral shared store for "now" facts: which
// curator is live, who is listening, what is playing, and chat cooldowns.
//
// Everything here is derived state. The DB stays authoritative for session
// and message history; the cache is authoritative only for presence, which
// is inherently transient. Callers therefore treat read errors as "unknown"
// and write errors as best-effort instead of failing the request.
package presence

import (
	"context"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

const (
	// Safety expiries. Keys self-heal even if a stop/leave event is lost.
	ActiveSessionTTL = 24 * time.Hour
	ListenerSetTTL   = time.Hour
)

// Cache is implemented by the Redis driver in production and the in-memory
// driver in tests and single-node dev setups.
type Cache interface {
	// TrySetActiveSession is an atomic set-if-absent. It is the ONLY
	// concurrency guard against a curator double-starting a session:
	// returns false (not an error) when the curator already holds the key.
	TrySetActiveSession(ctx context.Context, curatorID, sessionID string) (bool, error)

	// GetActiveSession returns "" when the curator is not live.
	GetActiveSession(ctx context.Context, curatorID string) (string, error)

	// ClearActiveSession releases the mutual-exclusion key on stop/auto-end.
	ClearActiveSession(ctx context.Context, curatorID string) error

	// SetTrackSnapshot caches the currently-playing track with a freshness
	// TTL; GetTrackSnapshot returns (nil, nil) once it has gone stale.
	SetTrackSnapshot(ctx context.Context, curatorID string, snap *models.TrackSnapshot, ttl time.Duration) error
	GetTrackSnapshot(ctx context.Context, curatorID string) (*models.TrackSnapshot, error)
	ClearTrackSnapshot(ctx context.Context, curatorID string) error

	// BatchGetTrackSnapshots resolves many curators in a single round trip
	// (pipelined). Curators with no fresh snapshot are absent from the map.
	BatchGetTrackSnapshots(ctx context.Context, curatorIDs []string) (map[string]*models.TrackSnapshot, error)

	// Listener membership set per session, with a safety expiry so an
	// abandoned session's set self-heals even if leave events are lost.
	AddListener(ctx context.Context, sessionID, userID string) error
	RemoveListener(ctx context.Context, sessionID, userID string) error
	Listeners(ctx context.Context, sessionID string) ([]string, error)
	ListenerCount(ctx context.Context, sessionID string) (int, error)
	ClearListeners(ctx context.Context, sessionID string) error

	// CheckAndConsumeRateLimit is an atomic check-then-set: true means the
	// send is allowed and the cooldown token is now held. Two concurrent
	// sends from the same user must not both pass.
	CheckAndConsumeRateLimit(ctx context.Context, userID, sessionID string, window time.Duration) (bool, error)

	// Time-ordered index of all live sessions, so the sweepers and the
	// live-list view never scan the durable store.
	AddToLiveIndex(ctx context.Context, sessionID string, startedAt time.Time) error
	RemoveFromLiveIndex(ctx context.Context, sessionID string) error
	LiveIndex(ctx context.Context) ([]string, error)
}
