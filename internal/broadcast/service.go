// Package broadcast drives the live session lifecycle: start/stop,
// heartbeats, listener presence, the inactivity sweeper and the track
// poller. The presence cache is the single arbiter of "is this curator
// already live"; the DB records history.
package broadcast

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
	"github.com/Timi0217/mixtapelive-sub000/internal/models"
	"github.com/Timi0217/mixtapelive-sub000/internal/presence"
	"github.com/Timi0217/mixtapelive-sub000/internal/store"
)

// End reasons carried on broadcast-ended.
const (
	ReasonCurator    = "curator"
	ReasonInactivity = "inactivity"
)

// Service owns session lifecycle and listener presence.
type Service struct {
	cache       presence.Cache
	sessions    store.SessionStore
	memberships store.MembershipStore
	hub         *gateway.Hub
	clk         clock.Clock
	trackTTL    time.Duration
}

func NewService(cache presence.Cache, sessions store.SessionStore, memberships store.MembershipStore, hub *gateway.Hub, clk clock.Clock, trackTTL time.Duration) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{
		cache:       cache,
		sessions:    sessions,
		memberships: memberships,
		hub:         hub,
		clk:         clk,
		trackTTL:    trackTTL,
	}
}

// Start opens a live session for the curator.
//
// Order is cache-then-store: the active-session key is the mutual
// exclusion, so it must be reserved before the row exists; if the store
// write then fails, the reservation is rolled back.
func (s *Service) Start(ctx context.Context, curatorID, caption string) (*models.Session, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, &ValidationError{Message: "caption is required"}
	}
	if utf8.RuneCountInString(caption) > models.MaxCaptionLength {
		return nil, &ValidationError{Message: "caption must be 50 characters or less"}
	}

	sessionID := uuid.NewString()
	now := s.clk.Now()

	reserved, err := s.cache.TrySetActiveSession(ctx, curatorID, sessionID)
	if err != nil {
		// Cache unreachable: we can't prove exclusivity, but presence is
		// soft state and refusing all starts would be worse. Fail open.
		log.Printf("⚠️ Presence cache unavailable during start: %v", err)
	} else if !reserved {
		return nil, ErrAlreadyActive
	}

	session := &models.Session{
		ID:              sessionID,
		CuratorID:       curatorID,
		Status:          models.StatusLive,
		Caption:         caption,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// Roll back the reservation so the curator isn't locked out
		if cerr := s.cache.ClearActiveSession(ctx, curatorID); cerr != nil {
			log.Printf("⚠️ Failed to roll back active-session key for %s: %v", curatorID, cerr)
		}
		return nil, err
	}

	if err := s.cache.AddToLiveIndex(ctx, sessionID, now); err != nil {
		log.Printf("⚠️ Failed to index live session %s: %v", sessionID, err)
	}

	log.Printf("🎙️ Broadcast started: %s by %s (%q)", sessionID, curatorID, caption)
	s.hub.ToAll(gateway.NewEvent(gateway.EventBroadcastStarted, session))
	return session, nil
}

// Stop ends a session at the curator's request.
func (s *Service) Stop(ctx context.Context, sessionID, curatorID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotFound
	}
	if session.CuratorID != curatorID {
		return ErrNotCurator
	}
	if !session.IsLive() {
		return ErrInactiveBroadcast
	}
	return s.End(ctx, session, ReasonCurator)
}

// End performs the full teardown: store first (the exactly-once gate),
// then cache, then fan-out. Called by Stop and by the inactivity monitor.
func (s *Service) End(ctx context.Context, session *models.Session, reason string) error {
	endedAt := s.clk.Now()

	ended, err := s.sessions.EndIfLive(ctx, session.ID, endedAt)
	if err != nil {
		return err
	}
	if !ended {
		return ErrInactiveBroadcast // lost the race, someone else ended it
	}

	if err := s.memberships.CloseAllForSession(ctx, session.ID, endedAt); err != nil {
		log.Printf("⚠️ Failed to close memberships for %s: %v", session.ID, err)
	}

	// Cache teardown is best-effort: every key has a safety expiry.
	if err := s.cache.ClearActiveSession(ctx, session.CuratorID); err != nil {
		log.Printf("⚠️ Failed to clear active-session key for %s: %v", session.CuratorID, err)
	}
	if err := s.cache.RemoveFromLiveIndex(ctx, session.ID); err != nil {
		log.Printf("⚠️ Failed to remove %s from live index: %v", session.ID, err)
	}
	if err := s.cache.ClearListeners(ctx, session.ID); err != nil {
		log.Printf("⚠️ Failed to clear listeners for %s: %v", session.ID, err)
	}
	if err := s.cache.ClearTrackSnapshot(ctx, session.CuratorID); err != nil {
		log.Printf("⚠️ Failed to clear track snapshot for %s: %v", session.CuratorID, err)
	}

	log.Printf("🛑 Broadcast ended: %s (%s, ran %s)", session.ID, reason, endedAt.Sub(session.StartedAt).Round(time.Second))

	s.hub.ToRoom(session.ID, gateway.NewEvent(gateway.EventBroadcastEnded, gateway.EndedPayload{
		SessionID: session.ID,
		Reason:    reason,
	}))
	s.hub.CloseRoom(session.ID)
	return nil
}

// Heartbeat refreshes the liveness timestamp. Only the curator may send
// one; anyone else gets ErrNotCurator.
func (s *Service) Heartbeat(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotFound
	}
	if session.CuratorID != userID {
		return ErrNotCurator
	}
	if !session.IsLive() {
		return ErrInactiveBroadcast
	}
	return s.sessions.UpdateHeartbeat(ctx, sessionID, s.clk.Now())
}

// Join admits a connected client to a live session's room, upserts the
// durable membership, and sends the joiner a point-in-time snapshot.
// Idempotent: rejoining is harmless.
func (s *Service) Join(ctx context.Context, client *gateway.Client, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotFound
	}
	if !session.IsLive() {
		return ErrInactiveBroadcast
	}

	if _, err := s.memberships.Upsert(ctx, sessionID, client.UserID, s.clk.Now()); err != nil {
		return err
	}
	if err := s.cache.AddListener(ctx, sessionID, client.UserID); err != nil {
		log.Printf("⚠️ Failed to cache listener %s in %s: %v", client.UserID, sessionID, err)
	}

	s.hub.JoinRoom(client, sessionID)
	count := s.listenerCount(ctx, sessionID)

	if err := s.sessions.BumpPeakListeners(ctx, sessionID, count); err != nil {
		log.Printf("⚠️ Failed to bump peak listeners for %s: %v", sessionID, err)
	}

	s.hub.ToRoom(sessionID, gateway.NewEvent(gateway.EventListenerJoined, gateway.ListenerChangePayload{
		UserID:        client.UserID,
		Username:      client.Username,
		ListenerCount: count,
	}))

	// Point-in-time snapshot, unicast to the joiner only
	members := s.hub.RoomMembers(sessionID)
	listeners := make([]gateway.ListenerInfo, 0, len(members))
	for _, m := range members {
		listeners = append(listeners, gateway.ListenerInfo{UserID: m.UserID, Username: m.Username})
	}
	client.Send(gateway.NewEvent(gateway.EventBroadcastState, gateway.StatePayload{
		Session:       session,
		Listeners:     listeners,
		ListenerCount: count,
	}))

	if snap, err := s.cache.GetTrackSnapshot(ctx, session.CuratorID); err == nil && snap != nil {
		client.Send(gateway.NewEvent(gateway.EventTrackChanged, snap))
	}
	return nil
}

// Leave handles an explicit leave-broadcast.
func (s *Service) Leave(ctx context.Context, client *gateway.Client, sessionID string) error {
	s.hub.LeaveRoom(client, sessionID)
	s.closeMembership(ctx, sessionID, client.Identity)
	return nil
}

// Disconnect closes out every room the dropped connection was in. The
// hub has already removed it from the rooms; this settles membership and
// presence. Runs with its own context since the request is gone.
func (s *Service) Disconnect(client *gateway.Client, sessionIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, sessionID := range sessionIDs {
		s.closeMembership(ctx, sessionID, client.Identity)
	}
}

func (s *Service) closeMembership(ctx context.Context, sessionID string, id gateway.Identity) {
	if err := s.memberships.Close(ctx, sessionID, id.UserID, s.clk.Now()); err != nil {
		log.Printf("⚠️ Failed to close membership %s/%s: %v", sessionID, id.UserID, err)
	}
	if err := s.cache.RemoveListener(ctx, sessionID, id.UserID); err != nil {
		log.Printf("⚠️ Failed to remove cached listener %s/%s: %v", sessionID, id.UserID, err)
	}

	s.hub.ToRoom(sessionID, gateway.NewEvent(gateway.EventListenerLeft, gateway.ListenerChangePayload{
		UserID:        id.UserID,
		Username:      id.Username,
		ListenerCount: s.listenerCount(ctx, sessionID),
	}))
}

// listenerCount prefers the cache and degrades to the membership table.
func (s *Service) listenerCount(ctx context.Context, sessionID string) int {
	count, err := s.cache.ListenerCount(ctx, sessionID)
	if err == nil {
		return count
	}
	log.Printf("⚠️ Listener count from cache failed for %s: %v", sessionID, err)
	count, err = s.memberships.ActiveCount(ctx, sessionID)
	if err != nil {
		return 0
	}
	return count
}

// LiveBroadcast is one row of the live-sessions list view.
type LiveBroadcast struct {
	Session       models.Session        `json:"session"`
	NowPlaying    *models.TrackSnapshot `json:"now_playing,omitempty"`
	ListenerCount int                   `json:"listener_count"`
}

// ListLive returns all live sessions with their cached now-playing
// snapshots resolved in a single pipelined round trip.
func (s *Service) ListLive(ctx context.Context) ([]LiveBroadcast, error) {
	sessions, err := s.sessions.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return []LiveBroadcast{}, nil
	}

	curatorIDs := make([]string, len(sessions))
	for i, sess := range sessions {
		curatorIDs[i] = sess.CuratorID
	}
	snaps, err := s.cache.BatchGetTrackSnapshots(ctx, curatorIDs)
	if err != nil {
		// Degrade to a list without now-playing data
		log.Printf("⚠️ Batch snapshot read failed: %v", err)
		snaps = map[string]*models.TrackSnapshot{}
	}

	out := make([]LiveBroadcast, len(sessions))
	for i, sess := range sessions {
		out[i] = LiveBroadcast{
			Session:       sess,
			NowPlaying:    snaps[sess.CuratorID],
			ListenerCount: s.listenerCount(ctx, sess.ID),
		}
	}
	return out, nil
}

// Get returns one session's current state for the REST surface.
func (s *Service) Get(ctx context.Context, sessionID string) (*LiveBroadcast, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	lb := &LiveBroadcast{Session: *session}
	if session.IsLive() {
		lb.ListenerCount = s.listenerCount(ctx, sessionID)
		if snap, err := s.cache.GetTrackSnapshot(ctx, session.CuratorID); err == nil {
			lb.NowPlaying = snap
		}
	}
	return lb, nil
}
