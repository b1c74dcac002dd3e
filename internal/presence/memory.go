package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

type expiringSnapshot struct {
	snap      *models.TrackSnapshot
	expiresAt time.Time
}

type listenerSet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// MemoryCache implements Cache with plain maps and a mutex. Used in tests
// and single-node dev setups where Redis would be overkill. Takes a Clock
// so TTL behavior is testable without sleeping.
type MemoryCache struct {
	clk clock.Clock

	mu        sync.Mutex
	active    map[string]string // curatorID -> sessionID
	tracks    map[string]expiringSnapshot
	listeners map[string]*listenerSet // sessionID -> set
	cooldowns map[string]time.Time    // sessionID:userID -> expiry
	index     map[string]time.Time    // sessionID -> startedAt
}

// NewMemoryCache creates an in-memory presence cache. If clk is nil the
// real system clock is used.
func NewMemoryCache(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryCache{
		clk:       clk,
		active:    make(map[string]string),
		tracks:    make(map[string]expiringSnapshot),
		listeners: make(map[string]*listenerSet),
		cooldowns: make(map[string]time.Time),
		index:     make(map[string]time.Time),
	}
}

func (m *MemoryCache) TrySetActiveSession(ctx context.Context, curatorID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[curatorID]; exists {
		return false, nil
	}
	m.active[curatorID] = sessionID
	return true, nil
}

func (m *MemoryCache) GetActiveSession(ctx context.Context, curatorID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[curatorID], nil
}

func (m *MemoryCache) ClearActiveSession(ctx context.Context, curatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, curatorID)
	return nil
}

func (m *MemoryCache) SetTrackSnapshot(ctx context.Context, curatorID string, snap *models.TrackSnapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[curatorID] = expiringSnapshot{snap: snap, expiresAt: m.clk.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) GetTrackSnapshot(ctx context.Context, curatorID string) (*models.TrackSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tracks[curatorID]
	if !ok {
		return nil, nil
	}
	if !m.clk.Now().Before(entry.expiresAt) {
		delete(m.tracks, curatorID) // stale
		return nil, nil
	}
	return entry.snap, nil
}

func (m *MemoryCache) ClearTrackSnapshot(ctx context.Context, curatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, curatorID)
	return nil
}

func (m *MemoryCache) BatchGetTrackSnapshots(ctx context.Context, curatorIDs []string) (map[string]*models.TrackSnapshot, error) {
	out := make(map[string]*models.TrackSnapshot, len(curatorIDs))
	for _, id := range curatorIDs {
		snap, _ := m.GetTrackSnapshot(ctx, id)
		if snap != nil {
			out[id] = snap
		}
	}
	return out, nil
}

func (m *MemoryCache) AddListener(ctx context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.liveSet(sessionID)
	if set == nil {
		set = &listenerSet{members: make(map[string]struct{})}
		m.listeners[sessionID] = set
	}
	set.members[userID] = struct{}{}
	set.expiresAt = m.clk.Now().Add(ListenerSetTTL)
	return nil
}

func (m *MemoryCache) RemoveListener(ctx context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set := m.liveSet(sessionID); set != nil {
		delete(set.members, userID)
	}
	return nil
}

func (m *MemoryCache) Listeners(ctx context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.liveSet(sessionID)
	if set == nil {
		return nil, nil
	}
	out := make([]string, 0, len(set.members))
	for id := range set.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryCache) ListenerCount(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set := m.liveSet(sessionID); set != nil {
		return len(set.members), nil
	}
	return 0, nil
}

func (m *MemoryCache) ClearListeners(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, sessionID)
	return nil
}

func (m *MemoryCache) CheckAndConsumeRateLimit(ctx context.Context, userID, sessionID string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionID + ":" + userID
	now := m.clk.Now()
	if expiry, held := m.cooldowns[key]; held && now.Before(expiry) {
		return false, nil
	}
	m.cooldowns[key] = now.Add(window)
	return true, nil
}

func (m *MemoryCache) AddToLiveIndex(ctx context.Context, sessionID string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[sessionID] = startedAt
	return nil
}

func (m *MemoryCache) RemoveFromLiveIndex(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.index, sessionID)
	return nil
}

func (m *MemoryCache) LiveIndex(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.index))
	for id := range m.index {
		ids = append(ids, id)
	}
	// Oldest first, matching the Redis ZRANGE ordering.
	sort.Slice(ids, func(i, j int) bool {
		if !m.index[ids[i]].Equal(m.index[ids[j]]) {
			return m.index[ids[i]].Before(m.index[ids[j]])
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

// liveSet returns the listener set if present and not past its safety
// expiry. Callers hold m.mu.
func (m *MemoryCache) liveSet(sessionID string) *listenerSet {
	set, ok := m.listeners[sessionID]
	if !ok {
		return nil
	}
	if !m.clk.Now().Before(set.expiresAt) {
		delete(m.listeners, sessionID)
		return nil
	}
	return set
}
