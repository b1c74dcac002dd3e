package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

// Redis key prefixes. Everything is namespaced under "live:".
const (
	activeKeyPrefix    = "live:active:"    // curatorID -> sessionID
	trackKeyPrefix     = "live:track:"     // curatorID -> TrackSnapshot JSON
	listenersKeyPrefix = "live:listeners:" // sessionID -> SET of userIDs
	ratelimitKeyPrefix = "live:ratelimit:" // sessionID:userID -> cooldown token
	liveIndexKey       = "live:index"      // ZSET scored by startedAt
)

// RedisCache implements Cache on go-redis. All atomicity requirements map
// to single Redis commands (SETNX, SADD, ZADD), so no scripting is needed.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates the production presence cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) TrySetActiveSession(ctx context.Context, curatorID, sessionID string) (bool, error) {
	// SETNX with a safety TTL: if both the explicit stop and the
	// inactivity auto-end are lost, the curator is not locked out forever.
	return r.client.SetNX(ctx, activeKeyPrefix+curatorID, sessionID, ActiveSessionTTL).Result()
}

func (r *RedisCache) GetActiveSession(ctx context.Context, curatorID string) (string, error) {
	val, err := r.client.Get(ctx, activeKeyPrefix+curatorID).Result()
	if err == redis.Nil {
		return "", nil // not live
	}
	return val, err
}

func (r *RedisCache) ClearActiveSession(ctx context.Context, curatorID string) error {
	return r.client.Del(ctx, activeKeyPrefix+curatorID).Err()
}

func (r *RedisCache) SetTrackSnapshot(ctx context.Context, curatorID string, snap *models.TrackSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, trackKeyPrefix+curatorID, data, ttl).Err()
}

func (r *RedisCache) GetTrackSnapshot(ctx context.Context, curatorID string) (*models.TrackSnapshot, error) {
	val, err := r.client.Get(ctx, trackKeyPrefix+curatorID).Result()
	if err == redis.Nil {
		return nil, nil // stale or never set
	}
	if err != nil {
		return nil, err
	}

	var snap models.TrackSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *RedisCache) ClearTrackSnapshot(ctx context.Context, curatorID string) error {
	return r.client.Del(ctx, trackKeyPrefix+curatorID).Err()
}

// BatchGetTrackSnapshots pipelines one GET per curator so the live-sessions
// list view costs a single round trip instead of N.
func (r *RedisCache) BatchGetTrackSnapshots(ctx context.Context, curatorIDs []string) (map[string]*models.TrackSnapshot, error) {
	if len(curatorIDs) == 0 {
		return map[string]*models.TrackSnapshot{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(curatorIDs))
	for _, id := range curatorIDs {
		cmds[id] = pipe.Get(ctx, trackKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	out := make(map[string]*models.TrackSnapshot, len(curatorIDs))
	for id, cmd := range cmds {
		val, err := cmd.Result()
		if err != nil {
			continue // redis.Nil: no fresh snapshot for this curator
		}
		var snap models.TrackSnapshot
		if err := json.Unmarshal([]byte(val), &snap); err != nil {
			continue
		}
		out[id] = &snap
	}
	return out, nil
}

func (r *RedisCache) AddListener(ctx context.Context, sessionID, userID string) error {
	key := listenersKeyPrefix + sessionID
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, ListenerSetTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisCache) RemoveListener(ctx context.Context, sessionID, userID string) error {
	return r.client.SRem(ctx, listenersKeyPrefix+sessionID, userID).Err()
}

func (r *RedisCache) Listeners(ctx context.Context, sessionID string) ([]string, error) {
	return r.client.SMembers(ctx, listenersKeyPrefix+sessionID).Result()
}

func (r *RedisCache) ListenerCount(ctx context.Context, sessionID string) (int, error) {
	n, err := r.client.SCard(ctx, listenersKeyPrefix+sessionID).Result()
	return int(n), err
}

func (r *RedisCache) ClearListeners(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, listenersKeyPrefix+sessionID).Err()
}

// CheckAndConsumeRateLimit rides on SETNX+PX: the command both checks and
// claims the cooldown token in one atomic step, so two concurrent sends
// from the same user can never both pass.
func (r *RedisCache) CheckAndConsumeRateLimit(ctx context.Context, userID, sessionID string, window time.Duration) (bool, error) {
	key := ratelimitKeyPrefix + sessionID + ":" + userID
	return r.client.SetNX(ctx, key, 1, window).Result()
}

func (r *RedisCache) AddToLiveIndex(ctx context.Context, sessionID string, startedAt time.Time) error {
	return r.client.ZAdd(ctx, liveIndexKey, redis.Z{
		Score:  float64(startedAt.Unix()),
		Member: sessionID,
	}).Err()
}

func (r *RedisCache) RemoveFromLiveIndex(ctx context.Context, sessionID string) error {
	return r.client.ZRem(ctx, liveIndexKey, sessionID).Err()
}

// LiveIndex returns all live session ids, oldest first.
func (r *RedisCache) LiveIndex(ctx context.Context) ([]string, error) {
	return r.client.ZRange(ctx, liveIndexKey, 0, -1).Result()
}
