package platform

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTokenSource reads per-curator access tokens that the main app's
// OAuth layer keeps current in Redis. Refresh re-reads the key rather
// than talking to the platform: by the time playback polling sees a 401,
// the owner has usually already rotated the token.
type RedisTokenSource struct {
	client *redis.Client
}

func NewRedisTokenSource(client *redis.Client) *RedisTokenSource {
	return &RedisTokenSource{client: client}
}

func (r *RedisTokenSource) key(curatorID string) string {
	return "platform:token:" + curatorID
}

func (r *RedisTokenSource) Token(ctx context.Context, curatorID string) (string, error) {
	token, err := r.client.Get(ctx, r.key(curatorID)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no platform token for curator %s", curatorID)
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (r *RedisTokenSource) Refresh(ctx context.Context, curatorID string) (string, error) {
	return r.Token(ctx, curatorID)
}
