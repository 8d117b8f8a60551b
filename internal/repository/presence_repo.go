package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "attendance:presence:"
	onlineSetKey      = "attendance:online_users"
)

// Presence is the cached, TTL-bound view of a user's liveness
type Presence struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	LastSeen  int64  `json:"last_seen"`
}

type PresenceRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewPresenceRepository creates a presence cache whose entries expire after ttl
func NewPresenceRepository(redisClient *redis.Client, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{redis: redisClient, ttl: ttl}
}

// Set stores the presence entry and adds the user to the online set
func (r *PresenceRepository) Set(ctx context.Context, p Presence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+p.UserID, data, r.ttl)
	pipe.SAdd(ctx, onlineSetKey, p.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// Get returns the cached entry, or ErrNotFound once it expired
func (r *PresenceRepository) Get(ctx context.Context, userID string) (*Presence, error) {
	data, err := r.redis.Get(ctx, presenceKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	var p Presence
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &p, nil
}

// Remove deletes the entry and drops the user from the online set
func (r *PresenceRepository) Remove(ctx context.Context, userID string) error {
	pipe := r.redis.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.SRem(ctx, onlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

// ListOnline returns every unexpired entry and prunes expired members from
// the online set
func (r *PresenceRepository) ListOnline(ctx context.Context) ([]Presence, error) {
	userIDs, err := r.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}
	if len(userIDs) == 0 {
		return []Presence{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Get(ctx, presenceKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get presence data: %w", err)
	}

	online := make([]Presence, 0, len(userIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			expired = append(expired, userIDs[i])
			continue
		}
		var p Presence
		if err := json.Unmarshal(data, &p); err != nil {
			expired = append(expired, userIDs[i])
			continue
		}
		online = append(online, p)
	}

	if len(expired) > 0 {
		if err := r.redis.SRem(ctx, onlineSetKey, expired...).Err(); err != nil {
			return online, fmt.Errorf("failed to prune online set: %w", err)
		}
	}
	return online, nil
}
