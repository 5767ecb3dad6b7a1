package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

const redisKeyPrefix = "freelanceflow:conversation:"

// redisCommands is the subset of *redis.Client used by RedisStore.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps bindings in Redis so several instances can share them.
type RedisStore struct {
	rdb redisCommands
	ttl time.Duration
}

// NewRedisStore creates a store over rdb. A zero ttl keeps bindings forever.
func NewRedisStore(rdb redisCommands, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Ensure RedisStore implements Store interface.
var _ Store = (*RedisStore)(nil)

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// GetConversation returns the binding for conversationID.
func (s *RedisStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv domain.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &conv, nil
}

// BindConversation stores conv with SETNX so a concurrent bind cannot
// overwrite an existing thread.
func (s *RedisStore) BindConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}

	created, err := s.rdb.SetNX(ctx, redisKeyPrefix+conv.ConversationID, data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to bind conversation: %w", err)
	}
	if created {
		stored := *conv
		return &stored, nil
	}

	existing, err := s.GetConversation(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("conversation %s vanished during bind", conv.ConversationID)
	}
	return existing, nil
}
