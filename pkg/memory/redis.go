package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// DefaultRedisPrefix namespaces session keys when no prefix is configured.
const DefaultRedisPrefix = "tabletalk:session"

// RedisStore keeps each session in a Redis list at <prefix>:<session>.
// Appends use RPUSH, so entries are never rewritten.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisStore creates a store on client. A positive ttl is refreshed on
// every append.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the list key of a session.
func (s *RedisStore) Key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Close closes the client when the store opened it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]message.Message, error) {
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}

	items, err := s.client.LRange(ctx, s.Key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: load session %q: %w", sessionID, err)
	}

	msgs := make([]message.Message, 0, len(items))
	for i, item := range items {
		m, err := decode(sessionID, i, []byte(item))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Append implements Store. The push and the TTL refresh run in one
// MULTI/EXEC transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...message.Message) error {
	if err := checkSession(sessionID); err != nil {
		return err
	}

	encoded, err := encodeAll(persistable(msgs))
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}

	values := make([]any, len(encoded))
	for i, e := range encoded {
		values[i] = string(e)
	}

	key := s.Key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, values...)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory: append session %q: %w", sessionID, err)
	}
	return nil
}

// Sessions implements Lister using SCAN over the key prefix.
func (s *RedisStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo

	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := s.client.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("memory: list sessions: %w", err)
		}
		if n == 0 {
			continue
		}
		out = append(out, SessionInfo{ID: strings.TrimPrefix(key, s.prefix+":"), Messages: int(n), LastSeq: n})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("memory: list sessions: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
