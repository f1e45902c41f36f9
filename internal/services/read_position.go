package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const readPositionKeyPrefix = "im:group:read:position"

// ReadPositionStore tracks, per (group, user), the highest message id the
// user has had pushed. Group messages carry no per-user read rows; a group
// message is read for a user exactly when its id is at or below the user's
// position. Positions only ever advance.
type ReadPositionStore interface {
	// Get returns the position, 0 when none is recorded.
	Get(ctx context.Context, groupID, userID int64) (int64, error)
	// MultiGet returns positions for one user across several groups, in
	// the order of groupIDs.
	MultiGet(ctx context.Context, groupIDs []int64, userID int64) ([]int64, error)
	// Advance moves the position up to messageID. Lower values are
	// ignored, so concurrent writers from multiple devices resolve to the
	// maximum without locking.
	Advance(ctx context.Context, groupID, userID, messageID int64) error
}

func readPositionKey(groupID, userID int64) string {
	return fmt.Sprintf("%s:%d:%d", readPositionKeyPrefix, groupID, userID)
}

// advanceScript is a compare-and-set: the stored position only moves forward.
var advanceScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local next = tonumber(ARGV[1])
if next > cur then
	redis.call('SET', KEYS[1], ARGV[1])
	return next
end
return cur
`)

// RedisReadPositionStore keeps read positions in Redis, one key per
// (group, user) pair.
type RedisReadPositionStore struct {
	client *redis.Client
}

func NewRedisReadPositionStore(client *redis.Client) *RedisReadPositionStore {
	return &RedisReadPositionStore{client: client}
}

func (s *RedisReadPositionStore) Get(ctx context.Context, groupID, userID int64) (int64, error) {
	pos, err := s.client.Get(ctx, readPositionKey(groupID, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading position for group %d user %d: %w", groupID, userID, err)
	}
	return pos, nil
}

func (s *RedisReadPositionStore) MultiGet(ctx context.Context, groupIDs []int64, userID int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(groupIDs))
	for i, groupID := range groupIDs {
		keys[i] = readPositionKey(groupID, userID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading positions for user %d: %w", userID, err)
	}
	out := make([]int64, len(groupIDs))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var pos int64
		if _, err := fmt.Sscanf(str, "%d", &pos); err == nil {
			out[i] = pos
		}
	}
	return out, nil
}

func (s *RedisReadPositionStore) Advance(ctx context.Context, groupID, userID, messageID int64) error {
	err := advanceScript.Run(ctx, s.client, []string{readPositionKey(groupID, userID)}, messageID).Err()
	if err != nil {
		return fmt.Errorf("advancing position for group %d user %d: %w", groupID, userID, err)
	}
	return nil
}

// MemoryReadPositionStore is an in-process ReadPositionStore for single-node
// runs and tests.
type MemoryReadPositionStore struct {
	mu        sync.RWMutex
	positions map[string]int64
}

func NewMemoryReadPositionStore() *MemoryReadPositionStore {
	return &MemoryReadPositionStore{positions: make(map[string]int64)}
}

func (s *MemoryReadPositionStore) Get(ctx context.Context, groupID, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[readPositionKey(groupID, userID)], nil
}

func (s *MemoryReadPositionStore) MultiGet(ctx context.Context, groupIDs []int64, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(groupIDs))
	for i, groupID := range groupIDs {
		out[i] = s.positions[readPositionKey(groupID, userID)]
	}
	return out, nil
}

func (s *MemoryReadPositionStore) Advance(ctx context.Context, groupID, userID, messageID int64) error {
	key := readPositionKey(groupID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID > s.positions[key] {
		s.positions[key] = messageID
	}
	return nil
}
