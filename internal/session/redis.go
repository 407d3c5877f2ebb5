package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore keeps states as JSON under "session:<user id>" with a TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	raw, err := r.rdb.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle(), nil
	}
	if err != nil {
		return Idle(), errors.Wrapf(err, "get session %d", userID)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil || !st.Valid() {
		// Unreadable entries are dropped rather than blocking the user.
		_ = r.rdb.Del(ctx, redisKey(userID)).Err()
		return Idle(), nil
	}
	return st, nil
}

func (r *RedisStore) Set(ctx context.Context, userID int64, st State) error {
	if !st.Valid() {
		return errors.Wrapf(ErrInvalidState, "%s", st)
	}
	if st.IsIdle() {
		return r.Clear(ctx, userID)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := r.rdb.Set(ctx, redisKey(userID), data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set session %d", userID)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.rdb.Del(ctx, redisKey(userID)).Err(); err != nil {
		return errors.Wrapf(err, "clear session %d", userID)
	}
	return nil
}

// Reset deletes every session key. Called on startup so that a restart drops
// in-flight captures the same way the memory backend does.
func (r *RedisStore) Reset(ctx context.Context) (int, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, errors.Wrap(err, "scan session keys")
	}

	for start := 0; start < len(keys); start += 100 {
		end := start + 100
		if end > len(keys) {
			end = len(keys)
		}
		if err := r.rdb.Del(ctx, keys[start:end]...).Err(); err != nil {
			return start, errors.Wrap(err, "delete session keys")
		}
	}
	return len(keys), nil
}
