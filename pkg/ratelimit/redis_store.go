package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix     = "ratelimit:attempts:"
	defaultRedisMaxRetries = 10
	redisScanBatch         = 500
)

// RedisStore keeps the records of each key in a sorted set scored by creation
// time in microseconds. Atomic uses WATCH/MULTI, so concurrent steps on one key
// are retried until they commit without interleaving.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the namespace of the sorted set keys.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisTTL expires a whole key after ttl without new attempts. Use a value of
// at least max(Window, Lockout); zero disables expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisMaxRetries bounds optimistic transaction retries before ErrConflict.
func WithRedisMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     defaultRedisPrefix,
		ttl:        time.Hour,
		maxRetries: defaultRedisMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Atomic(ctx context.Context, key string, since time.Time, fn func(records []Record) Mutation) error {
	k := s.key(key)
	minScore := strconv.FormatInt(since.UnixMicro(), 10)

	txf := func(tx *redis.Tx) error {
		members, err := tx.ZRangeByScore(ctx, k, &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		m := fn(decodeRecords(members))
		if !m.Reset && m.Append == nil {
			return nil
		}

		var payload []byte
		if m.Append != nil {
			if payload, err = json.Marshal(m.Append); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if m.Reset {
				pipe.Del(ctx, k)
			}
			if m.Append != nil {
				pipe.ZAdd(ctx, k, redis.Z{Score: score(m.Append.CreatedAt), Member: payload})
				if s.ttl > 0 {
					pipe.Expire(ctx, k, s.ttl)
				}
			}
			return nil
		})
		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	k := s.key(rec.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, redis.Z{Score: score(rec.CreatedAt), Member: payload})
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// DeleteBefore walks the prefix with SCAN so it never blocks the server.
func (s *RedisStore) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(t.UnixMicro(), 10)

	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", redisScanBatch).Result()
		if err != nil {
			return removed, err
		}

		for _, k := range keys {
			n, err := s.client.ZRemRangeByScore(ctx, k, "-inf", maxScore).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}

		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// decodeRecords skips members that do not parse. They are never counted and
// expire with the key.
func decodeRecords(members []string) []Record {
	records := make([]Record, 0, len(members))
	for _, m := range members {
		var rec Record
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}
