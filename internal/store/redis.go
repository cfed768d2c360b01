package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recomplejos/court-booking/internal/model"
)

// Records are stored as JSON strings under slotPrefix+key.  The CAS
// scripts decode the stored value with cjson and compare the embedded
// revision, so an Update or Delete can never clobber a record that
// moved underneath the caller.

const (
	slotPrefix    = "booking:slot:"
	sessionPrefix = "booking:session:"
)

var updateScript = redis.NewScript(`
	local v = redis.call('GET', KEYS[1])
	if not v then return -1 end
	if tonumber(cjson.decode(v).version) ~= tonumber(ARGV[1]) then return 0 end
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
`)

var deleteScript = redis.NewScript(`
	local v = redis.call('GET', KEYS[1])
	if not v then return -1 end
	if tonumber(cjson.decode(v).version) ~= tonumber(ARGV[1]) then return 0 end
	redis.call('DEL', KEYS[1])
	return 1
`)

// RedisStore implements Store on a Redis server.  It is safe for
// concurrent use; all conditional writes run server-side.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a RedisStore bound to the provided client.
func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Get(ctx context.Context, key string) (*model.ReservationRecord, error) {
	raw, err := s.rdb.Get(ctx, slotPrefix+key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec model.ReservationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record %q: %w", key, err)
	}
	return &rec, nil
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, key string, rec *model.ReservationRecord) (bool, error) {
	rec.Version = 1
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode record: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, slotPrefix+key, raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Update(ctx context.Context, key string, rec *model.ReservationRecord) error {
	expect := rec.Version
	next := *rec
	next.Version = expect + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	res, err := updateScript.Run(ctx, s.rdb, []string{slotPrefix + key}, expect, raw).Int()
	if err != nil {
		return fmt.Errorf("redis update script: %w", err)
	}
	switch res {
	case 1:
		rec.Version = next.Version
		return nil
	case 0:
		return ErrVersionConflict
	default:
		return ErrNotFound
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string, version int64) error {
	res, err := deleteScript.Run(ctx, s.rdb, []string{slotPrefix + key}, version).Int()
	if err != nil {
		return fmt.Errorf("redis delete script: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrVersionConflict
	default:
		return ErrNotFound
	}
}

func (s *RedisStore) ListAll(ctx context.Context) (map[string]*model.ReservationRecord, error) {
	out := make(map[string]*model.ReservationRecord)
	iter := s.rdb.Scan(ctx, 0, slotPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		raw, err := s.rdb.Get(ctx, full).Result()
		if err == redis.Nil {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %q: %w", full, err)
		}
		var rec model.ReservationRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", full, err)
		}
		out[strings.TrimPrefix(full, slotPrefix)] = &rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

// RedisIndex implements Index on the same Redis server.  Entries are
// write-once (SETNX) and pruned automatically after the retention
// window, which bounds replay-detection memory without a sweeper.
type RedisIndex struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisIndex returns a RedisIndex.  retention <= 0 keeps entries forever.
func NewRedisIndex(rdb *redis.Client, retention time.Duration) *RedisIndex {
	if retention < 0 {
		retention = 0
	}
	return &RedisIndex{rdb: rdb, retention: retention}
}

func (i *RedisIndex) Put(ctx context.Context, sessionID string, ref SessionRef) error {
	raw, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode session ref: %w", err)
	}
	// SETNX keeps the first binding; a duplicate Put for the same
	// session is a no-op rather than an overwrite.
	if err := i.rdb.SetNX(ctx, sessionPrefix+sessionID, raw, i.retention).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (i *RedisIndex) Resolve(ctx context.Context, sessionID string) (*SessionRef, error) {
	raw, err := i.rdb.Get(ctx, sessionPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var ref SessionRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, fmt.Errorf("decode session ref: %w", err)
	}
	return &ref, nil
}
