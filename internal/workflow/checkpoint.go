package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CheckpointStore persists step results keyed by run and step name.
type CheckpointStore interface {
	Load(ctx context.Context, runKey, step string) (json.RawMessage, bool, error)
	Save(ctx context.Context, runKey, step string, result json.RawMessage) error
}

// MemoryCheckpoints keeps checkpoints for the life of the process.
type MemoryCheckpoints struct {
	mu   sync.RWMutex
	runs map[string]map[string]json.RawMessage
}

// NewMemoryCheckpoints returns an empty store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{runs: make(map[string]map[string]json.RawMessage)}
}

func (m *MemoryCheckpoints) Load(_ context.Context, runKey, step string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result, ok := m.runs[runKey][step]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), result...), true, nil
}

func (m *MemoryCheckpoints) Save(_ context.Context, runKey, step string, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps, ok := m.runs[runKey]
	if !ok {
		steps = make(map[string]json.RawMessage)
		m.runs[runKey] = steps
	}
	steps[step] = append(json.RawMessage(nil), result...)
	return nil
}

// RedisCheckpoints stores one hash per run; fields are step names.
type RedisCheckpoints struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCheckpoints builds a Redis store. A zero ttl keeps runs forever.
func NewRedisCheckpoints(client *redis.Client, prefix string, ttl time.Duration) *RedisCheckpoints {
	return &RedisCheckpoints{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCheckpoints) key(runKey string) string {
	return r.prefix + ":run:" + runKey
}

func (r *RedisCheckpoints) Load(ctx context.Context, runKey, step string) (json.RawMessage, bool, error) {
	val, err := r.client.HGet(ctx, r.key(runKey), step).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(val), true, nil
}

func (r *RedisCheckpoints) Save(ctx context.Context, runKey, step string, result json.RawMessage) error {
	key := r.key(runKey)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, step, []byte(result))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
