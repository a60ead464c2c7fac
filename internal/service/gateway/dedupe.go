package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ludo-service/pkg/protocol"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// StoredResult is what a clientActionId resolved to. Exactly one field is set.
type StoredResult struct {
	Result *protocol.ActionResult `json:"result,omitempty"`
	Error  *protocol.ErrorBody    `json:"error,omitempty"`
}

// ResultStore retains action outcomes for the dedupe window. Load returns
// nil without error on a miss.
type ResultStore interface {
	Load(ctx context.Context, key string) (*StoredResult, error)
	Save(ctx context.Context, key string, r StoredResult) error
}

type RedisResultStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisResultStore(rdb *redis.Client, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{rdb: rdb, ttl: ttl}
}

func (s *RedisResultStore) Load(ctx context.Context, key string) (*StoredResult, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r StoredResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Save keeps the first outcome written for a key.
func (s *RedisResultStore) Save(ctx context.Context, key string, r StoredResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.SetNX(ctx, key, data, s.ttl).Err()
}

type memoryEntry struct {
	result  StoredResult
	expires time.Time
}

type MemoryResultStore struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryResultStore(ttl time.Duration, clock clockwork.Clock) *MemoryResultStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryResultStore{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryResultStore) Load(_ context.Context, key string) (*StoredResult, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	r := e.result
	return &r, nil
}

func (s *MemoryResultStore) Save(_ context.Context, key string, r StoredResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return nil
	}
	s.entries[key] = memoryEntry{result: r, expires: s.clock.Now().Add(s.ttl)}
	return nil
}
