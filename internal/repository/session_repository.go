package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/gradesheet-api/internal/models"
	appErrors "github.com/noah-isme/gradesheet-api/pkg/errors"
)

// SessionKeyPrefix namespaces grade sheet sessions in Redis.
const SessionKeyPrefix = "gradesheet:session:"

// SessionKey returns the storage key of a session.
func SessionKey(id string) string {
	return SessionKeyPrefix + id
}

// RedisSessionRepository keeps sheet snapshots as JSON documents in Redis.
type RedisSessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSessionRepository constructs a Redis-backed session store.
func NewRedisSessionRepository(client *redis.Client, logger *zap.Logger) *RedisSessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionRepository{client: client, logger: logger}
}

// Get loads a snapshot.
func (r *RedisSessionRepository) Get(ctx context.Context, id string) (*models.SheetSnapshot, error) {
	key := SessionKey(id)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var snap models.SheetSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", key, err)
	}
	return &snap, nil
}

// Save stores a snapshot and refreshes its TTL.
func (r *RedisSessionRepository) Save(ctx context.Context, snap *models.SheetSnapshot, ttl time.Duration) error {
	key := SessionKey(snap.ID)
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a snapshot. Missing keys are not an error.
func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	key := SessionKey(id)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Count reports how many sessions are stored.
func (r *RedisSessionRepository) Count(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, SessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan sessions: %w", err)
	}
	return count, nil
}

// PurgeExpired is a no-op; Redis expires keys itself.
func (r *RedisSessionRepository) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close releases the underlying Redis connection.
func (r *RedisSessionRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

type memorySession struct {
	payload   []byte
	expiresAt time.Time
}

// MemorySessionRepository is the in-process session store used for single-instance
// deployments and tests. Snapshots are stored serialised so callers never share state.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

// NewMemorySessionRepository constructs an empty in-process store.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]memorySession), now: time.Now}
}

// Get loads a snapshot unless it has expired.
func (r *MemorySessionRepository) Get(_ context.Context, id string) (*models.SheetSnapshot, error) {
	r.mu.RLock()
	entry, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || r.expired(entry, r.now()) {
		return nil, appErrors.ErrSessionNotFound
	}
	var snap models.SheetSnapshot
	if err := json.Unmarshal(entry.payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &snap, nil
}

// Save stores a snapshot. A non-positive ttl keeps it until deleted.
func (r *MemorySessionRepository) Save(_ context.Context, snap *models.SheetSnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", snap.ID, err)
	}
	entry := memorySession{payload: payload}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.mu.Lock()
	r.sessions[snap.ID] = entry
	r.mu.Unlock()
	return nil
}

// Delete removes a snapshot.
func (r *MemorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

// Count reports live sessions.
func (r *MemorySessionRepository) Count(context.Context) (int, error) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, entry := range r.sessions {
		if !r.expired(entry, now) {
			count++
		}
	}
	return count, nil
}

// PurgeExpired drops sessions whose TTL elapsed before now.
func (r *MemorySessionRepository) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.sessions {
		if r.expired(entry, now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-process store.
func (r *MemorySessionRepository) Close() error { return nil }

func (r *MemorySessionRepository) expired(entry memorySession, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}
