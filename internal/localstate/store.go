// Package localstate keeps the small per-session records a shopper's client
// would otherwise hold locally: the anonymous cart, the pending payment marker,
// and the last-used shipping info.
package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/shopflow-backend/pkg/redis"
)

// Key names one persisted record.
type Key string

const (
	KeyCart           Key = "cart"
	KeyPendingPayment Key = "pending_payment"
	KeyShippingInfo   Key = "shipping_info"
)

// Store persists JSON records per session.
type Store interface {
	// Load decodes the record into dst. A missing or unreadable record reports found=false.
	Load(ctx context.Context, session string, key Key, dst any) (bool, error)
	Save(ctx context.Context, session string, key Key, value any) error
	Delete(ctx context.Context, session string, key Key) error
}

// ErrNoSession is returned when a record is addressed without a session.
var ErrNoSession = errors.New("localstate: session is required")

type redisBackend interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	Del(context.Context, ...string) error
	SessionKey(sessionID, name string) string
}

// RedisStore keeps records in redis with a sliding TTL.
type RedisStore struct {
	backend redisBackend
	ttl     time.Duration
	logg    *logger.Logger
}

// NewRedisStore wires a redis-backed store.
func NewRedisStore(backend redisBackend, ttl time.Duration, logg *logger.Logger) (*RedisStore, error) {
	if backend == nil {
		return nil, errors.New("redis backend required")
	}
	return &RedisStore{backend: backend, ttl: ttl, logg: logg}, nil
}

func (s *RedisStore) Load(ctx context.Context, session string, key Key, dst any) (bool, error) {
	if err := checkSession(session); err != nil {
		return false, err
	}
	redisKey := s.backend.SessionKey(session, string(key))
	raw, err := s.backend.Get(ctx, redisKey)
	if errors.Is(err, pkgredis.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.discardCorrupt(ctx, session, key, err)
		_ = s.backend.Del(ctx, redisKey)
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) Save(ctx context.Context, session string, key Key, value any) error {
	if err := checkSession(session); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, s.backend.SessionKey(session, string(key)), payload, s.ttl); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, session string, key Key) error {
	if err := checkSession(session); err != nil {
		return err
	}
	if err := s.backend.Del(ctx, s.backend.SessionKey(session, string(key))); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) discardCorrupt(ctx context.Context, session string, key Key, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_session": session,
		"key":          string(key),
	})
	s.logg.Warn(logCtx, "localstate.corrupt_record_discarded: "+err.Error())
}

// MemoryStore is a process-local Store used by tests and single-node dev runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string][]byte{}}
}

func (m *MemoryStore) Load(_ context.Context, session string, key Key, dst any) (bool, error) {
	if err := checkSession(session); err != nil {
		return false, err
	}
	m.mu.Lock()
	raw, ok := m.records[memoryKey(session, key)]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		m.mu.Lock()
		delete(m.records, memoryKey(session, key))
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) Save(_ context.Context, session string, key Key, value any) error {
	if err := checkSession(session); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.records[memoryKey(session, key)] = payload
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, session string, key Key) error {
	if err := checkSession(session); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.records, memoryKey(session, key))
	m.mu.Unlock()
	return nil
}

// PutRaw stores bytes verbatim. Tests use it to plant corrupt records.
func (m *MemoryStore) PutRaw(session string, key Key, raw []byte) {
	m.mu.Lock()
	m.records[memoryKey(session, key)] = raw
	m.mu.Unlock()
}

func memoryKey(session string, key Key) string {
	return session + ":" + string(key)
}

func checkSession(session string) error {
	if strings.TrimSpace(session) == "" {
		return ErrNoSession
	}
	return nil
}
