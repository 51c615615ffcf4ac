package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/log"
)

var (
	ErrMaxSessions = errors.New("maximum sessions reached")
	ErrNotFound    = errors.New("session not found")
)

const activeSessionsKey = "active_sessions"

func sessionKey(id string) string { return "session:" + id }

// Manager manages all client sessions. Session metadata is mirrored to
// Redis when it is reachable; the sessions themselves live in memory.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
}

// NewManager creates a session manager, connecting to Redis if possible.
func NewManager(cfg *config.Config) *Manager {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warnf("⚠️ Redis unavailable at %s, session mirror disabled: %v", cfg.RedisURL, err)
		redisClient.Close()
		redisClient = nil
	}

	return NewManagerWithRedis(cfg, redisClient)
}

// NewManagerWithRedis creates a manager using rdb, which may be nil.
func NewManagerWithRedis(cfg *config.Config, rdb *redis.Client) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		redis:    rdb,
		config:   cfg,
	}
}

// Redis returns the mirror client, or nil when Redis is not in use.
func (sm *Manager) Redis() *redis.Client {
	return sm.redis
}

// CreateSession creates a new session with the configured defaults.
func (sm *Manager) CreateSession(ctx context.Context) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		return nil, ErrMaxSessions
	}

	s := New(uuid.New().String(), DefaultGenerationConfig(sm.config), sm.config.MaxBufferSize)
	sm.sessions[s.ID] = s
	sm.mirror(ctx, s)

	log.Infof("✅ New session created: %s", s.ID)
	return s, nil
}

// mirror writes the session's metadata to Redis.
func (sm *Manager) mirror(ctx context.Context, s *Session) {
	if sm.redis == nil {
		return
	}
	cfg := s.Config()
	pipe := sm.redis.TxPipeline()
	pipe.HSet(ctx, sessionKey(s.ID), map[string]interface{}{
		"created_at":    s.CreatedAt.Format(time.RFC3339),
		"last_activity": s.LastActivity().Format(time.RFC3339),
		"status":        "active",
		"model":         cfg.Model,
		"turns":         len(s.Ledger()),
	})
	pipe.SAdd(ctx, activeSessionsKey, s.ID)
	pipe.Expire(ctx, sessionKey(s.ID), sm.config.SessionTimeout)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("⚠️ [%s] Redis mirror failed: %v", s.Short(), err)
	}
}

// Sync refreshes the Redis metadata after the session changed.
func (sm *Manager) Sync(ctx context.Context, s *Session) {
	sm.mirror(ctx, s)
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.sessions[sessionID]
	return s, exists
}

// RemoveSession closes and forgets a session. Unknown IDs yield ErrNotFound.
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	s, exists := sm.sessions[sessionID]
	if exists {
		delete(sm.sessions, sessionID)
	}
	sm.mu.Unlock()

	if !exists {
		return ErrNotFound
	}

	s.Close()
	sm.forget(ctx, sessionID)
	log.Infof("🔌 Session closed: %s", sessionID)
	return nil
}

func (sm *Manager) forget(ctx context.Context, id string) {
	if sm.redis == nil {
		return
	}
	sm.redis.Del(ctx, sessionKey(id))
	sm.redis.SRem(ctx, activeSessionsKey, id)
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions removes sessions idle for longer than the timeout.
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	now := time.Now()

	sm.mu.Lock()
	var expired []*Session
	for id, s := range sm.sessions {
		if now.Sub(s.LastActivity()) > sm.config.SessionTimeout {
			expired = append(expired, s)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		s.Close()
		sm.forget(ctx, s.ID)
		log.Infof("🧹 [%s] Session expired", s.Short())
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
