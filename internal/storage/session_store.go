package storage

import (
	"context"
	"errors"
	"sync"

	"resume-agent-go/internal/types"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// SessionStore 会话持久化
type SessionStore interface {
	Save(ctx context.Context, s *types.Session) error
	// Get 不存在时返回 ErrSessionNotFound
	Get(ctx context.Context, id string) (*types.Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*types.Session, error)
	Close() error
}

// MemorySessionStore 进程内会话存储，Redis 未启用时使用
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*types.Session)}
}

// Save 保存副本，调用方之后的修改不影响已存数据
func (m *MemorySessionStore) Save(_ context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) List(_ context.Context) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	sortSessions(out)
	return out, nil
}

func (m *MemorySessionStore) Close() error { return nil }

func cloneSession(s *types.Session) *types.Session {
	cp := *s
	cp.History = append([]types.ConversationTurn(nil), s.History...)
	return &cp
}
