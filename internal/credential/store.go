package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rickgao/ems-client/internal/config"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("credential: unknown backend")

// Store persists one token per connection name.
type Store interface {
	// Token returns the stored token for name, if any.
	Token(ctx context.Context, name string) (token string, ok bool, err error)

	// SetToken stores token for name, replacing any previous one.
	SetToken(ctx context.Context, name, token string) error

	// RemoveToken forgets the token for name. Removing a missing token is not an error.
	RemoveToken(ctx context.Context, name string) error
}

// New builds the store selected by cfg. db is only used by the postgres backend.
func New(cfg config.CredentialsConfig, db DB) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.Path), nil
	case config.BackendPostgres:
		if db == nil {
			return nil, errors.New("credential: postgres backend needs a database pool")
		}
		return NewPostgresStore(db, cfg.Table), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// MemoryStore keeps tokens in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) Token(_ context.Context, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[name]
	return token, ok, nil
}

func (s *MemoryStore) SetToken(_ context.Context, name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[name] = token
	return nil
}

func (s *MemoryStore) RemoveToken(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, name)
	return nil
}
