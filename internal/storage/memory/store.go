package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/storage"
)

type secret struct {
	value     string
	updatedAt time.Time
}

// Store is an in-memory implementation of SecretStore
type Store struct {
	mu      sync.RWMutex
	secrets map[string]map[string]secret
}

var _ ports.SecretStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		secrets: make(map[string]map[string]secret),
	}
}

func (s *Store) Secrets(ctx context.Context, identity string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.secrets[identity]))
	for name, sec := range s.secrets[identity] {
		out[name] = sec.value
	}
	return out, nil
}

func (s *Store) SetSecret(ctx context.Context, identity, name, value string) error {
	if err := storage.ValidateSecret(identity, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secrets[identity] == nil {
		s.secrets[identity] = make(map[string]secret)
	}
	s.secrets[identity][name] = secret{value: value, updatedAt: time.Now().UTC()}
	return nil
}

func (s *Store) DeleteSecret(ctx context.Context, identity, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets[identity], name)
	if len(s.secrets[identity]) == 0 {
		delete(s.secrets, identity)
	}
	return nil
}

func (s *Store) ListSecrets(ctx context.Context, identity string) ([]ports.SecretInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []ports.SecretInfo
	for name, sec := range s.secrets[identity] {
		infos = append(infos, ports.SecretInfo{Name: name, UpdatedAt: sec.updatedAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *Store) Close() error {
	return nil
}
