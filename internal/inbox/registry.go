package inbox

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/pkg/config"
)

// ClientFactory creates the engine client for a target.
type ClientFactory func(target domain.Target) (ports.ThreadService, error)

// Registry holds the configured inbox targets and one engine client per
// target. It only resolves ids; callers pass the resolved target explicitly
// to every operation.
type Registry struct {
	factory ClientFactory

	mu        sync.RWMutex
	targets   map[string]*domain.Target
	defaultID string
	clients   map[string]ports.ThreadService
}

// NewRegistry creates an empty registry.
func NewRegistry(factory ClientFactory) *Registry {
	return &Registry{
		factory: factory,
		targets: make(map[string]*domain.Target),
		clients: make(map[string]ports.ThreadService),
	}
}

// Load replaces the registered targets. Cached clients are dropped so a
// changed deployment URL or API key takes effect on the next call.
func (r *Registry) Load(targets []domain.Target, defaultID string) error {
	next := make(map[string]*domain.Target, len(targets))
	for i := range targets {
		t := targets[i]
		if t.ID == "" {
			return fmt.Errorf("inbox %d: id is required", i)
		}
		if _, dup := next[t.ID]; dup {
			return fmt.Errorf("inbox %s: duplicate id", t.ID)
		}
		next[t.ID] = &t
	}
	if defaultID != "" {
		if _, ok := next[defaultID]; !ok {
			return fmt.Errorf("default inbox %s is not configured", defaultID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = next
	r.defaultID = defaultID
	r.clients = make(map[string]ports.ThreadService)
	return nil
}

// LoadConfig loads the inboxes of cfg.
func (r *Registry) LoadConfig(cfg *config.Config) error {
	targets := make([]domain.Target, 0, len(cfg.Inboxes))
	for _, ic := range cfg.Inboxes {
		targets = append(targets, domain.Target{
			ID:              ic.ID,
			Name:            ic.Name,
			DeploymentURL:   ic.DeploymentURL,
			GraphID:         ic.GraphID,
			APIKey:          ic.APIKey,
			RequiredSecrets: ic.RequiredSecrets,
		})
	}
	return r.Load(targets, cfg.DefaultInbox)
}

// Get retrieves a target by ID.
func (r *Registry) Get(id string) (*domain.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Resolve returns the target with the given id, or the default target when
// id is empty.
func (r *Registry) Resolve(id string) (*domain.Target, bool) {
	if id == "" {
		r.mu.RLock()
		id = r.defaultID
		r.mu.RUnlock()
		if id == "" {
			return nil, false
		}
	}
	return r.Get(id)
}

// List returns all targets ordered by id.
func (r *Registry) List() []domain.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Client returns the engine client of target, creating it on first use.
func (r *Registry) Client(target *domain.Target) (ports.ThreadService, error) {
	if target == nil {
		return nil, domain.ErrConfiguration("no inbox selected").WithCode(domain.ErrorCodeTargetNotConfigured)
	}

	r.mu.RLock()
	client, ok := r.clients[target.ID]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[target.ID]; ok {
		return client, nil
	}
	// The caller's copy may predate a reload; build from the current one.
	current, ok := r.targets[target.ID]
	if !ok {
		return nil, domain.ErrConfiguration("inbox not configured: " + target.ID).WithCode(domain.ErrorCodeTargetNotConfigured)
	}
	client, err := r.factory(*current)
	if err != nil {
		return nil, fmt.Errorf("create client for inbox %s: %w", target.ID, err)
	}
	r.clients[target.ID] = client
	return client, nil
}
