package ports

import (
	"context"
	"time"
)

// SecretStore keeps the runtime secrets of acting identities. Secrets are
// merged into the configuration of every run an identity dispatches.
// Implementations: SQLite (default), in-memory.
type SecretStore interface {
	// Secrets returns all secrets of an identity keyed by name. An identity
	// without secrets yields an empty map, not an error.
	Secrets(ctx context.Context, identity string) (map[string]string, error)

	// SetSecret creates or replaces a secret.
	SetSecret(ctx context.Context, identity, name, value string) error

	// DeleteSecret removes a secret. Deleting a missing secret is not an error.
	DeleteSecret(ctx context.Context, identity, name string) error

	// ListSecrets returns secret metadata without values.
	ListSecrets(ctx context.Context, identity string) ([]SecretInfo, error)

	// Close closes the storage connection
	Close() error
}

// SecretInfo describes a stored secret without exposing its value.
type SecretInfo struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}
