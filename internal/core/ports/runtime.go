package ports

import (
	"context"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/pkg/config"
)

// ConfigProvider loads the configuration and reports changes to it.
// Implementations: file-based with hot reload.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}
