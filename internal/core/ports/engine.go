package ports

import (
	"context"
	"encoding/json"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
)

// EndNode is the node name that marks a thread as finished when passed as
// StateUpdate.AsNode.
const EndNode = "__end__"

// ThreadService is the remote workflow engine as seen by the inbox.
// Implementations: langgraph HTTP client (default), test stubs.
type ThreadService interface {
	// Search lists a page of threads.
	Search(ctx context.Context, req SearchRequest) ([]domain.Thread, error)

	// Get returns a single thread summary.
	Get(ctx context.Context, threadID string) (*domain.Thread, error)

	// GetState returns the full execution state of a thread. Expensive.
	GetState(ctx context.Context, threadID string) (*domain.ThreadState, error)

	// UpdateState writes values to a thread as if produced by AsNode.
	UpdateState(ctx context.Context, threadID string, update StateUpdate) error

	// CreateRun schedules a run and returns its handle.
	CreateRun(ctx context.Context, threadID string, req RunRequest) (*domain.Run, error)

	// StreamRun schedules a run and streams its events. The channel is
	// closed when the run's stream ends or ctx is done.
	StreamRun(ctx context.Context, threadID string, req RunRequest) (<-chan StreamResult, error)
}

// SearchRequest is a paginated thread listing query.
type SearchRequest struct {
	Offset   int                 `json:"offset"`
	Limit    int                 `json:"limit"`
	Status   domain.ThreadStatus `json:"status,omitempty"`
	Metadata map[string]any      `json:"metadata,omitempty"`
}

// StateUpdate is the body of an update-state call. A nil Values is sent as
// JSON null.
type StateUpdate struct {
	Values json.RawMessage `json:"values"`
	AsNode string          `json:"as_node,omitempty"`
}

// Command resumes an interrupted run.
type Command struct {
	Resume []domain.HumanResponse `json:"resume"`
}

// RunRequest starts a run on a thread.
type RunRequest struct {
	AssistantID string         `json:"assistant_id"`
	Command     *Command       `json:"command,omitempty"`
	Config      *RunConfig     `json:"config,omitempty"`
	StreamMode  []string       `json:"stream_mode,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RunConfig is the per-run configuration passed to the workflow.
type RunConfig struct {
	Configurable map[string]any `json:"configurable,omitempty"`
}

// StreamResult wraps an event or error from streaming.
type StreamResult struct {
	Event *domain.StreamEvent
	Err   error
}
