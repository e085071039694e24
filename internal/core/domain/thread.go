package domain

import (
	"encoding/json"
	"time"
)

// ThreadStatus is the status of a thread as stored by the remote engine.
type ThreadStatus string

const (
	ThreadStatusIdle        ThreadStatus = "idle"
	ThreadStatusBusy        ThreadStatus = "busy"
	ThreadStatusInterrupted ThreadStatus = "interrupted"
	ThreadStatusError       ThreadStatus = "error"
)

// Valid reports whether s is one of the statuses the engine stores.
func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadStatusIdle, ThreadStatusBusy, ThreadStatusInterrupted, ThreadStatusError:
		return true
	}
	return false
}

// DataStatus is the client-side status of a thread. It extends ThreadStatus
// with the virtual human_response_needed value.
type DataStatus string

const (
	DataStatusIdle                DataStatus = DataStatus(ThreadStatusIdle)
	DataStatusBusy                DataStatus = DataStatus(ThreadStatusBusy)
	DataStatusInterrupted         DataStatus = DataStatus(ThreadStatusInterrupted)
	DataStatusError               DataStatus = DataStatus(ThreadStatusError)
	DataStatusHumanResponseNeeded DataStatus = "human_response_needed"
)

// Filter selects which threads an inbox listing shows.
type Filter string

const (
	FilterAll                 Filter = "all"
	FilterIdle                Filter = Filter(ThreadStatusIdle)
	FilterBusy                Filter = Filter(ThreadStatusBusy)
	FilterInterrupted         Filter = Filter(ThreadStatusInterrupted)
	FilterError               Filter = Filter(ThreadStatusError)
	FilterHumanResponseNeeded Filter = "human_response_needed"
)

// ParseFilter converts a query value into a Filter. An empty value means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterIdle, FilterBusy, FilterInterrupted, FilterError, FilterHumanResponseNeeded:
		return f, nil
	default:
		return "", ErrInvalidRequest("unknown thread filter: " + s).WithParam("filter")
	}
}

// RemoteStatus returns the status constraint to send to the engine, or the
// empty string when the filter has no native equivalent.
func (f Filter) RemoteStatus() ThreadStatus {
	switch f {
	case FilterAll, FilterHumanResponseNeeded, "":
		return ""
	default:
		return ThreadStatus(f)
	}
}

// Thread is one workflow instance on the remote engine. The client never
// mutates or persists it.
type Thread struct {
	ThreadID  string          `json:"thread_id"`
	Status    ThreadStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Values    json.RawMessage `json:"values,omitempty"`
	// Interrupts is keyed by task id. Engines that embed pending interrupts
	// in the thread summary fill it; older deployments leave it empty.
	Interrupts map[string][]InterruptEntry `json:"interrupts,omitempty"`
}

// InterruptEntry is an interrupt as the engine reports it. Value holds the
// workflow-defined payload, either a single object or an array of them.
type InterruptEntry struct {
	Value     json.RawMessage `json:"value"`
	Resumable bool            `json:"resumable,omitempty"`
	NS        []string        `json:"ns,omitempty"`
	When      string          `json:"when,omitempty"`
}

// ThreadState is the full execution state of a thread. Fetching it is
// considerably more expensive than listing threads.
type ThreadState struct {
	Values       json.RawMessage `json:"values,omitempty"`
	Next         []string        `json:"next,omitempty"`
	Tasks        []StateTask     `json:"tasks,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	CheckpointID string          `json:"checkpoint_id,omitempty"`
}

// StateTask is a pending task in a thread state.
type StateTask struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Interrupts []InterruptEntry `json:"interrupts,omitempty"`
}

// ThreadData is the classified view of a thread handed to presentation layers.
//
// Interrupts and InvalidSchema are only set when Status is interrupted.
type ThreadData struct {
	Status        DataStatus  `json:"status"`
	Thread        Thread      `json:"thread"`
	Interrupts    []Interrupt `json:"interrupts,omitempty"`
	InvalidSchema *bool       `json:"invalid_schema,omitempty"`
}

// Run is the handle of a run scheduled on the remote engine.
type Run struct {
	RunID       string         `json:"run_id"`
	ThreadID    string         `json:"thread_id"`
	AssistantID string         `json:"assistant_id"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StreamEvent is one server-sent event of a streamed run.
type StreamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Target is a remote deployment an inbox reads from and resumes against.
type Target struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DeploymentURL   string   `json:"deployment_url"`
	GraphID         string   `json:"graph_id"`
	APIKey          string   `json:"-"`
	RequiredSecrets []string `json:"required_secrets,omitempty"`
}
