package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
)

// fakeEngine is an in-memory ThreadService.
type fakeEngine struct {
	mu        sync.Mutex
	threads   []domain.Thread
	states    map[string]*domain.ThreadState
	searchErr error
	stateErr  error
	getErr    error

	searches   atomic.Int32
	stateCalls atomic.Int32
	lastSearch ports.SearchRequest
}

func (f *fakeEngine) Search(ctx context.Context, req ports.SearchRequest) ([]domain.Thread, error) {
	f.searches.Add(1)
	f.mu.Lock()
	f.lastSearch = req
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	var matched []domain.Thread
	for _, th := range f.threads {
		if req.Status == "" || th.Status == req.Status {
			matched = append(matched, th)
		}
	}
	if req.Offset >= len(matched) {
		return nil, nil
	}
	end := min(req.Offset+req.Limit, len(matched))
	return matched[req.Offset:end], nil
}

func (f *fakeEngine) Get(ctx context.Context, id string) (*domain.Thread, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, th := range f.threads {
		if th.ThreadID == id {
			return &th, nil
		}
	}
	return nil, domain.ErrNotFound(fmt.Sprintf("thread %s not found", id))
}

func (f *fakeEngine) GetState(ctx context.Context, id string) (*domain.ThreadState, error) {
	f.stateCalls.Add(1)
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if s, ok := f.states[id]; ok {
		return s, nil
	}
	return &domain.ThreadState{}, nil
}

func (f *fakeEngine) UpdateState(ctx context.Context, id string, update ports.StateUpdate) error {
	return nil
}

func (f *fakeEngine) CreateRun(ctx context.Context, id string, req ports.RunRequest) (*domain.Run, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEngine) StreamRun(ctx context.Context, id string, req ports.RunRequest) (<-chan ports.StreamResult, error) {
	return nil, errors.New("not implemented")
}

type staticClients struct{ engine ports.ThreadService }

func (s staticClients) Client(target *domain.Target) (ports.ThreadService, error) {
	if target == nil {
		return nil, domain.ErrConfiguration("no inbox selected")
	}
	return s.engine, nil
}

var (
	testTarget = &domain.Target{ID: "support", DeploymentURL: "http://localhost:2024", GraphID: "agent"}
	baseTime   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

const bookingInterrupt = `{"type":"booking_approval","booking_details":{"date":"2025-01-01"},"message":"Approve booking"}`

func thread(id string, status domain.ThreadStatus, age time.Duration) domain.Thread {
	return domain.Thread{ThreadID: id, Status: status, CreatedAt: baseTime.Add(-age)}
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     Query
		wantParam string
		wantCode  domain.ErrorCode
	}{
		{"valid", Query{Filter: domain.FilterAll, Limit: 10}, "", ""},
		{"max page", Query{Filter: domain.FilterIdle, Limit: MaxPageSize}, "", ""},
		{"zero limit", Query{Filter: domain.FilterAll}, "limit", ""},
		{"over max", Query{Filter: domain.FilterAll, Limit: MaxPageSize + 1}, "limit", domain.ErrorCodePageSizeExceeded},
		{"negative offset", Query{Filter: domain.FilterAll, Limit: 10, Offset: -1}, "offset", ""},
		{"unknown filter", Query{Filter: "archived", Limit: 10}, "filter", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantParam == "" {
				assert.NoError(t, err)
				return
			}
			var apiErr *domain.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, domain.ErrorTypeInvalidRequest, apiErr.Type)
			assert.Equal(t, tt.wantParam, apiErr.Param)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestFetchThreads_RejectsOversizedPageWithoutRemoteCall(t *testing.T) {
	engine := &fakeEngine{}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Filter: domain.FilterAll, Limit: 101})

	require.Error(t, err)
	assert.Nil(t, page)
	assert.Zero(t, engine.searches.Load())
}

func TestFetchThreads_SortsNewestFirst(t *testing.T) {
	engine := &fakeEngine{threads: []domain.Thread{
		thread("old", domain.ThreadStatusIdle, 3*time.Hour),
		thread("new", domain.ThreadStatusBusy, time.Minute),
		thread("mid", domain.ThreadStatusError, time.Hour),
	}}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Limit: 10})
	require.NoError(t, err)

	ids := make([]string, len(page.Threads))
	for i, td := range page.Threads {
		ids[i] = td.Thread.ThreadID
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
	assert.False(t, page.HasMore)
	assert.Equal(t, domain.FilterAll, page.Query.Filter)
}

func TestFetchThreads_PassesRemoteQuery(t *testing.T) {
	engine := &fakeEngine{}
	svc := NewService(staticClients{engine}, nil)

	tests := []struct {
		filter     domain.Filter
		wantStatus domain.ThreadStatus
	}{
		{domain.FilterAll, ""},
		{domain.FilterInterrupted, "interrupted"},
		{domain.FilterHumanResponseNeeded, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			_, err := svc.FetchThreads(context.Background(), testTarget, Query{
				Filter:   tt.filter,
				Offset:   20,
				Limit:    10,
				Metadata: map[string]any{"graph_id": "agent"},
			})
			require.NoError(t, err)

			engine.mu.Lock()
			got := engine.lastSearch
			engine.mu.Unlock()
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, 20, got.Offset)
			assert.Equal(t, 10, got.Limit)
			assert.Equal(t, "agent", got.Metadata["graph_id"])
		})
	}
}

func TestFetchThreads_HasMoreOnFullPage(t *testing.T) {
	var threads []domain.Thread
	for i := range 5 {
		threads = append(threads, thread(fmt.Sprintf("t-%d", i), domain.ThreadStatusIdle, time.Duration(i)*time.Minute))
	}
	svc := NewService(staticClients{&fakeEngine{threads: threads}}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Limit: 5})
	require.NoError(t, err)
	assert.True(t, page.HasMore)

	page, err = svc.FetchThreads(context.Background(), testTarget, Query{Offset: 3, Limit: 5})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Threads, 2)
}

func TestFetchThreads_HumanResponseNeeded(t *testing.T) {
	interrupted := thread("waiting", domain.ThreadStatusInterrupted, time.Minute)
	interrupted.Interrupts = map[string][]domain.InterruptEntry{
		"task": {{Value: json.RawMessage(bookingInterrupt)}},
	}
	engine := &fakeEngine{threads: []domain.Thread{
		interrupted,
		thread("done", domain.ThreadStatusIdle, time.Hour),
		thread("failed", domain.ThreadStatusError, 2*time.Hour),
	}}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Filter: domain.FilterHumanResponseNeeded, Limit: 10})
	require.NoError(t, err)

	require.Len(t, page.Threads, 2)
	for _, td := range page.Threads {
		assert.Equal(t, domain.DataStatusHumanResponseNeeded, td.Status)
		assert.Nil(t, td.Interrupts)
	}
	assert.Equal(t, "done", page.Threads[0].Thread.ThreadID)
}

func TestFetchThreads_HumanResponseNeededSkipsStateLookups(t *testing.T) {
	// No embedded interrupts, so classifying this thread would fetch its state.
	engine := &fakeEngine{threads: []domain.Thread{
		thread("waiting", domain.ThreadStatusInterrupted, time.Minute),
		thread("done", domain.ThreadStatusIdle, time.Hour),
	}}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Filter: domain.FilterHumanResponseNeeded, Limit: 2})
	require.NoError(t, err)

	require.Len(t, page.Threads, 1)
	assert.Equal(t, "done", page.Threads[0].Thread.ThreadID)
	assert.True(t, page.HasMore)
	assert.Zero(t, engine.stateCalls.Load())
}

func TestFetchThreads_ClassifiesInterrupted(t *testing.T) {
	engine := &fakeEngine{
		threads: []domain.Thread{
			thread("embedded", domain.ThreadStatusInterrupted, time.Minute),
			thread("escalated", domain.ThreadStatusInterrupted, time.Hour),
		},
		states: map[string]*domain.ThreadState{
			"escalated": {Tasks: []domain.StateTask{{
				ID:         "task",
				Interrupts: []domain.InterruptEntry{{Value: json.RawMessage(bookingInterrupt)}},
			}}},
		},
	}
	engine.threads[0].Interrupts = map[string][]domain.InterruptEntry{
		"task": {{Value: json.RawMessage(bookingInterrupt)}},
	}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Filter: domain.FilterInterrupted, Limit: 10})
	require.NoError(t, err)

	require.Len(t, page.Threads, 2)
	for _, td := range page.Threads {
		assert.Equal(t, domain.DataStatusInterrupted, td.Status)
		require.Len(t, td.Interrupts, 1)
		assert.Equal(t, "calendar_booking_approval", td.Interrupts[0].ActionRequest.Action)
		require.NotNil(t, td.InvalidSchema)
		assert.False(t, *td.InvalidSchema)
	}
	assert.EqualValues(t, 1, engine.stateCalls.Load())
}

func TestFetchThreads_StateFailureMarksOnlyThatThread(t *testing.T) {
	engine := &fakeEngine{
		threads: []domain.Thread{
			thread("broken", domain.ThreadStatusInterrupted, time.Minute),
			thread("fine", domain.ThreadStatusIdle, time.Hour),
		},
		stateErr: errors.New("connection reset"),
	}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Limit: 10})
	require.NoError(t, err)

	require.Len(t, page.Threads, 2)
	broken := page.Threads[0]
	assert.Equal(t, "broken", broken.Thread.ThreadID)
	assert.Nil(t, broken.Interrupts)
	require.NotNil(t, broken.InvalidSchema)
	assert.True(t, *broken.InvalidSchema)
	assert.Equal(t, domain.DataStatusIdle, page.Threads[1].Status)
}

func TestFetchThreads_SearchFailureFailsPage(t *testing.T) {
	engine := &fakeEngine{searchErr: domain.ErrServer("engine down")}
	svc := NewService(staticClients{engine}, nil)

	page, err := svc.FetchThreads(context.Background(), testTarget, Query{Limit: 10})

	assert.Nil(t, page)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrorTypeServer, apiErr.Type)
	assert.False(t, svc.Loading())
}

func TestFetchThreads_NoTarget(t *testing.T) {
	svc := NewService(staticClients{&fakeEngine{}}, nil)

	_, err := svc.FetchThreads(context.Background(), nil, Query{Limit: 10})
	require.Error(t, err)
}

func TestFetchSingleThread(t *testing.T) {
	interrupted := thread("waiting", domain.ThreadStatusInterrupted, time.Minute)
	interrupted.Interrupts = map[string][]domain.InterruptEntry{
		"task": {{Value: json.RawMessage(bookingInterrupt)}},
	}
	engine := &fakeEngine{threads: []domain.Thread{interrupted, thread("idle", domain.ThreadStatusIdle, 0)}}
	svc := NewService(staticClients{engine}, nil)

	t.Run("interrupted", func(t *testing.T) {
		td, err := svc.FetchSingleThread(context.Background(), testTarget, "waiting")
		require.NoError(t, err)
		require.NotNil(t, td)
		assert.Equal(t, domain.DataStatusInterrupted, td.Status)
		require.Len(t, td.Interrupts, 1)
		assert.Equal(t, "Approve booking", td.Interrupts[0].Description)
	})

	t.Run("idle keeps its status", func(t *testing.T) {
		td, err := svc.FetchSingleThread(context.Background(), testTarget, "idle")
		require.NoError(t, err)
		require.NotNil(t, td)
		assert.Equal(t, domain.DataStatusIdle, td.Status)
	})

	t.Run("missing thread", func(t *testing.T) {
		td, err := svc.FetchSingleThread(context.Background(), testTarget, "gone")
		require.NoError(t, err)
		assert.Nil(t, td)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := svc.FetchSingleThread(context.Background(), testTarget, "")
		require.Error(t, err)
	})
}

func TestFetchSingleThread_EngineError(t *testing.T) {
	svc := NewService(staticClients{&fakeEngine{getErr: domain.ErrServer("boom")}}, nil)

	td, err := svc.FetchSingleThread(context.Background(), testTarget, "any")
	assert.Nil(t, td)
	assert.Error(t, err)
}
