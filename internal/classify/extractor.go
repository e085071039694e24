package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/interrupt"
)

// Extractor finds the raw interrupt payloads of an interrupted thread.
type Extractor interface {
	Extract(ctx context.Context, thread *domain.Thread) ([]json.RawMessage, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, thread *domain.Thread) ([]json.RawMessage, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, thread *domain.Thread) ([]json.RawMessage, error) {
	return f(ctx, thread)
}

// SummaryExtractor reads the interrupts embedded in a thread summary. It
// never touches the network.
type SummaryExtractor struct{}

// Extract returns the payloads of thread.Interrupts ordered by task id.
func (SummaryExtractor) Extract(_ context.Context, thread *domain.Thread) ([]json.RawMessage, error) {
	if len(thread.Interrupts) == 0 {
		return nil, nil
	}

	taskIDs := make([]string, 0, len(thread.Interrupts))
	for id := range thread.Interrupts {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	var out []json.RawMessage
	for _, id := range taskIDs {
		out = append(out, interrupt.Flatten(thread.Interrupts[id])...)
	}
	return out, nil
}

// StateGetter fetches the execution state of a thread.
type StateGetter interface {
	GetState(ctx context.Context, threadID string) (*domain.ThreadState, error)
}

// StateExtractor fetches the full thread state and reads the interrupts of
// its pending tasks.
type StateExtractor struct {
	States StateGetter
}

// Extract returns the payloads of every task interrupt in task order.
func (e StateExtractor) Extract(ctx context.Context, thread *domain.Thread) ([]json.RawMessage, error) {
	state, err := e.States.GetState(ctx, thread.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("get state of thread %s: %w", thread.ThreadID, err)
	}
	if state == nil {
		return nil, nil
	}

	var out []json.RawMessage
	for _, task := range state.Tasks {
		out = append(out, interrupt.Flatten(task.Interrupts)...)
	}
	return out, nil
}

// OrElse tries extractors in order and returns the first non-empty result.
// A later extractor only runs when every earlier one found nothing or
// failed. If all of them come up empty, the last error (if any) is returned.
func OrElse(extractors ...Extractor) Extractor {
	return ExtractorFunc(func(ctx context.Context, thread *domain.Thread) ([]json.RawMessage, error) {
		var lastErr error
		for _, e := range extractors {
			payloads, err := e.Extract(ctx, thread)
			if err != nil {
				lastErr = err
				continue
			}
			if len(payloads) > 0 {
				return payloads, nil
			}
		}
		return nil, lastErr
	})
}
