// Package classify derives the client-side status of a thread and extracts
// its canonical interrupts.
package classify

import (
	"context"
	"log/slog"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/interrupt"
)

// Classifier turns raw threads into ThreadData. It is safe for concurrent use.
type Classifier struct {
	extractor Extractor
	logger    *slog.Logger
}

// New creates a classifier that reads interrupts from the thread summary
// first and only fetches the thread state through states when the summary
// has none.
func New(states StateGetter, logger *slog.Logger) *Classifier {
	return NewWithExtractor(OrElse(SummaryExtractor{}, StateExtractor{States: states}), logger)
}

// NewWithExtractor creates a classifier with a custom extraction strategy.
func NewWithExtractor(extractor Extractor, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		extractor: extractor,
		logger:    logger.With(slog.String("component", "classifier")),
	}
}

// Classify derives the ThreadData of thread as seen under filter. It never
// fails: extraction problems are reported through InvalidSchema.
func (c *Classifier) Classify(ctx context.Context, thread domain.Thread, filter domain.Filter) domain.ThreadData {
	if thread.Status != domain.ThreadStatusInterrupted {
		status := domain.DataStatus(thread.Status)
		if filter == domain.FilterHumanResponseNeeded {
			status = domain.DataStatusHumanResponseNeeded
		}
		return domain.ThreadData{Status: status, Thread: thread}
	}

	payloads, err := c.extractor.Extract(ctx, &thread)
	if err != nil {
		c.logger.Warn("interrupt extraction failed",
			slog.String("thread_id", thread.ThreadID),
			slog.String("error", err.Error()))
		return invalid(thread)
	}
	if len(payloads) == 0 {
		c.logger.Debug("interrupted thread has no interrupts",
			slog.String("thread_id", thread.ThreadID))
		return invalid(thread)
	}

	interrupts := interrupt.ProcessAll(payloads)
	invalidSchema := false
	for _, in := range interrupts {
		if in.ActionRequest.Action == "" {
			invalidSchema = true
			break
		}
	}

	return domain.ThreadData{
		Status:        domain.DataStatusInterrupted,
		Thread:        thread,
		Interrupts:    interrupts,
		InvalidSchema: &invalidSchema,
	}
}

func invalid(thread domain.Thread) domain.ThreadData {
	invalidSchema := true
	return domain.ThreadData{
		Status:        domain.DataStatusInterrupted,
		Thread:        thread,
		InvalidSchema: &invalidSchema,
	}
}
