// Package inbox lists and refreshes the threads of a remote deployment as
// classified ThreadData.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/classify"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
)

// MaxPageSize is the largest page FetchThreads accepts.
const MaxPageSize = 100

// ClientSource provides the engine client of a target.
type ClientSource interface {
	Client(target *domain.Target) (ports.ThreadService, error)
}

// Query selects a page of threads.
type Query struct {
	Filter   domain.Filter  `json:"filter"`
	Offset   int            `json:"offset"`
	Limit    int            `json:"limit"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the query without contacting the engine.
func (q Query) Validate() error {
	if _, err := domain.ParseFilter(string(q.Filter)); err != nil {
		return err
	}
	if q.Limit <= 0 {
		return domain.ErrInvalidRequest("limit is required and must be positive").WithParam("limit")
	}
	if q.Limit > MaxPageSize {
		return domain.ErrInvalidRequest(fmt.Sprintf("limit %d exceeds the maximum of %d", q.Limit, MaxPageSize)).
			WithCode(domain.ErrorCodePageSizeExceeded).
			WithParam("limit")
	}
	if q.Offset < 0 {
		return domain.ErrInvalidRequest("offset must not be negative").WithParam("offset")
	}
	return nil
}

// Page is one page of classified threads, newest first.
//
// HasMore is true when the engine returned a full page. It is a hint, not a
// count of remaining threads. Query echoes the request so callers issuing
// overlapping fetches can discard stale pages.
type Page struct {
	Threads []domain.ThreadData `json:"threads"`
	HasMore bool                `json:"has_more"`
	Query   Query               `json:"query"`
}

// Service fetches and classifies threads.
type Service struct {
	clients ClientSource
	logger  *slog.Logger
	tracer  trace.Tracer
	loading atomic.Int64
}

// NewService creates a new inbox service.
func NewService(clients ClientSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		clients: clients,
		logger:  logger.With(slog.String("component", "inbox")),
		tracer:  otel.Tracer("github.com/RunLittleTurtle/agent-inbox-sub001/internal/inbox"),
	}
}

// Loading reports whether a fetch is in flight.
func (s *Service) Loading() bool {
	return s.loading.Load() > 0
}

// FetchThreads lists one page of threads of target and classifies them
// concurrently. An engine error fails the whole page; a failure to classify
// one thread only marks that thread as having an invalid schema.
func (s *Service) FetchThreads(ctx context.Context, target *domain.Target, q Query) (*Page, error) {
	if q.Filter == "" {
		q.Filter = domain.FilterAll
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.loading.Add(1)
	defer s.loading.Add(-1)

	ctx, span := s.tracer.Start(ctx, "inbox.FetchThreads", trace.WithAttributes(
		attribute.String("inbox.filter", string(q.Filter)),
		attribute.Int("inbox.offset", q.Offset),
		attribute.Int("inbox.limit", q.Limit),
	))
	defer span.End()

	client, err := s.clients.Client(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	threads, err := client.Search(ctx, ports.SearchRequest{
		Offset:   q.Offset,
		Limit:    q.Limit,
		Status:   q.Filter.RemoteStatus(),
		Metadata: q.Metadata,
	})
	if err != nil {
		s.logger.Error("failed to fetch threads",
			slog.String("inbox", target.ID),
			slog.String("filter", string(q.Filter)),
			slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search threads: %w", err)
	}

	// Interrupted threads never need a human response, so they are dropped
	// before classification can reach for their state.
	candidates := threads
	if q.Filter == domain.FilterHumanResponseNeeded {
		candidates = make([]domain.Thread, 0, len(threads))
		for _, t := range threads {
			if t.Status != domain.ThreadStatusInterrupted {
				candidates = append(candidates, t)
			}
		}
	}

	classifier := classify.New(client, s.logger)
	results := make([]domain.ThreadData, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, thread := range candidates {
		g.Go(func() error {
			results[i] = classifier.Classify(gctx, thread, q.Filter)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Thread.CreatedAt.After(results[j].Thread.CreatedAt)
	})

	span.SetAttributes(attribute.Int("inbox.threads", len(results)))
	s.logger.Debug("fetched threads",
		slog.String("inbox", target.ID),
		slog.String("filter", string(q.Filter)),
		slog.Int("returned", len(threads)),
		slog.Int("listed", len(results)))

	return &Page{
		Threads: results,
		HasMore: len(threads) == q.Limit,
		Query:   q,
	}, nil
}

// FetchSingleThread classifies one thread. It returns nil without error when
// the thread no longer exists.
func (s *Service) FetchSingleThread(ctx context.Context, target *domain.Target, threadID string) (*domain.ThreadData, error) {
	if threadID == "" {
		return nil, domain.ErrInvalidRequest("thread id is required").WithParam("thread_id")
	}

	ctx, span := s.tracer.Start(ctx, "inbox.FetchSingleThread", trace.WithAttributes(
		attribute.String("inbox.thread_id", threadID),
	))
	defer span.End()

	client, err := s.clients.Client(target)
	if err != nil {
		return nil, err
	}

	thread, err := client.Get(ctx, threadID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.logger.Info("thread no longer exists", slog.String("thread_id", threadID))
			return nil, nil
		}
		s.logger.Error("failed to fetch thread",
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	if thread == nil {
		return nil, nil
	}

	data := classify.New(client, s.logger).Classify(ctx, *thread, domain.FilterAll)
	return &data, nil
}
