// Package dispatch resumes paused threads with human decisions.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
)

// StreamModeEvents asks the engine for execution events.
const StreamModeEvents = "events"

// IdentityKey is the configurable key carrying the acting identity.
const IdentityKey = "user_id"

// ClientSource provides the engine client of a target.
type ClientSource interface {
	Client(target *domain.Target) (ports.ThreadService, error)
}

// Selection is the inbox and identity a dispatch acts on.
type Selection struct {
	Target   *domain.Target
	Identity string
}

// Options controls how a response is sent.
type Options struct {
	// Stream returns live execution events instead of the scheduled run.
	Stream bool
}

// Result holds either the scheduled run or the event stream of the resume.
// Events is closed when the stream ends. Cancel the context passed to
// SendHumanResponse to abandon it.
type Result struct {
	Run    *domain.Run
	Events <-chan ports.StreamResult
}

// Dispatcher sends human responses to the engine.
type Dispatcher struct {
	clients  ClientSource
	secrets  ports.SecretStore
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSecretStore sets the store runtime secrets are read from.
func WithSecretStore(store ports.SecretStore) Option {
	return func(d *Dispatcher) { d.secrets = store }
}

// WithDefaultNotifier sets the notifier used when the context carries none.
func WithDefaultNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a dispatcher.
func New(clients ClientSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clients: clients,
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/RunLittleTurtle/agent-inbox-sub001/internal/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "dispatch"))
	if d.notifier == nil {
		d.notifier = LogNotifier{Logger: d.logger}
	}
	return d
}

// SendHumanResponse resumes threadID with responses. It triggers exactly one
// run on the engine.
//
// When no workflow can be resolved for the selection or a required runtime
// secret is missing, a Notice is reported and SendHumanResponse returns nil
// without error.
func (d *Dispatcher) SendHumanResponse(ctx context.Context, sel Selection, threadID string, responses []domain.HumanResponse, opts Options) (*Result, error) {
	if sel.Target == nil {
		d.notify(ctx, Notice{
			Code:    domain.ErrorCodeTargetNotConfigured,
			Message: "No inbox is selected. Select an inbox before responding.",
		})
		return nil, nil
	}
	if sel.Target.GraphID == "" {
		d.notify(ctx, Notice{
			Code:    domain.ErrorCodeTargetNotConfigured,
			Message: fmt.Sprintf("Inbox %s has no graph id configured.", sel.Target.ID),
		})
		return nil, nil
	}
	if err := validateResponses(threadID, responses); err != nil {
		return nil, err
	}

	runConfig, missing, err := d.runConfig(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		d.notify(ctx, Notice{
			Code:    domain.ErrorCodeSecretMissing,
			Message: "Missing required secrets: " + strings.Join(missing, ", "),
		})
		return nil, nil
	}

	client, err := d.clients.Client(sel.Target)
	if err != nil {
		return nil, err
	}

	mode := "create"
	if opts.Stream {
		mode = "stream"
	}
	ctx, span := d.tracer.Start(ctx, "dispatch.SendHumanResponse", trace.WithAttributes(
		attribute.String("inbox.id", sel.Target.ID),
		attribute.String("inbox.thread_id", threadID),
		attribute.String("dispatch.mode", mode),
		attribute.Int("dispatch.responses", len(responses)),
	))
	defer span.End()

	req := ports.RunRequest{
		AssistantID: sel.Target.GraphID,
		Command:     &ports.Command{Resume: responses},
		Config:      runConfig,
	}

	d.logger.Info("dispatching human response",
		slog.String("inbox", sel.Target.ID),
		slog.String("thread_id", threadID),
		slog.String("mode", mode),
		slog.Int("responses", len(responses)))

	if opts.Stream {
		req.StreamMode = []string{StreamModeEvents}
		events, err := client.StreamRun(ctx, threadID, req)
		if err != nil {
			return nil, d.fail(span, "resume", threadID, err)
		}
		return &Result{Events: events}, nil
	}

	run, err := client.CreateRun(ctx, threadID, req)
	if err != nil {
		return nil, d.fail(span, "resume", threadID, err)
	}
	return &Result{Run: run}, nil
}

// Ignore ends threadID without resuming it by moving it to the end node.
// A missing selection is reported as a Notice, like SendHumanResponse.
func (d *Dispatcher) Ignore(ctx context.Context, sel Selection, threadID string) error {
	if sel.Target == nil {
		d.notify(ctx, Notice{
			Code:    domain.ErrorCodeTargetNotConfigured,
			Message: "No inbox is selected. Select an inbox before ignoring a thread.",
		})
		return nil
	}
	if threadID == "" {
		return domain.ErrInvalidRequest("thread id is required").WithParam("thread_id")
	}

	client, err := d.clients.Client(sel.Target)
	if err != nil {
		return err
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.Ignore", trace.WithAttributes(
		attribute.String("inbox.id", sel.Target.ID),
		attribute.String("inbox.thread_id", threadID),
	))
	defer span.End()

	d.logger.Info("ignoring thread", slog.String("inbox", sel.Target.ID), slog.String("thread_id", threadID))

	if err := client.UpdateState(ctx, threadID, ports.StateUpdate{AsNode: ports.EndNode}); err != nil {
		return d.fail(span, "ignore", threadID, err)
	}
	return nil
}

// runConfig builds the per-run configuration of sel and lists the required
// secrets the identity has not set.
func (d *Dispatcher) runConfig(ctx context.Context, sel Selection) (*ports.RunConfig, []string, error) {
	configurable := make(map[string]any)

	var secrets map[string]string
	if d.secrets != nil && sel.Identity != "" {
		var err error
		secrets, err = d.secrets.Secrets(ctx, sel.Identity)
		if err != nil {
			return nil, nil, fmt.Errorf("load secrets: %w", err)
		}
	}
	for name, value := range secrets {
		configurable[name] = value
	}

	var missing []string
	for _, name := range sel.Target.RequiredSecrets {
		if secrets[name] == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	if sel.Identity != "" {
		configurable[IdentityKey] = sel.Identity
	}
	if len(configurable) == 0 {
		return nil, missing, nil
	}
	return &ports.RunConfig{Configurable: configurable}, missing, nil
}

func (d *Dispatcher) notify(ctx context.Context, n Notice) {
	if override, ok := notifierFrom(ctx); ok {
		override.Notify(ctx, n)
		return
	}
	d.notifier.Notify(ctx, n)
}

func (d *Dispatcher) fail(span trace.Span, op, threadID string, err error) error {
	d.logger.Error(op+" failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%s thread %s: %w", op, threadID, err)
}

func validateResponses(threadID string, responses []domain.HumanResponse) error {
	if threadID == "" {
		return domain.ErrInvalidRequest("thread id is required").WithParam("thread_id")
	}
	if len(responses) == 0 {
		return domain.ErrInvalidRequest("at least one response is required").WithParam("responses")
	}
	for i, r := range responses {
		if !r.Type.Valid() {
			return domain.ErrInvalidRequest(fmt.Sprintf("responses[%d]: unknown response type %q", i, r.Type)).
				WithParam("responses")
		}
	}
	return nil
}
