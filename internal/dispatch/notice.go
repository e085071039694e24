package dispatch

import (
	"context"
	"log/slog"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
)

// Notice is a user-facing report of a dispatch that was not attempted.
type Notice struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Notifier receives notices. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices to a logger at warn level.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	l.Logger.WarnContext(ctx, n.Message, slog.String("code", string(n.Code)))
}

type notifierKey struct{}

// WithNotifier returns a context whose notices go to n instead of the
// dispatcher's notifier. Request handlers use it to report a notice on the
// request that caused it.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

func notifierFrom(ctx context.Context) (Notifier, bool) {
	n, ok := ctx.Value(notifierKey{}).(Notifier)
	return n, ok
}
