package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type requestLogKey struct{}

// requestLog collects what handlers learn about a request: the inbox and
// thread it addressed, an error, and free-form fields.
type requestLog struct {
	mu       sync.Mutex
	inboxID  string
	threadID string
	err      string
	fields   map[string]string
}

func (l *requestLog) attrs() []slog.Attr {
	l.mu.Lock()
	defer l.mu.Unlock()

	var attrs []slog.Attr
	if l.inboxID != "" {
		attrs = append(attrs, slog.String("inbox", l.inboxID))
	}
	if l.threadID != "" {
		attrs = append(attrs, slog.String("thread_id", l.threadID))
	}
	if l.err != "" {
		attrs = append(attrs, slog.String("error", l.err))
	}
	for k, v := range l.fields {
		attrs = append(attrs, slog.String(k, v))
	}
	return attrs
}

func logFrom(ctx context.Context) *requestLog {
	l, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return l
}

// LoggingMiddleware emits one "request completed" line per request, at
// error level for 5xx and warn for 4xx. The "request started" line is debug
// only. Streamed responses are marked with stream=true and their duration
// covers the whole stream.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := GetRequestID(r.Context())

			rl := &requestLog{fields: make(map[string]string)}
			ctx := context.WithValue(r.Context(), requestLogKey{}, rl)
			wrapped := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			logger.Debug("request started",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
			}
			if wrapped.streaming {
				attrs = append(attrs, slog.Bool("stream", true))
			}
			attrs = append(attrs, rl.attrs()...)

			logger.LogAttrs(ctx, levelFor(wrapped.statusCode), "request completed", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// loggingResponseWriter captures the status code and whether the response
// is an event stream.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	streaming   bool
}

func (rw *loggingResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.statusCode = code
		rw.streaming = strings.HasPrefix(rw.Header().Get("Content-Type"), "text/event-stream")
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggingResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps SSE working through the wrapper.
func (rw *loggingResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// SetInbox records the inbox a request addressed.
func SetInbox(ctx context.Context, inboxID string) {
	if l := logFrom(ctx); l != nil {
		l.mu.Lock()
		l.inboxID = inboxID
		l.mu.Unlock()
	}
}

// SetThread records the thread a request addressed.
func SetThread(ctx context.Context, threadID string) {
	if l := logFrom(ctx); l != nil {
		l.mu.Lock()
		l.threadID = threadID
		l.mu.Unlock()
	}
}

// AddLogField attaches a key/value to the request log. Empty values are
// dropped. No-op outside LoggingMiddleware.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if l := logFrom(ctx); l != nil {
		l.mu.Lock()
		l.fields[key] = value
		l.mu.Unlock()
	}
}

// AddError records err on the request log. The last error wins.
func AddError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if l := logFrom(ctx); l != nil {
		l.mu.Lock()
		l.err = err.Error()
		l.mu.Unlock()
	}
}
