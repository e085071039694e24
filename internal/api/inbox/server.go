// Package inbox serves the inbox over HTTP: listing inboxes and threads,
// refreshing a thread, resuming or ignoring it, and managing the runtime
// secrets of the acting identity.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/ports"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/dispatch"
	inboxsvc "github.com/RunLittleTurtle/agent-inbox-sub001/internal/inbox"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/server"
)

// DefaultPageSize is used when a thread listing has no limit parameter.
const DefaultPageSize = 10

// IdentityHeader carries the acting identity of a request.
const IdentityHeader = "X-User-ID"

// Targets resolves inbox ids to targets.
type Targets interface {
	Resolve(id string) (*domain.Target, bool)
	List() []domain.Target
}

// Threads reads classified threads.
type Threads interface {
	FetchThreads(ctx context.Context, target *domain.Target, q inboxsvc.Query) (*inboxsvc.Page, error)
	FetchSingleThread(ctx context.Context, target *domain.Target, threadID string) (*domain.ThreadData, error)
}

// Responder resumes or ends threads.
type Responder interface {
	SendHumanResponse(ctx context.Context, sel dispatch.Selection, threadID string, responses []domain.HumanResponse, opts dispatch.Options) (*dispatch.Result, error)
	Ignore(ctx context.Context, sel dispatch.Selection, threadID string) error
}

type Server struct {
	router    *chi.Mux
	targets   Targets
	threads   Threads
	responder Responder
	secrets   ports.SecretStore
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSecretStore enables the secrets routes.
func WithSecretStore(store ports.SecretStore) Option {
	return func(s *Server) { s.secrets = store }
}

// WithRequestTimeout bounds every non-streaming request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func NewServer(targets Targets, threads Threads, responder Responder, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		targets:   targets,
		threads:   threads,
		responder: responder,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "api"))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(s.timeout))

		r.Get("/api/inboxes", s.handleListInboxes)
		r.Get("/api/inboxes/{inbox_id}/threads", s.handleListThreads)
		r.Get("/api/inboxes/{inbox_id}/threads/{thread_id}", s.handleThread)
		r.Post("/api/inboxes/{inbox_id}/threads/{thread_id}/ignore", s.handleIgnore)

		r.Get("/api/secrets", s.handleListSecrets)
		r.Put("/api/secrets/{name}", s.handleSetSecret)
		r.Delete("/api/secrets/{name}", s.handleDeleteSecret)
	})

	// Timed inside the handler: only non-streaming responses get a deadline.
	s.router.Post("/api/inboxes/{inbox_id}/threads/{thread_id}/respond", s.handleRespond)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type InboxSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DeploymentURL   string   `json:"deployment_url"`
	GraphID         string   `json:"graph_id,omitempty"`
	RequiredSecrets []string `json:"required_secrets,omitempty"`
	Default         bool     `json:"default"`
}

type InboxListResponse struct {
	Inboxes []InboxSummary `json:"inboxes"`
}

func (s *Server) handleListInboxes(w http.ResponseWriter, r *http.Request) {
	var defaultID string
	if t, ok := s.targets.Resolve(""); ok {
		defaultID = t.ID
	}

	resp := InboxListResponse{Inboxes: []InboxSummary{}}
	for _, t := range s.targets.List() {
		resp.Inboxes = append(resp.Inboxes, InboxSummary{
			ID:              t.ID,
			Name:            t.Name,
			DeploymentURL:   t.DeploymentURL,
			GraphID:         t.GraphID,
			RequiredSecrets: t.RequiredSecrets,
			Default:         t.ID == defaultID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	target, ok := s.target(w, r)
	if !ok {
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.threads.FetchThreads(r.Context(), target, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if page.Threads == nil {
		page.Threads = []domain.ThreadData{}
	}
	writeJSON(w, http.StatusOK, page)
}

func parseQuery(r *http.Request) (inboxsvc.Query, error) {
	values := r.URL.Query()
	q := inboxsvc.Query{
		Filter: domain.Filter(values.Get("filter")),
		Limit:  DefaultPageSize,
	}

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, domain.ErrInvalidRequest("limit must be an integer").WithParam("limit")
		}
		q.Limit = n
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, domain.ErrInvalidRequest("offset must be an integer").WithParam("offset")
		}
		q.Offset = n
	}
	return q, nil
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	target, ok := s.target(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	server.SetThread(r.Context(), threadID)

	data, err := s.threads.FetchSingleThread(r.Context(), target, threadID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if data == nil {
		s.writeError(w, r, domain.ErrNotFound("thread not found: "+threadID).WithCode(domain.ErrorCodeThreadNotFound))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

type RespondRequest struct {
	Responses []domain.HumanResponse `json:"responses"`
	Stream    bool                   `json:"stream"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	target, ok := s.target(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	server.SetThread(r.Context(), threadID)

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.ErrInvalidRequest("invalid request body: "+err.Error()))
		return
	}

	ctx := r.Context()
	if !req.Stream && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var notices noticeCollector
	ctx = dispatch.WithNotifier(ctx, &notices)

	sel := dispatch.Selection{Target: target, Identity: identity(r)}
	res, err := s.responder.SendHumanResponse(ctx, sel, threadID, req.Responses, dispatch.Options{Stream: req.Stream})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res == nil {
		s.writeError(w, r, notices.err())
		return
	}
	if res.Events != nil {
		s.stream(w, r, res.Events)
		return
	}
	writeJSON(w, http.StatusOK, res.Run)
}

// stream re-emits engine events as server-sent events until the engine
// closes the stream or the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, events <-chan ports.StreamResult) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	for res := range events {
		if res.Err != nil {
			server.AddError(r.Context(), res.Err)
			data, _ := json.Marshal(errorEnvelope{Error: toAPIError(res.Err)})
			writeEvent(w, "error", data)
			flush()
			return
		}
		data := []byte(res.Event.Data)
		if len(data) == 0 {
			data = []byte("null")
		}
		writeEvent(w, res.Event.Event, data)
		flush()
	}
}

// writeEvent writes one SSE frame. Every line of data gets its own data
// field so multi-line payloads survive re-streaming.
func writeEvent(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range bytes.Split(data, []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", bytes.TrimSuffix(line, []byte("\r")))
	}
	io.WriteString(w, "\n")
}

func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	target, ok := s.target(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	server.SetThread(r.Context(), threadID)

	var notices noticeCollector
	ctx := dispatch.WithNotifier(r.Context(), &notices)

	if err := s.responder.Ignore(ctx, dispatch.Selection{Target: target, Identity: identity(r)}, threadID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(notices) > 0 {
		s.writeError(w, r, notices.err())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"thread_id": threadID, "status": "ignored"})
}

type SecretListResponse struct {
	Secrets []ports.SecretInfo `json:"secrets"`
}

type SetSecretRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	id, ok := s.secretOwner(w, r)
	if !ok {
		return
	}
	infos, err := s.secrets.ListSecrets(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if infos == nil {
		infos = []ports.SecretInfo{}
	}
	writeJSON(w, http.StatusOK, SecretListResponse{Secrets: infos})
}

func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := s.secretOwner(w, r)
	if !ok {
		return
	}
	var req SetSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.ErrInvalidRequest("invalid request body: "+err.Error()))
		return
	}
	if err := s.secrets.SetSecret(r.Context(), id, chi.URLParam(r, "name"), req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := s.secretOwner(w, r)
	if !ok {
		return
	}
	if err := s.secrets.DeleteSecret(r.Context(), id, chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) secretOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.secrets == nil {
		s.writeError(w, r, domain.ErrConfiguration("secret storage is not configured").WithStatusCode(http.StatusServiceUnavailable))
		return "", false
	}
	id := identity(r)
	if id == "" {
		s.writeError(w, r, domain.ErrInvalidRequest(IdentityHeader+" header is required").WithParam(IdentityHeader))
		return "", false
	}
	return id, true
}

// target resolves the inbox_id route parameter, writing a 404 when it names
// no configured inbox.
func (s *Server) target(w http.ResponseWriter, r *http.Request) (*domain.Target, bool) {
	id := chi.URLParam(r, "inbox_id")
	server.SetInbox(r.Context(), id)

	t, ok := s.targets.Resolve(id)
	if !ok {
		s.writeError(w, r, domain.ErrNotFound("inbox not found: "+id).WithCode(domain.ErrorCodeTargetNotConfigured))
		return nil, false
	}
	return t, true
}

func identity(r *http.Request) string {
	return r.Header.Get(IdentityHeader)
}

// noticeCollector keeps the notices of one request.
type noticeCollector []dispatch.Notice

func (c *noticeCollector) Notify(_ context.Context, n dispatch.Notice) {
	*c = append(*c, n)
}

func (c noticeCollector) err() *domain.APIError {
	if len(c) == 0 {
		return domain.ErrServer("request was not dispatched")
	}
	n := c[0]
	return domain.ErrConfiguration(n.Message).WithCode(n.Code)
}

type errorEnvelope struct {
	Error *domain.APIError `json:"error"`
}

func toAPIError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrServer("request timed out").WithStatusCode(http.StatusGatewayTimeout)
	}
	return domain.ErrServer(err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	server.AddError(r.Context(), err)
	if apiErr.HTTPStatusCode() >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, apiErr.HTTPStatusCode(), errorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
