// Package api provides the HTTP surface the UI layer talks to.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hession/mentorjournal/internal/chat"
	"github.com/hession/mentorjournal/internal/live"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/metrics"
	"github.com/hession/mentorjournal/internal/orchestrator"
)

// maxRequestBodySize caps JSON request bodies (64KB)
const maxRequestBodySize = 64 << 10

// Options configures the HTTP handler
type Options struct {
	Service        *orchestrator.Service
	Hub            *live.Hub
	Metrics        *metrics.Metrics // optional
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler serves the chat API
type Handler struct {
	svc            *orchestrator.Service
	hub            *live.Hub
	metrics        *metrics.Metrics
	allowedOrigins []string
	logger         *slog.Logger
}

// New creates a handler
func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{
		svc:            opts.Service,
		hub:            opts.Hub,
		metrics:        opts.Metrics,
		allowedOrigins: opts.AllowedOrigins,
		logger:         opts.Logger,
	}
}

// Router builds the chi router with every route mounted
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(CORS(h.allowedOrigins))

	h.RegisterRoutes(r)
	r.Get("/ws/chats/{date}", h.HandleWebSocket)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	return r
}

// RegisterRoutes registers the JSON and SSE routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/today", h.HandleToday)
		r.Get("/mentors", h.HandleMentors)
		r.Get("/mentors/states", h.HandleMentorStates)

		r.Get("/chats", h.HandleListChats)
		r.Post("/chats", h.HandleStartNewChat)
		r.Route("/chats/{date}", func(r chi.Router) {
			r.Get("/", h.HandleChatDetails)
			r.Get("/suggestions", h.HandleSuggestions)
			r.Post("/agents", h.HandleCreateAgentChat)
			r.Post("/messages", h.HandleSendMessage)
			r.Post("/conclude", h.HandleConclude)
		})
	})
}

// requestLogger logs every request with its route pattern and records it
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"elapsed", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, route, status)
		}
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

var errInvalidDate = errors.New("invalid date")

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidDate), errors.Is(err, mentor.ErrUnknownMentor):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrAlreadyExists),
		errors.Is(err, chat.ErrAgentChatExists),
		errors.Is(err, chat.ErrAgentChatActive),
		errors.Is(err, chat.ErrNoActiveAgentChat),
		errors.Is(err, live.ErrBusy),
		errors.Is(err, live.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoJournalSummary):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	Error(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
