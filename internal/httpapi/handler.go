// Package httpapi exposes the user query service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/userlink-enricher/internal/service"
	"github.com/Sternrassler/userlink-enricher/internal/store"
	"github.com/Sternrassler/userlink-enricher/pkg/logging"
	"github.com/Sternrassler/userlink-enricher/pkg/metrics"
	"github.com/Sternrassler/userlink-enricher/pkg/user"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// FailedHeader carries the number of records whose link lookup failed.
const FailedHeader = "X-Enrichment-Failed"

// UserService defines the user operations served by the API.
type UserService interface {
	ListUsers(ctx context.Context) (*service.ListResult, error)
	GetUser(ctx context.Context, id int64) (user.Record, error)
	Health(ctx context.Context) error
}

// Handler serves the user API.
type Handler struct {
	users  UserService
	logger zerolog.Logger
}

// New creates a new Handler.
func New(users UserService) *Handler {
	return &Handler{
		users:  users,
		logger: logging.NewLogger("http"),
	}
}

// Routes returns the router with all API routes registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Method(http.MethodGet, "/health", metrics.Instrument("/health", http.HandlerFunc(h.handleHealth)))
	r.Method(http.MethodGet, "/users", metrics.Instrument("/users", http.HandlerFunc(h.handleListUsers)))
	r.Method(http.MethodGet, "/users/{id}", metrics.Instrument("/users/{id}", http.HandlerFunc(h.handleGetUser)))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// handleHealth reports 503 while the store is unreachable.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Health(r.Context()); err != nil {
		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Health check failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// handleListUsers returns the enriched user batch. Lookup failures are
// reported in the FailedHeader, never as an error status.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	result, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Failed to list users")
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	w.Header().Set(FailedHeader, strconv.Itoa(result.FailedCount()))
	writeJSON(w, http.StatusOK, result.Users)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	rec, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error().
			Err(err).
			Int64("user_id", id).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Failed to get user")
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request served")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
