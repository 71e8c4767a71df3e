// Package api provides HTTP handlers that drive the statement builder.
//
// Endpoints:
//
//	GET    /api/v1/status                                   - Service health check
//	GET    /api/v1/indicators                               - Indicator catalog
//	POST   /api/v1/sessions                                 - Open a session (fresh, from a draft, or from a submitted statement)
//	GET    /api/v1/sessions                                 - List open sessions
//	GET    /api/v1/sessions/{session_id}                    - Session detail and statement document
//	DELETE /api/v1/sessions/{session_id}                    - Close a session
//	POST   /api/v1/sessions/{session_id}/commands           - Apply a builder command
//	GET    /api/v1/sessions/{session_id}/conditions/{index}/secondaries - Dependent indicator options
//	POST   /api/v1/sessions/{session_id}/submit             - Create or edit the statement on the backend
//	POST   /api/v1/sessions/{session_id}/draft              - Save the statement as a draft
//	GET    /api/v1/sessions/{session_id}/optimize/candidates - Optimizable parameters
//	POST   /api/v1/sessions/{session_id}/optimize           - Validate optimization groups
//	GET    /api/v1/drafts                                   - List an account's drafts
//	DELETE /api/v1/drafts/{draft_id}                        - Delete a draft
//	GET    /metrics                                         - Prometheus metrics
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/algomatic/statement-builder/internal/redisbus"
	"github.com/algomatic/statement-builder/internal/repository"
	"github.com/algomatic/statement-builder/pkg/builder"
	"github.com/algomatic/statement-builder/pkg/metrics"
	"github.com/algomatic/statement-builder/pkg/session"
	"github.com/algomatic/statement-builder/pkg/settings"
	"github.com/algomatic/statement-builder/pkg/statement"
	"github.com/algomatic/statement-builder/pkg/submit"
)

// Submitter sends statements to the strategy persistence service.
type Submitter interface {
	CreateStatement(ctx context.Context, account string, s *statement.Statement) (*submit.Result, error)
	EditStatement(ctx context.Context, id string, s *statement.Statement) (*submit.Result, error)
	GetStatement(ctx context.Context, id string) (*statement.Statement, error)
}

// DraftStore saves in-progress statements.
type DraftStore interface {
	SaveDraft(ctx context.Context, d *repository.Draft) error
	GetDraft(ctx context.Context, id string) (*repository.Draft, error)
	ListDrafts(ctx context.Context, account string) ([]repository.Draft, error)
	DeleteDraft(ctx context.Context, id string) error
}

// Publisher announces statement lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *redisbus.Event) error
}

// Server holds dependencies for the API handlers. Drafts and Events are
// optional; the draft endpoints answer 503 without a store.
type Server struct {
	Sessions  *session.Tracker
	Builder   *builder.Builder
	Settings  settings.Store
	Submitter Submitter
	Drafts    DraftStore
	Events    Publisher

	BackendConnected bool
	MaxCombinations  int
	Logger           *slog.Logger

	validate *validator.Validate
}

// NewServer creates a new API server. A nil store keeps defaults in memory.
func NewServer(tracker *session.Tracker, b *builder.Builder, store settings.Store, submitter Submitter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = settings.NewMemoryStore()
	}
	return &Server{
		Sessions:  tracker,
		Builder:   b,
		Settings:  store,
		Submitter: submitter,
		Logger:    logger,
		validate:  validator.New(),
	}
}

// RegisterRoutes registers all API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /api/v1/status", s.HandleStatus)
	s.handle(mux, "GET /api/v1/indicators", s.HandleListIndicators)

	s.handle(mux, "POST /api/v1/sessions", s.HandleCreateSession)
	s.handle(mux, "GET /api/v1/sessions", s.HandleListSessions)
	s.handle(mux, "GET /api/v1/sessions/{session_id}", s.HandleGetSession)
	s.handle(mux, "DELETE /api/v1/sessions/{session_id}", s.HandleCloseSession)
	s.handle(mux, "POST /api/v1/sessions/{session_id}/commands", s.HandleCommand)
	s.handle(mux, "GET /api/v1/sessions/{session_id}/conditions/{index}/secondaries", s.HandleSecondaries)
	s.handle(mux, "POST /api/v1/sessions/{session_id}/submit", s.HandleSubmit)
	s.handle(mux, "POST /api/v1/sessions/{session_id}/draft", s.HandleSaveDraft)
	s.handle(mux, "GET /api/v1/sessions/{session_id}/optimize/candidates", s.HandleCandidates)
	s.handle(mux, "POST /api/v1/sessions/{session_id}/optimize", s.HandleOptimize)

	s.handle(mux, "GET /api/v1/drafts", s.HandleListDrafts)
	s.handle(mux, "DELETE /api/v1/drafts/{draft_id}", s.HandleDeleteDraft)

	mux.Handle("GET /metrics", promhttp.Handler())
}

// handle registers h and records its latency under the route pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		metrics.RequestDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

type statusResponse struct {
	Status           string  `json:"status"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Version          string  `json:"version"`
	BackendConnected bool    `json:"backend_connected"`
	OpenSessions     int     `json:"open_sessions"`
	DraftsEnabled    bool    `json:"drafts_enabled"`
}

type indicatorItem struct {
	Name        string           `json:"name"`
	Label       string           `json:"label"`
	Type        string           `json:"type"`
	Defaults    statement.Params `json:"defaults,omitempty"`
	OutputField string           `json:"output_field,omitempty"`
	Aliases     []string         `json:"aliases,omitempty"`
}

type indicatorListResponse struct {
	Indicators []indicatorItem `json:"indicators"`
	Total      int             `json:"total"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandleStatus returns overall service health and readiness.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:           "healthy",
		UptimeSeconds:    s.Sessions.UptimeSeconds(),
		Version:          s.Sessions.Version(),
		BackendConnected: s.BackendConnected,
		OpenSessions:     s.Sessions.Count(),
		DraftsEnabled:    s.Drafts != nil,
	})
}

// HandleListIndicators returns the indicator palette with table defaults.
func (s *Server) HandleListIndicators(w http.ResponseWriter, r *http.Request) {
	entries := s.Builder.Resolver().Catalog().GetAll()
	items := make([]indicatorItem, len(entries))
	for i, e := range entries {
		items[i] = indicatorItem{
			Name:        e.Name,
			Label:       e.Label,
			Type:        string(e.Kind),
			Defaults:    e.Defaults,
			OutputField: e.OutputField,
			Aliases:     e.Aliases,
		}
	}
	writeJSON(w, http.StatusOK, indicatorListResponse{Indicators: items, Total: len(items)})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeRequest decodes a request struct and runs its validate tags.
func (s *Server) decodeRequest(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}

func (s *Server) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, redisbus.NewEvent(eventType, payload)); err != nil {
		s.Logger.Warn("Failed to publish event", "event_type", eventType, "error", err)
	}
}
