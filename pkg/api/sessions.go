package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/algomatic/statement-builder/internal/repository"
	"github.com/algomatic/statement-builder/pkg/builder"
	"github.com/algomatic/statement-builder/pkg/indicators"
	"github.com/algomatic/statement-builder/pkg/metrics"
	"github.com/algomatic/statement-builder/pkg/session"
	"github.com/algomatic/statement-builder/pkg/settings"
	"github.com/algomatic/statement-builder/pkg/statement"
	"github.com/algomatic/statement-builder/pkg/submit"
)

type createSessionRequest struct {
	Account     string         `json:"account" validate:"required"`
	Label       string         `json:"label"`
	Side        statement.Side `json:"side" validate:"omitempty,oneof=B S"`
	DraftID     string         `json:"draft_id" validate:"excluded_with=StatementID"`
	StatementID string         `json:"statement_id"`
}

type sessionResponse struct {
	Session            session.Info         `json:"session"`
	Statement          *statement.Statement `json:"statement"`
	Issues             []string             `json:"issues"`
	Submittable        bool                 `json:"submittable"`
	RequiredTimeframes []string             `json:"required_timeframes"`
}

type sessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Total    int            `json:"total"`
}

type outcomeBody struct {
	Kind      string   `json:"kind"`
	Applied   bool     `json:"applied"`
	Reason    string   `json:"reason,omitempty"`
	Persisted []string `json:"persisted,omitempty"`
}

type commandResponse struct {
	Outcome outcomeBody `json:"outcome"`
	sessionResponse
}

type secondariesResponse struct {
	Primary string               `json:"primary"`
	Options []indicators.Option `json:"options"`
}

// errIgnored aborts a session update whose command was not applied.
var errIgnored = errors.New("command ignored")

// HandleCreateSession opens an editing session. With draft_id the draft is
// reopened; with statement_id the submitted statement is fetched from the
// backend and the session submits as an edit of it.
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		stmt    *statement.Statement
		draftID string
	)
	switch {
	case req.DraftID != "":
		if s.Drafts == nil {
			writeError(w, http.StatusServiceUnavailable, "drafts are not configured")
			return
		}
		d, err := s.Drafts.GetDraft(r.Context(), req.DraftID)
		if errors.Is(err, repository.ErrDraftNotFound) {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		if err != nil {
			s.Logger.Error("Failed to load draft", "draft_id", req.DraftID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load draft")
			return
		}
		stmt, draftID = d.Statement, d.ID
		req.StatementID = d.StatementID

	case req.StatementID != "":
		got, err := s.Submitter.GetStatement(r.Context(), req.StatementID)
		if errors.Is(err, submit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "statement not found")
			return
		}
		if err != nil {
			s.Logger.Error("Failed to fetch statement", "statement_id", req.StatementID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to fetch statement")
			return
		}
		stmt = got

	default:
		label := req.Label
		if label == "" {
			label = session.DefaultLabel
		}
		stmt = statement.New(label)
	}
	if req.Side != "" {
		stmt.Side = req.Side
	}

	info := s.Sessions.Start(req.Account, stmt)
	if req.StatementID != "" || draftID != "" {
		info, _ = s.Sessions.Attach(info.ID, req.StatementID, draftID)
	}
	metrics.SessionsOpen.Set(float64(s.Sessions.Count()))

	s.writeSession(w, http.StatusCreated, info.ID)
}

// HandleListSessions returns the open sessions, newest first.
func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	infos := s.Sessions.List(q.Get("account"), limit)
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: infos, Total: len(infos)})
}

// HandleGetSession returns a session with its statement document and the
// reasons it cannot be submitted yet.
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, http.StatusOK, r.PathValue("session_id"))
}

// HandleCloseSession drops a session without submitting it.
func (s *Server) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.Sessions.Close(r.PathValue("session_id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	metrics.SessionsOpen.Set(float64(s.Sessions.Count()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleCommand applies one builder command to the session's statement.
// Persisted defaults are loaded before the edit and written after it; an
// ignored command leaves the statement and its edit count untouched.
func (s *Server) HandleCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	var cmd builder.Command
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid command: %v", err))
		return
	}

	info, err := s.Sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	ctx := r.Context()
	snap, err := settings.Load(ctx, s.Settings, info.Account, s.Builder.Resolver().Catalog().Names())
	if err != nil {
		s.Logger.Error("Failed to load indicator defaults", "account", info.Account, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load indicator defaults")
		return
	}

	var outcome builder.Outcome
	_, err = s.Sessions.Update(id, func(st *statement.Statement) error {
		o, err := s.Builder.Execute(st, cmd, snap)
		outcome = o
		if err != nil {
			return err
		}
		if !o.Applied {
			return errIgnored
		}
		return nil
	})
	switch {
	case errors.Is(err, errIgnored):
		metrics.CommandsApplied.WithLabelValues(string(cmd.Op), metrics.ResultIgnored).Inc()
	case err != nil:
		metrics.CommandsApplied.WithLabelValues(string(cmd.Op), metrics.ResultError).Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		metrics.CommandsApplied.WithLabelValues(string(cmd.Op), metrics.ResultApplied).Inc()
	}

	body := outcomeBody{
		Kind:    outcome.Kind.String(),
		Applied: outcome.Applied,
		Reason:  outcome.Reason,
	}
	for _, p := range outcome.Persist {
		if err := s.Settings.Set(ctx, info.Account, p.Indicator, p.Params); err != nil {
			s.Logger.Warn("Failed to persist indicator defaults",
				"account", info.Account, "indicator", p.Indicator, "error", err,
			)
			continue
		}
		body.Persisted = append(body.Persisted, p.Indicator)
	}

	resp, err := s.buildSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Outcome: body, sessionResponse: *resp})
}

// HandleSecondaries lists the dependent indicators offered for the
// primary input of a condition.
func (s *Server) HandleSecondaries(w http.ResponseWriter, r *http.Request) {
	st, _, err := s.Sessions.Statement(r.PathValue("session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "condition index must be an integer")
		return
	}
	c, err := st.Condition(idx)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if c.Primary == nil {
		writeError(w, http.StatusConflict, "condition has no indicator selected")
		return
	}

	writeJSON(w, http.StatusOK, secondariesResponse{
		Primary: c.Primary.Ident(),
		Options: s.Builder.Linker().CompatibleSecondaries(c.Primary),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) buildSession(id string) (*sessionResponse, error) {
	st, info, err := s.Sessions.Statement(id)
	if err != nil {
		return nil, err
	}
	issues := make([]string, 0)
	for _, e := range st.Issues() {
		issues = append(issues, e.Error())
	}
	return &sessionResponse{
		Session:            info,
		Statement:          st,
		Issues:             issues,
		Submittable:        len(issues) == 0,
		RequiredTimeframes: st.RequiredTimeframes(),
	}, nil
}

func (s *Server) writeSession(w http.ResponseWriter, status int, id string) {
	resp, err := s.buildSession(id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, resp)
}
