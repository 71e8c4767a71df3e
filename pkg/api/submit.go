package api

import (
	"errors"
	"net/http"

	"github.com/algomatic/statement-builder/internal/redisbus"
	"github.com/algomatic/statement-builder/pkg/metrics"
	"github.com/algomatic/statement-builder/pkg/session"
	"github.com/algomatic/statement-builder/pkg/submit"
)

type submitResponse struct {
	StatementID        string       `json:"statement_id"`
	Kind               string       `json:"kind"`
	TimeframesRequired []string     `json:"timeframes_required"`
	Session            session.Info `json:"session"`
}

// HandleSubmit sends the session's statement to the persistence service:
// a create for a new statement, an edit once it has a statement id. A failed
// submission leaves the session as it was.
func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	st, info, err := s.Sessions.Statement(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if issues := st.Issues(); len(issues) > 0 {
		resp := errorResponse{Error: "statement is not ready for submission"}
		for _, e := range issues {
			resp.Issues = append(resp.Issues, e.Error())
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	ctx := r.Context()
	kind, eventType := "create", redisbus.EventStatementSubmitted
	var res *submit.Result
	if info.StatementID == "" {
		res, err = s.Submitter.CreateStatement(ctx, info.Account, st)
	} else {
		kind, eventType = "edit", redisbus.EventStatementEdited
		res, err = s.Submitter.EditStatement(ctx, info.StatementID, st)
	}
	if err != nil {
		metrics.Submissions.WithLabelValues(kind, metrics.ResultError).Inc()
		s.Logger.Error("Statement submission failed",
			"session_id", id, "kind", kind, "error", err,
		)
		switch {
		case errors.Is(err, submit.ErrRejected):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, submit.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	metrics.Submissions.WithLabelValues(kind, metrics.ResultOK).Inc()

	timeframes := res.TimeframesRequired
	if len(timeframes) == 0 {
		timeframes = st.RequiredTimeframes()
	}
	info, err = s.Sessions.MarkSubmitted(id, res.ID, timeframes)
	if err != nil {
		writeError(w, http.StatusNotFound, "session closed during submission")
		return
	}

	s.publish(ctx, eventType, map[string]any{
		"statement_id":        res.ID,
		"account":             info.Account,
		"session_id":          id,
		"timeframes_required": timeframes,
	})

	writeJSON(w, http.StatusOK, submitResponse{
		StatementID:        res.ID,
		Kind:               kind,
		TimeframesRequired: timeframes,
		Session:            info,
	})
}
