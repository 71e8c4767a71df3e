package api

import (
	"errors"
	"net/http"

	"github.com/algomatic/statement-builder/pkg/optimize"
)

type optimizeRequest struct {
	Groups []optimize.Group `json:"groups" validate:"required,min=1,dive"`
}

type optimizeResponse struct {
	Groups       []optimize.Group `json:"groups"`
	Combinations int              `json:"combinations"`
}

type candidatesResponse struct {
	Candidates []optimize.Candidate `json:"candidates"`
	Total      int                  `json:"total"`
}

// HandleCandidates lists the numeric parameters that can join an
// optimization group.
func (s *Server) HandleCandidates(w http.ResponseWriter, r *http.Request) {
	st, _, err := s.Sessions.Statement(r.PathValue("session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	candidates := optimize.Candidates(st)
	if candidates == nil {
		candidates = []optimize.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidatesResponse{Candidates: candidates, Total: len(candidates)})
}

// HandleOptimize checks a set of optimization groups against the session's
// statement. A parameter placed in two groups is a conflict; the message
// names the parameter and the group that already holds it.
func (s *Server) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	st, _, err := s.Sessions.Statement(r.PathValue("session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req optimizeRequest
	if err := s.decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan := optimize.NewPlan()
	if s.MaxCombinations > 0 {
		plan.MaxCombinations = s.MaxCombinations
	}
	for _, g := range req.Groups {
		err := plan.Pin(st, g.Name, g.Range, g.Parameters...)
		switch {
		case errors.Is(err, optimize.ErrParameterReuse):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, optimizeResponse{Groups: plan.Groups(), Combinations: plan.Size()})
}
