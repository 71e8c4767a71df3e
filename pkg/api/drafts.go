package api

import (
	"errors"
	"net/http"

	"github.com/algomatic/statement-builder/internal/redisbus"
	"github.com/algomatic/statement-builder/internal/repository"
)

type draftListResponse struct {
	Drafts []repository.Draft `json:"drafts"`
	Total  int                `json:"total"`
}

type draftResponse struct {
	DraftID string `json:"draft_id"`
	Label   string `json:"label"`
}

// HandleSaveDraft stores the session's statement, complete or not. The
// first save creates the draft; later saves overwrite it.
func (s *Server) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	if s.Drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "drafts are not configured")
		return
	}

	id := r.PathValue("session_id")
	st, info, err := s.Sessions.Statement(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	d := &repository.Draft{
		ID:          info.DraftID,
		Account:     info.Account,
		Label:       st.Label,
		Statement:   st,
		StatementID: info.StatementID,
	}
	if err := s.Drafts.SaveDraft(r.Context(), d); err != nil {
		s.Logger.Error("Failed to save draft", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save draft")
		return
	}
	if _, err := s.Sessions.Attach(id, "", d.ID); err != nil {
		writeError(w, http.StatusNotFound, "session closed while saving")
		return
	}

	s.publish(r.Context(), redisbus.EventDraftSaved, map[string]any{
		"draft_id":   d.ID,
		"account":    d.Account,
		"session_id": id,
	})
	writeJSON(w, http.StatusOK, draftResponse{DraftID: d.ID, Label: d.Label})
}

// HandleListDrafts returns an account's drafts, most recent first.
func (s *Server) HandleListDrafts(w http.ResponseWriter, r *http.Request) {
	if s.Drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "drafts are not configured")
		return
	}
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	drafts, err := s.Drafts.ListDrafts(r.Context(), account)
	if err != nil {
		s.Logger.Error("Failed to list drafts", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list drafts")
		return
	}
	if drafts == nil {
		drafts = []repository.Draft{}
	}
	writeJSON(w, http.StatusOK, draftListResponse{Drafts: drafts, Total: len(drafts)})
}

// HandleDeleteDraft removes a draft.
func (s *Server) HandleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if s.Drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "drafts are not configured")
		return
	}
	err := s.Drafts.DeleteDraft(r.Context(), r.PathValue("draft_id"))
	if errors.Is(err, repository.ErrDraftNotFound) {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
