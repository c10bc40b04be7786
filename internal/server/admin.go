package server

import (
	"net/http"
	"strconv"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/auth"
	"github.com/psu6810110402/gemini-foundry/internal/filter"
)

const defaultAdminSessionLimit = 100

type userAction struct {
	UserID string `json:"userId"`
}

type sessionAction struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	profiles, err := s.store.ListProfiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleAdminBan(banned bool) func(http.ResponseWriter, *http.Request, auth.Identity) {
	return func(w http.ResponseWriter, r *http.Request, id auth.Identity) {
		req, ok := decodeUserAction(w, r)
		if !ok {
			return
		}
		if banned && req.UserID == id.UserID {
			writeError(w, apierr.New(apierr.BadRequest, "You cannot ban yourself"))
			return
		}
		if err := s.store.SetBanned(r.Context(), req.UserID, banned); err != nil {
			writeError(w, err)
			return
		}
		s.logger.Info("admin updated ban", "admin", id.UserID, "user", req.UserID, "banned", banned)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	req, ok := decodeUserAction(w, r)
	if !ok {
		return
	}
	if req.UserID == id.UserID {
		writeError(w, apierr.New(apierr.BadRequest, "You cannot delete yourself"))
		return
	}
	if err := s.store.DeleteProfile(r.Context(), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	s.limits.Forget("user:" + req.UserID)
	s.logger.Info("admin deleted user", "admin", id.UserID, "user", req.UserID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := defaultAdminSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apierr.New(apierr.BadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	sessions, err := s.store.ListAllSessions(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleAdminDeleteSession(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sessionAction
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !filter.ValidUUID(req.SessionID) {
		writeError(w, apierr.New(apierr.BadRequest, "Invalid sessionId"))
		return
	}
	if err := s.store.DeleteSession(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("admin deleted session", "admin", id.UserID, "session", req.SessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminUsage(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summary, err := s.store.UsageSummary(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func decodeUserAction(w http.ResponseWriter, r *http.Request) (userAction, bool) {
	var req userAction
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return req, false
	}
	if !filter.ValidUUID(req.UserID) {
		writeError(w, apierr.New(apierr.BadRequest, "Invalid userId"))
		return req, false
	}
	return req, true
}
