package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/auth"
	"github.com/psu6810110402/gemini-foundry/internal/export"
	"github.com/psu6810110402/gemini-foundry/internal/filter"
	"github.com/psu6810110402/gemini-foundry/internal/generator"
	"github.com/psu6810110402/gemini-foundry/internal/store"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

type sessionDetail struct {
	Session  *types.Session  `json:"session"`
	Messages []types.Message `json:"messages"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.store.ListSessions(r.Context(), id.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	case http.MethodPost:
		var req struct {
			Title string     `json:"title"`
			Mode  types.Mode `json:"mode"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Mode == "" {
			req.Mode = types.ModeInvestor
		}
		if !req.Mode.Valid() {
			writeError(w, apierr.New(apierr.BadRequest, fmt.Sprintf("invalid mode %q", req.Mode)))
			return
		}
		sess, err := s.store.CreateSession(r.Context(), id.UserID, types.SessionTitle(filter.CleanInput(req.Title)), req.Mode)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	sessionID, tail, ok := splitPath(r.URL.Path, "/api/sessions/")
	if !ok || sessionID == "" {
		http.NotFound(w, r)
		return
	}
	id, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	sess, err := s.ownedSession(r, id, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	switch tail {
	case "":
		s.handleSessionDetail(w, r, sess)
	case "messages":
		s.handleSessionMessages(w, r, sess)
	case "export":
		s.handleSessionExport(w, r, sess)
	default:
		http.NotFound(w, r)
	}
}

// ownedSession loads a session visible to id. Sessions of other users are
// reported as missing unless id is an admin.
func (s *Server) ownedSession(r *http.Request, id auth.Identity, sessionID string) (*types.Session, error) {
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != id.UserID && !id.Admin {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request, sess *types.Session) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.store.GetMessages(r.Context(), sess.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionDetail{Session: sess, Messages: msgs})
	case http.MethodDelete:
		if err := s.store.DeleteSession(r.Context(), sess.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request, sess *types.Session) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.store.GetMessages(r.Context(), sess.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	case http.MethodPost:
		var req struct {
			Role    types.Role `json:"role"`
			Content string     `json:"content"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if !req.Role.Valid() {
			writeError(w, apierr.New(apierr.BadRequest, fmt.Sprintf("invalid role %q", req.Role)))
			return
		}
		if req.Content == "" {
			writeError(w, apierr.New(apierr.BadRequest, "content cannot be empty"))
			return
		}
		msg, err := s.store.InsertMessage(r.Context(), sess.ID, req.Role, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request, sess *types.Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, apierr.Wrap(apierr.BadRequest, err, err.Error()))
		return
	}
	msgs, err := s.store.GetMessages(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	tr := export.Transcript{
		Session:     *sess,
		Persona:     generator.PersonaName(types.Kind(sess.Mode)),
		GeneratedAt: time.Now(),
		Messages:    msgs,
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tr.Filename(format)))
	if err := tr.Write(w, format); err != nil {
		s.logger.Error("export failed", "session", sess.ID, "error", err)
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	summary, err := s.store.UsageSummary(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
