package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kisscoffee/site/internal/auth"
	"kisscoffee/site/internal/export"
	"kisscoffee/site/internal/rbac"
	"kisscoffee/site/internal/search"
	"kisscoffee/site/internal/settings"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ping(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.FetchSettings(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleMenuSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}
	category := strings.TrimSpace(query.Get("category"))
	if category != "" && !settings.IsCategory(category) {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "unknown category", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.SearchMenu(search.Query{
		Text:     strings.TrimSpace(query.Get("q")),
		Category: category,
		Limit:    limit,
	}))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"role":          session.Role,
		"expiresAt":     session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	session := auth.Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	session.RefreshToken = body.RefreshToken
	if err := s.service.Logout(r.Context(), session); err != nil {
		s.logger.Warn("logout failed", "user_id", session.UserID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireAction(w, r, rbac.ActionEdit)
	if !ok {
		return
	}
	var patch settings.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.SaveSettings(r.Context(), patch, session.UserName); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	doc, err := s.service.FetchSettings(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": patch.Keys(), "settings": doc})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAction(w, r, rbac.ActionEdit); !ok {
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}
	revisions, err := s.service.History(limit)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})
}

func (s *HTTPServer) handleRevision(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAction(w, r, rbac.ActionEdit); !ok {
		return
	}
	hash := chi.URLParam(r, "hash")
	doc, err := s.service.Revision(hash)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": hash, "settings": doc})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAction(w, r, rbac.ActionExport); !ok {
		return
	}
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	publish, _ := strconv.ParseBool(r.URL.Query().Get("publish"))

	res, err := s.service.ExportMenu(r.Context(), export.Request{Format: format, Publish: publish}, nil)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if publish {
		writeJSON(w, http.StatusOK, map[string]any{
			"filename": res.Filename,
			"mimeType": res.MimeType,
			"url":      res.URL,
		})
		return
	}
	writeFile(w, res.Filename, res.MimeType, res.Data)
}

func sessionPayload(session auth.Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}
