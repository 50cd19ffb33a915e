package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// handleRegister handles POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.allowAttempt(w, r) {
		return
	}

	var creds models.Credentials
	if !DecodeJSON(w, r, &creds) {
		return
	}

	user, session, err := s.app.AuthService.Register(r.Context(), creds)
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			WriteError(w, http.StatusConflict, "Username already exists")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	if !s.setSessionCookie(w, r, session) {
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// handleLogin handles POST /api/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.allowAttempt(w, r) {
		return
	}

	var creds models.Credentials
	if !DecodeJSON(w, r, &creds) {
		return
	}
	if creds.Username == "" || creds.Password == "" {
		WriteError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, session, err := s.app.AuthService.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			WriteError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	if !s.setSessionCookie(w, r, session) {
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// handleLogout handles POST /api/logout. It always succeeds and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if uc := common.UserContextFromContext(r.Context()); uc != nil {
		if err := s.app.AuthService.Logout(r.Context(), uc.SessionID); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", uc.UserID).Msg("Failed to delete session")
		}
	}

	http.SetCookie(w, s.sessionCookie("", time.Unix(0, 0), -1))
	w.WriteHeader(http.StatusOK)
}

// handleUser handles GET /api/user.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	uc := common.UserContextFromContext(r.Context())
	if uc == nil {
		WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := s.app.AuthService.CurrentUser(r.Context(), uc.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// setSessionCookie signs the session into the response cookie. Returns false
// after writing 500 when signing fails.
func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, session *models.Session) bool {
	token, err := s.app.AuthService.IssueToken(session)
	if err != nil {
		s.writeServiceError(w, r, err)
		return false
	}
	// Cookie lifetime follows the session TTL.
	lifetime := session.ExpiresAt.Sub(session.CreatedAt)
	maxAge := int(lifetime.Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, s.sessionCookie(token, time.Now().Add(lifetime), maxAge))
	return true
}

func (s *Server) sessionCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.app.Config.Auth.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.app.Config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}
