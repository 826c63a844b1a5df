package handler

import (
	"encoding/json"
	"net/http"

	"github.com/akamquiz/akamquiz/internal/model"
)

const sessionCookieName = "session"

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type userView struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	DisplayName  string  `json:"display_name"`
	TestCount    int     `json:"test_count"`
	AverageScore float64 `json:"average_score"`
}

func viewOfUser(u *model.User) userView {
	return userView{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		TestCount:    u.TestCount,
		AverageScore: u.AverageScore,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	user, token, err := h.auth.Register(req.Username, req.Email, req.DisplayName, req.Password)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	h.setSessionCookie(w, token.Token)
	respondJSON(w, http.StatusCreated, viewOfUser(user))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	user, token, err := h.auth.Login(req.Identifier, req.Password)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	h.setSessionCookie(w, token.Token)
	respondJSON(w, http.StatusOK, viewOfUser(user))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		// Resolve the owner before revoking: the route is public, so the
		// request context carries no user, and the token is the only way to
		// find whose in-progress session to abandon.
		if userID, ok := h.auth.UserIDForToken(cookie.Value); ok {
			h.sessions.Drop(userID)
		}
		_ = h.auth.Logout(cookie.Value)
	}
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"signed_out": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, viewOfUser(user))
}

// requireAuth validates the session cookie, refreshes the inactivity window,
// and puts the user on the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			h.respondFault(w, r, model.ErrInvalidCredentials)
			return
		}
		user, err := h.auth.Validate(cookie.Value)
		if err != nil {
			h.clearSessionCookie(w)
			h.respondFault(w, r, err)
			return
		}
		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
}
