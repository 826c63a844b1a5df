// Package handler exposes the JSON API: auth, test sessions, stats, ratings
// and contact intake.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/akamquiz/akamquiz/internal/auth"
	"github.com/akamquiz/akamquiz/internal/contact"
	appI18n "github.com/akamquiz/akamquiz/internal/i18n"
	"github.com/akamquiz/akamquiz/internal/model"
	"github.com/akamquiz/akamquiz/internal/session"
	"github.com/akamquiz/akamquiz/internal/stats"
	"github.com/akamquiz/akamquiz/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	auth     *auth.Manager
	sessions *session.Registry
	stats    *stats.Refresher
	contact  *contact.Service

	secureCookies bool
}

// New creates a new Handler.
func New(s *store.Store, a *auth.Manager, reg *session.Registry, ref *stats.Refresher, c *contact.Service, secureCookies bool) *Handler {
	return &Handler{
		store:         s,
		auth:          a,
		sessions:      reg,
		stats:         ref,
		contact:       c,
		secureCookies: secureCookies,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/register", h.handleRegister)
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)
	r.Get("/api/stats", h.handleStats)
	r.Get("/api/languages", h.handleLanguages)
	r.Post("/api/contact", h.handleContact)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/me", h.handleMe)
		r.Post("/api/test/start", h.handleStartTest)
		r.Get("/api/test", h.handleTestState)
		r.Post("/api/test/answer", h.handleAnswer)
		r.Post("/api/test/next", h.handleNext)
		r.Post("/api/test/prev", h.handlePrev)
		r.Post("/api/test/pause", h.handlePause)
		r.Post("/api/test/resume", h.handleResume)
		r.Post("/api/test/finish", h.handleFinish)
		r.Get("/api/results", h.handleResults)
		r.Post("/api/ratings", h.handleAddRating)
		r.Get("/api/contact/stats", h.handleContactStats)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondFault maps the domain fault sentinels onto HTTP statuses with
// localized messages.
func (h *Handler) respondFault(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, model.ErrInvalidSelection):
		respondJSON(w, http.StatusBadRequest, errorResponse{appI18n.T(ctx, "InvalidSelection")})
	case errors.Is(err, model.ErrInsufficientQuestions):
		respondJSON(w, http.StatusBadRequest, errorResponse{appI18n.T(ctx, "InsufficientQuestions")})
	case errors.Is(err, model.ErrNoActiveSession):
		respondJSON(w, http.StatusConflict, errorResponse{appI18n.T(ctx, "NoActiveSession")})
	case errors.Is(err, model.ErrDuplicateIdentity):
		respondJSON(w, http.StatusConflict, errorResponse{appI18n.T(ctx, "DuplicateIdentity")})
	case errors.Is(err, model.ErrInvalidCredentials):
		respondJSON(w, http.StatusUnauthorized, errorResponse{appI18n.T(ctx, "LoginError")})
	case errors.Is(err, model.ErrSessionExpired):
		respondJSON(w, http.StatusUnauthorized, errorResponse{appI18n.T(ctx, "SessionExpired")})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
	}
}

// questionView is a question as delivered to the client: no correct-answer
// index and no explanation until the question is answered.
type questionView struct {
	ID       string   `json:"id"`
	Text     string   `json:"question"`
	Options  []string `json:"options"`
	Subject  string   `json:"subject"`
	Answered bool     `json:"answered"`
	Selected int      `json:"selected"`
}

type sessionView struct {
	TestType      string           `json:"test_type"`
	Subjects      []string         `json:"subjects"`
	Difficulty    model.Difficulty `json:"difficulty"`
	Questions     []questionView   `json:"questions"`
	Current       int              `json:"current"`
	Answered      int              `json:"answered"`
	TimeRemaining int              `json:"time_remaining"`
	TotalTime     int              `json:"total_time"`
	Active        bool             `json:"active"`
	Paused        bool             `json:"paused"`
	Shortfall     int              `json:"shortfall,omitempty"`
	Message       string           `json:"message,omitempty"`
}

func viewOf(s *session.Session) *sessionView {
	if s == nil {
		return nil
	}
	v := &sessionView{
		TestType:      s.TestType,
		Subjects:      s.Subjects,
		Difficulty:    s.Difficulty,
		Current:       s.Current,
		Answered:      len(s.Answers),
		TimeRemaining: s.TimeRemaining,
		TotalTime:     s.TotalTime,
		Active:        s.Active,
		Paused:        s.Paused,
	}
	answered := make(map[string]int, len(s.Answers))
	for _, a := range s.Answers {
		answered[a.QuestionID] = a.Selected
	}
	for _, q := range s.Questions {
		qv := questionView{
			ID:       q.ID,
			Text:     q.Text,
			Options:  q.Options,
			Subject:  q.Subject,
			Selected: -1,
		}
		if sel, ok := answered[q.ID]; ok {
			qv.Answered = true
			qv.Selected = sel
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

type startRequest struct {
	TestType      string           `json:"test_type"`
	Subjects      []string         `json:"subjects"`
	QuestionCount int              `json:"question_count"`
	Difficulty    model.Difficulty `json:"difficulty"`
}

func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	user := model.UserFromContext(r.Context())

	mgr := h.sessions.ManagerFor(user.ID)
	sess, err := mgr.Start(req.TestType, req.Subjects, req.QuestionCount, req.Difficulty)

	var shortfall *model.ShortfallError
	if errors.As(err, &shortfall) {
		v := viewOf(sess)
		v.Shortfall = shortfall.Requested - shortfall.Selected
		v.Message = appI18n.Tp(r.Context(), "QuestionsAvailable", shortfall.Selected)
		respondJSON(w, http.StatusOK, v)
		return
	}
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess))
}

func (h *Handler) handleTestState(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sess := h.sessions.ManagerFor(user.ID).State()
	if sess == nil {
		h.respondFault(w, r, model.ErrNoActiveSession)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess))
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Selected   int    `json:"selected"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	user := model.UserFromContext(r.Context())
	if err := h.sessions.ManagerFor(user.ID).Answer(req.QuestionID, req.Selected); err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.moveCurrent(w, r, (*session.Manager).Advance)
}

func (h *Handler) handlePrev(w http.ResponseWriter, r *http.Request) {
	h.moveCurrent(w, r, (*session.Manager).Retreat)
}

func (h *Handler) moveCurrent(w http.ResponseWriter, r *http.Request, move func(*session.Manager) error) {
	user := model.UserFromContext(r.Context())
	mgr := h.sessions.ManagerFor(user.ID)
	if err := move(mgr); err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(mgr.State()))
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if err := h.sessions.ManagerFor(user.ID).Pause(); err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if err := h.sessions.ManagerFor(user.ID).Resume(); err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	result, err := h.sessions.ManagerFor(user.ID).Finish()
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, finishResponse{
		TestResult: result,
		Message: appI18n.Td(r.Context(), "TestFinishedScore", map[string]any{
			"Score": result.Score,
			"Total": result.TotalQuestions,
		}),
	})
}

type finishResponse struct {
	*model.TestResult
	Message string `json:"message"`
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	results, err := h.store.ResultsForUser(user.ID)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.stats.Snapshot())
}

func (h *Handler) handleLanguages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"languages": appI18n.Languages(),
		"default":   appI18n.DefaultLang,
	})
}

type ratingRequest struct {
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment"`
	TestID  string  `json:"test_id"`
}

func (h *Handler) handleAddRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondJSON(w, http.StatusBadRequest, errorResponse{"rating must be between 1 and 5"})
		return
	}
	user := model.UserFromContext(r.Context())
	rating := model.UserRating{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Value:     req.Rating,
		Comment:   req.Comment,
		TestID:    req.TestID,
		CreatedAt: time.Now(),
	}
	if err := h.store.AppendRating(rating); err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rating)
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})
		return
	}
	msg, err := h.contact.Submit(req.Name, req.Email, req.Subject, req.Message)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"id":      msg.ID,
		"message": appI18n.T(r.Context(), "ContactReceived"),
	})
}

func (h *Handler) handleContactStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.contact.MessageStats()
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
