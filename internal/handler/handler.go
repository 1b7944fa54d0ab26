package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appI18n "github.com/pavelanni/pushups/internal/i18n"
	"github.com/pavelanni/pushups/internal/model"
	"github.com/pavelanni/pushups/internal/store"
)

// Config tunes the API.
type Config struct {
	// TokenTTL is the lifetime of login tokens. Zero means store.DefaultTokenTTL.
	TokenTTL time.Duration
	// MixedLimit caps random-mode pools when the request sets no limit.
	// Zero means no cap.
	MixedLimit int
	// AdminUsername may rename and delete sets. Empty means "admin".
	AdminUsername string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	config Config
	now    func() time.Time
}

// New creates a new Handler.
func New(s *store.Store, cfg Config) *Handler {
	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}
	return &Handler{store: s, config: cfg, now: time.Now}
}

// Router returns the full API with logging, panic recovery and
// Accept-Language localization. lang is the fallback language.
func (h *Handler) Router(lang string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Route("/public", func(r chi.Router) {
			r.Get("/question-sets", h.handleListSets)
			r.Get("/question-sets/{setID}/questions", h.handleQuestions)
			r.Get("/questions/mixed", h.handleMixed)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/question-sets", h.handleListSets)
			r.Get("/question-sets/{setID}/questions", h.handleQuestions)
			r.Post("/question-sets/{setID}/mark-opened", h.handleMarkOpened)
			r.Put("/question-sets/{setID}/rename", h.handleRenameSet)
			r.Delete("/question-sets/{setID}", h.handleDeleteSet)
			r.Get("/questions/mixed", h.handleMixed)
			r.Post("/questions/{questionID}/progress", h.handleProgress)
			r.Post("/questions/{questionID}/mark-missed", h.handleMarkMissed)
			r.Post("/questions/{questionID}/unmark-missed", h.handleUnmarkMissed)
			r.Post("/questions/{questionID}/bookmark", h.handleBookmark)
			r.Get("/stats", h.handleStats)
			r.Get("/missed-questions", h.handleMissedQuestions)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID is the caller's id, or store.GuestID on the public routes.
func userID(r *http.Request) int64 {
	if u := model.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return store.GuestID
}

func (h *Handler) handleListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.ListSets(userID(r))
	if err != nil {
		h.serverError(w, r, "list sets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question_sets": sets})
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	setID, ok := parseID(w, r, "setID")
	if !ok {
		return
	}
	list, err := h.store.LoadQuestions(userID(r), model.SetID(setID))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrSetNotFound")
		return
	}
	if err != nil {
		h.serverError(w, r, "load questions", err, "set_id", setID)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleMixed(w http.ResponseWriter, r *http.Request) {
	filter := model.Filter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = model.FilterAll
	}
	limit := h.config.MixedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "ErrInvalidLimit")
			return
		}
		limit = n
	}
	list, err := h.store.MixedQuestions(userID(r), filter, limit)
	if err != nil {
		h.serverError(w, r, "load mixed questions", err, "filter", filter)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleMarkOpened(w http.ResponseWriter, r *http.Request) {
	setID, ok := parseID(w, r, "setID")
	if !ok {
		return
	}
	if _, err := h.store.GetSet(userID(r), model.SetID(setID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "ErrSetNotFound")
			return
		}
		h.serverError(w, r, "get set", err, "set_id", setID)
		return
	}
	if err := h.store.MarkSetOpened(userID(r), model.SetID(setID)); err != nil {
		h.serverError(w, r, "mark set opened", err, "set_id", setID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// canManageSets reports whether the caller may rename and delete sets.
// Imported sets have no uploader, so the admin account owns them.
func (h *Handler) canManageSets(r *http.Request) bool {
	u := model.UserFromContext(r.Context())
	return u != nil && u.Username == h.config.AdminUsername
}

func (h *Handler) handleRenameSet(w http.ResponseWriter, r *http.Request) {
	setID, ok := parseID(w, r, "setID")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidJSON")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "ErrEmptyName")
		return
	}
	if !h.canManageSets(r) {
		writeError(w, r, http.StatusForbidden, "ErrForbidden")
		return
	}
	err := h.store.RenameSet(model.SetID(setID), name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrSetNotFound")
		return
	}
	if err != nil {
		h.serverError(w, r, "rename set", err, "set_id", setID)
		return
	}
	slog.Info("question set renamed", "set_id", setID, "name", name)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleDeleteSet(w http.ResponseWriter, r *http.Request) {
	setID, ok := parseID(w, r, "setID")
	if !ok {
		return
	}
	if !h.canManageSets(r) {
		writeError(w, r, http.StatusForbidden, "ErrForbidden")
		return
	}
	err := h.store.DeleteSet(model.SetID(setID))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrSetNotFound")
		return
	}
	if err != nil {
		h.serverError(w, r, "delete set", err, "set_id", setID)
		return
	}
	slog.Info("question set deleted", "set_id", setID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type progressRequest struct {
	Attempted *bool `json:"attempted"`
	Correct   *bool `json:"correct"`
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	qID, ok := parseID(w, r, "questionID")
	if !ok {
		return
	}
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidJSON")
		return
	}
	attempted := true
	if req.Attempted != nil {
		attempted = *req.Attempted
	}
	if err := h.store.UpdateProgress(userID(r), model.QuestionID(qID), attempted, req.Correct, h.now()); err != nil {
		h.serverError(w, r, "update progress", err, "question_id", qID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleMarkMissed(w http.ResponseWriter, r *http.Request) {
	qID, ok := parseID(w, r, "questionID")
	if !ok {
		return
	}
	if err := h.store.MarkMissed(userID(r), model.QuestionID(qID)); err != nil {
		h.serverError(w, r, "mark missed", err, "question_id", qID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleUnmarkMissed(w http.ResponseWriter, r *http.Request) {
	qID, ok := parseID(w, r, "questionID")
	if !ok {
		return
	}
	if err := h.store.UnmarkMissed(userID(r), model.QuestionID(qID)); err != nil {
		h.serverError(w, r, "unmark missed", err, "question_id", qID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleBookmark(w http.ResponseWriter, r *http.Request) {
	qID, ok := parseID(w, r, "questionID")
	if !ok {
		return
	}
	on, err := h.store.ToggleBookmark(userID(r), model.QuestionID(qID))
	if err != nil {
		h.serverError(w, r, "toggle bookmark", err, "question_id", qID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": on})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(userID(r), h.now())
	if err != nil {
		h.serverError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleMissedQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.MissedQuestions(userID(r))
	if err != nil {
		h.serverError(w, r, "missed questions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"missed_questions": qs})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidID")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError responds with a localized {"error": ...} body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...any) {
	slog.Error(op+" failed", append(attrs, "error", err)...)
	writeError(w, r, http.StatusInternalServerError, "ErrInternal")
}
