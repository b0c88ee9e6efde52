// Package handler exposes the exam lifecycle as a JSON REST API on chi,
// plus a server-rendered review page for browser sessions.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/olympiad/internal/apperr"
	"github.com/pavelanni/olympiad/internal/exam"
	appI18n "github.com/pavelanni/olympiad/internal/i18n"
	"github.com/pavelanni/olympiad/internal/llm"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	exams  *exam.Service
	llm    *llm.Client
	config model.ServerConfig
}

// New creates a new Handler. l may be nil, which disables explanation
// drafting.
func New(s *store.Store, l *llm.Client, cfg model.ServerConfig) *Handler {
	return &Handler{store: s, exams: exam.NewService(s), llm: l, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.optionalAuth)
		r.Get("/exams", h.handleListExams)
		r.Get("/exams/slug/{slug}", h.handleExamBySlug)
		r.Get("/exam-results/{id}/review", h.handleResultReview)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/auth/logout", h.handleLogout)
		r.Get("/auth/me", h.handleMe)

		r.Post("/exam-results", h.handleSubmit)
		r.Get("/exam-results/me", h.handleMyResults)
		r.Get("/exam-results/{id}", h.handleResult)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireRole(model.UserRoleAdmin))
			r.Get("/exams", h.handleAdminListExams)
			r.Post("/exams", h.handleSaveExam)
			r.Post("/exams/import", h.handleImportExams)
			r.Get("/exams/{id}", h.handleAdminGetExam)
			r.Delete("/exams/{id}", h.handleDeleteExam)
			r.Post("/exams/{id}/explanations", h.handleDraftExplanations)
			r.Get("/exam-results", h.handleAllResults)
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{id}/toggle", h.handleToggleUserActive)
			r.Delete("/users/{id}", h.handleDeleteUser)
		})
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Exams   int    `json:"exams"`
	Results int    `json:"results"`
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.Ping(ctx); err != nil {
		h.writeError(w, r, apperr.Unavailable("ErrInternal", err))
		return
	}
	exams, err := h.store.ExamCount(ctx)
	if err != nil {
		h.writeError(w, r, apperr.Unavailable("ErrInternal", err))
		return
	}
	results, err := h.store.ResultCount(ctx)
	if err != nil {
		h.writeError(w, r, apperr.Unavailable("ErrInternal", err))
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Exams: exams, Results: results})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.exams.ListExams(r.Context(), model.UserFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleExamBySlug(w http.ResponseWriter, r *http.Request) {
	e, err := h.exams.PublicExam(r.Context(), model.UserFromContext(r.Context()), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub exam.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.exams.Submit(r.Context(), model.UserFromContext(r.Context()), sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleMyResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.exams.MyResults(r.Context(), model.UserFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.Result(r.Context(), model.UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

// writeError renders err as a localized JSON error. Validation-style
// details are always included; server-side causes only in dev mode.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	payload := errorPayload{
		Kind:    e.Kind.String(),
		Message: appI18n.T(r.Context(), e.MessageID),
	}

	switch e.Kind {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict:
		payload.Detail = e.Detail
	case apperr.KindInternal, apperr.KindUnavailable:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"kind", e.Kind.String(),
			"error", err,
		)
		if h.config.DevMode {
			payload.Detail = e.Error()
		}
	case apperr.KindDataIntegrity:
		if h.config.DevMode {
			payload.Detail = e.Error()
		}
	}

	writeJSON(w, e.Kind.Status(), errorBody{Error: payload})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads a single JSON value from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("ErrInvalidRequest", "request body is empty")
		case errors.As(err, &maxErr):
			return apperr.Validation("ErrInvalidRequest", "request body exceeds %d bytes", maxErr.Limit)
		default:
			return apperr.Validation("ErrInvalidRequest", "invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return apperr.Validation("ErrInvalidRequest", "request body must hold a single JSON value")
	}
	return nil
}
