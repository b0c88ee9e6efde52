package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/olympiad/internal/apperr"
	"github.com/pavelanni/olympiad/internal/exam"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/store"
	"github.com/pavelanni/olympiad/internal/validation"
)

const maxUploadBytes = 10 << 20

func (h *Handler) handleAdminListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams(r.Context(), true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleAdminGetExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := h.store.GetExam(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("ErrExamNotFound", "exam %q", id))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleSaveExam creates an exam, or replaces it when the body carries the
// ID of a stored exam.
func (h *Handler) handleSaveExam(w http.ResponseWriter, r *http.Request) {
	var e model.Exam
	if err := decodeJSON(w, r, &e); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := exam.PrepareDefinition(&e); err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if e.ID != "" {
		existing, err := h.store.GetExam(r.Context(), e.ID)
		switch {
		case err == nil:
			e.CreatedAt = existing.CreatedAt
			status = http.StatusOK
		case !errors.Is(err, store.ErrNotFound):
			h.writeError(w, r, err)
			return
		}
	}

	saved, err := h.store.SaveExam(r.Context(), e)
	if errors.Is(err, store.ErrConflict) {
		h.writeError(w, r, apperr.Conflict("ErrConflict", "exam slug %q is taken", e.Slug))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, saved)
}

func (h *Handler) handleImportExams(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, r, apperr.Validation("ErrInvalidRequest", "file too large or not multipart"))
		return
	}

	file, header, err := r.FormFile("exams_file")
	if err != nil {
		h.writeError(w, r, apperr.Validation("ErrInvalidRequest", "no file uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := exam.Import(r.Context(), h.store, "upload:"+header.Filename, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slog.Info("uploaded exams via admin", "filename", header.Filename, "count", len(report.Slugs), "unchanged", report.Unchanged)
	writeJSON(w, http.StatusOK, report)
}

// handleDeleteExam removes an exam. Stored results keep their snapshots.
func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteExam(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("ErrExamNotFound", "exam %q", id))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type explanationsResponse struct {
	Added int         `json:"added"`
	Exam  *model.Exam `json:"exam"`
}

func (h *Handler) handleDraftExplanations(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		h.writeError(w, r, apperr.Unavailable("ErrLLMUnavailable", errors.New("no LLM endpoint configured")))
		return
	}

	id := chi.URLParam(r, "id")
	e, err := h.store.GetExam(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("ErrExamNotFound", "exam %q", id))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = h.config.Lang
	}

	added, draftErr := h.llm.FillExplanations(r.Context(), e, lang)
	if added > 0 {
		// Keep whatever was drafted before a failure.
		if e, err = h.store.SaveExam(r.Context(), *e); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if draftErr != nil {
		h.writeError(w, r, apperr.Unavailable("ErrLLMFailed", draftErr))
		return
	}
	slog.Info("drafted explanations", "exam", e.Slug, "added", added)
	writeJSON(w, http.StatusOK, explanationsResponse{Added: added, Exam: e})
}

func (h *Handler) handleAllResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ExportResults(r.Context(), r.URL.Query().Get("exam"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,min=3,max=64"`
	DisplayName string         `json:"displayName" validate:"max=128"`
	Password    string         `json:"password" validate:"required,min=8"`
	Role        model.UserRole `json:"role" validate:"omitempty,role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	if req.Role == "" {
		req.Role = model.UserRoleStudent
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeError(w, r, apperr.Internal(err))
		return
	}

	id, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if errors.Is(err, store.ErrConflict) {
		h.writeError(w, r, apperr.Conflict("ErrConflict", "username %q is taken", req.Username))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// userIDParam parses the {id} URL parameter and refuses the caller's own ID.
func (h *Handler) userIDParam(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, apperr.Validation("ErrInvalidRequest", "invalid user ID %q", idStr)
	}
	if me := model.UserFromContext(r.Context()); me != nil && me.ID == id {
		return 0, apperr.Validation("ErrCannotModifySelf", "user %d is the caller", id)
	}
	return id, nil
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := h.userIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("ErrUserNotFound", "user %d", id))
		return
	} else if err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if user == nil {
		h.writeError(w, r, apperr.NotFound("ErrUserNotFound", "user %d", id))
		return
	}
	slog.Info("toggled user active", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user and every result they own.
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := h.userIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, apperr.NotFound("ErrUserNotFound", "user %d", id))
		return
	} else if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
